package service

import (
	"context"
	"math/big"
	"pet-arena/internal/api"
	"pet-arena/internal/domain"
	"pet-arena/internal/irys"
)

type Generator interface {
	GenerateText(ctx context.Context, req api.TextRequest) (string, error)
	GenerateImage(ctx context.Context, req api.ImageRequest) (*domain.Blob, error)
}

// Storage is the slice of the bundler client the services use.
type Storage interface {
	Upload(ctx context.Context, data []byte, tags []domain.Tag) (*domain.Receipt, error)
	UploadFile(ctx context.Context, path string, tags []domain.Tag) (*domain.Receipt, error)
	FetchMutable(ctx context.Context, rootID string) ([]byte, error)
	GatewayURL(id string) string
	MutableURL(rootID string) string
	Fund(ctx context.Context, amount *big.Int) (*irys.FundResult, error)
}

// ChainClient is every contract operation the server performs.
type ChainClient interface {
	TotalSupply(ctx context.Context) (uint64, error)
	TokenByIndex(ctx context.Context, index uint64) (uint64, error)
	OwnerOf(ctx context.Context, tokenID uint64) (string, error)
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
	Multiplier(ctx context.Context, tokenID uint64) (*big.Int, error)
	Level(ctx context.Context, tokenID uint64) (*big.Int, error)

	Mint(ctx context.Context, uri string) (tokenID uint64, txHash string, err error)
	Feed(ctx context.Context, tokenID uint64, value *big.Int) (string, error)
	Train(ctx context.Context, tokenID uint64, value *big.Int) (string, error)
	LevelUp(ctx context.Context, tokenID uint64) (string, error)

	CreateBattle(ctx context.Context, pet1, pet2 uint64) (string, error)
	Stake(ctx context.Context, battleID, petID uint64, value *big.Int) (string, error)
	ResolveBattle(ctx context.Context, battleID uint64) (string, error)
	BattleCount(ctx context.Context) (uint64, error)
	BattleDetails(ctx context.Context, battleID uint64) (*domain.Battle, error)
}

type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, uri string) (*domain.Metadata, error)
}
