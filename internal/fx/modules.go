package fx

import (
	"context"
	"pet-arena/internal/api"
	"pet-arena/internal/chain"
	"pet-arena/internal/config"
	"pet-arena/internal/constants"
	"pet-arena/internal/database"
	"pet-arena/internal/irys"
	"pet-arena/internal/logger"
	"pet-arena/internal/repository"
	"pet-arena/internal/scheduler"
	"pet-arena/internal/server"
	"pet-arena/internal/service"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ProvideChainBackend dials the contract chain and closes the connection on shutdown.
func ProvideChainBackend(lc fx.Lifecycle, cfg *config.Config) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.ExternalAPITimeout)
	defer cancel()

	client, err := chain.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			client.Close()
			return nil
		},
	})
	return client, nil
}

func ProvideChainClient(cfg *config.Config, backend chain.Backend, logger zerolog.Logger) (*chain.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.ExternalAPITimeout)
	defer cancel()
	return chain.NewClient(ctx, cfg, backend, logger)
}

// ProvideFunder dials the storage funding chain.
func ProvideFunder(lc fx.Lifecycle, cfg *config.Config, logger zerolog.Logger) (*irys.EthFunder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.ExternalAPITimeout)
	defer cancel()

	funder, err := irys.NewEthFunder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			funder.Close()
			return nil
		},
	})
	return funder, nil
}

var Module = fx.Options(
	logger.Module,
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPetRepository),
	fx.Provide(repository.NewEvolutionRepository),
	// api clients
	fx.Provide(fx.Annotate(api.NewGeminiClient, fx.As(new(service.Generator)))),
	fx.Provide(fx.Annotate(api.NewGatewayClient, fx.As(new(service.MetadataFetcher)))),
	// storage network
	fx.Provide(irys.NewEthereumSigner),
	fx.Provide(fx.Annotate(ProvideFunder, fx.As(new(irys.Funder)))),
	fx.Provide(fx.Annotate(irys.NewClient, fx.As(new(service.Storage)))),
	// chain
	fx.Provide(fx.Annotate(ProvideChainBackend, fx.As(new(chain.Backend)))),
	fx.Provide(fx.Annotate(ProvideChainClient, fx.As(new(service.ChainClient)))),
	// svc
	fx.Provide(service.NewGenerationService),
	fx.Provide(service.NewMetadataService),
	fx.Provide(service.NewStorageService),
	fx.Provide(service.NewPetService),
	fx.Provide(service.NewBattleService),
	fx.Provide(service.NewReconcileService),
	// jobs
	fx.Provide(scheduler.New),
	fx.Provide(scheduler.NewReconcileJob),
	fx.Provide(scheduler.NewCacheSyncJob),
	// server
	fx.Provide(server.NewPetServer),
)
