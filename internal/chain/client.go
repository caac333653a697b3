// Package chain talks to the pet NFT contract.
package chain

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"pet-arena/internal/config"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

//go:embed abi.json
var contractABI string

var (
	ErrTxFailed         = errors.New("transaction reverted")
	ErrMintEventMissing = errors.New("mint receipt has no Transfer event")
)

// Backend is what the client needs from an RPC connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

type Client struct {
	address  common.Address
	abi      abi.ABI
	backend  Backend
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	logger   zerolog.Logger

	// serialises nonce selection for the single signing key
	sendMu sync.Mutex
}

func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(contractABI))
}

func Dial(ctx context.Context, cfg *config.Config) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.ChainRPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}
	return client, nil
}

func NewClient(ctx context.Context, cfg *config.Config, backend Backend, logger zerolog.Logger) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid CONTRACT_ADDRESS %q", cfg.ContractAddress)
	}
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRIVATE_KEY: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	return &Client{
		address:  address,
		abi:      parsed,
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		key:      key,
		chainID:  chainID,
		logger:   logger.With().Str("component", "chain_client").Logger(),
	}, nil
}

// Account is the address that signs every write.
func (c *Client) Account() common.Address {
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

func (c *Client) TotalSupply(ctx context.Context) (uint64, error) {
	v, err := c.callBig(ctx, "totalSupply")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (c *Client) TokenByIndex(ctx context.Context, index uint64) (uint64, error) {
	v, err := c.callBig(ctx, "tokenByIndex", new(big.Int).SetUint64(index))
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (c *Client) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	out, err := c.call(ctx, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("ownerOf: unexpected output %T", out[0])
	}
	return owner.Hex(), nil
}

func (c *Client) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	out, err := c.call(ctx, "tokenURI", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", err
	}
	uri, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("tokenURI: unexpected output %T", out[0])
	}
	return uri, nil
}

// Multiplier is the token's 18-decimal fixed-point multiplier.
func (c *Client) Multiplier(ctx context.Context, tokenID uint64) (*big.Int, error) {
	return c.callBig(ctx, "tokenIdToMultiplier", new(big.Int).SetUint64(tokenID))
}

// Level is the token's 18-decimal fixed-point level.
func (c *Client) Level(ctx context.Context, tokenID uint64) (*big.Int, error) {
	return c.callBig(ctx, "tokenIdToLevel", new(big.Int).SetUint64(tokenID))
}

func (c *Client) BattleCount(ctx context.Context) (uint64, error) {
	v, err := c.callBig(ctx, "battleCount")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (c *Client) BattleDetails(ctx context.Context, battleID uint64) (*domain.Battle, error) {
	out, err := c.call(ctx, "getBattleDetails", new(big.Int).SetUint64(battleID))
	if err != nil {
		return nil, err
	}
	return decodeBattle(battleID, out)
}

func decodeBattle(battleID uint64, out []interface{}) (*domain.Battle, error) {
	if len(out) != 7 {
		return nil, fmt.Errorf("getBattleDetails: expected 7 outputs, got %d", len(out))
	}
	pet1, ok1 := out[0].(*big.Int)
	pet2, ok2 := out[1].(*big.Int)
	creator, ok3 := out[2].(common.Address)
	active, ok4 := out[3].(bool)
	stake1, ok5 := out[4].(*big.Int)
	stake2, ok6 := out[5].(*big.Int)
	winner, ok7 := out[6].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return nil, fmt.Errorf("getBattleDetails: unexpected output types")
	}
	return &domain.Battle{
		BattleID:       battleID,
		Pet1:           pet1.Uint64(),
		Pet2:           pet2.Uint64(),
		Creator:        creator.Hex(),
		Active:         active,
		TotalStakePet1: stake1.String(),
		TotalStakePet2: stake2.String(),
		Winner:         winner.Uint64(),
	}, nil
}

// Mint mints a token pointing at uri and returns its id from the Transfer event.
func (c *Client) Mint(ctx context.Context, uri string) (uint64, string, error) {
	receipt, err := c.transact(ctx, nil, "safeMint", uri)
	if err != nil {
		return 0, "", err
	}
	tokenID, err := c.mintedToken(receipt)
	if err != nil {
		return 0, receipt.TxHash.Hex(), err
	}
	return tokenID, receipt.TxHash.Hex(), nil
}

func (c *Client) mintedToken(receipt *types.Receipt) (uint64, error) {
	transfer := c.abi.Events["Transfer"].ID
	for _, l := range receipt.Logs {
		if l.Address != c.address || len(l.Topics) != 4 || l.Topics[0] != transfer {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()).Uint64(), nil
	}
	return 0, ErrMintEventMissing
}

func (c *Client) Feed(ctx context.Context, tokenID uint64, value *big.Int) (string, error) {
	return c.write(ctx, value, "feed", new(big.Int).SetUint64(tokenID))
}

func (c *Client) Train(ctx context.Context, tokenID uint64, value *big.Int) (string, error) {
	return c.write(ctx, value, "train", new(big.Int).SetUint64(tokenID))
}

func (c *Client) LevelUp(ctx context.Context, tokenID uint64) (string, error) {
	return c.write(ctx, nil, "levelUp", new(big.Int).SetUint64(tokenID))
}

func (c *Client) CreateBattle(ctx context.Context, pet1, pet2 uint64) (string, error) {
	return c.write(ctx, nil, "createBattle", new(big.Int).SetUint64(pet1), new(big.Int).SetUint64(pet2))
}

func (c *Client) Stake(ctx context.Context, battleID, petID uint64, value *big.Int) (string, error) {
	return c.write(ctx, value, "stake", new(big.Int).SetUint64(battleID), new(big.Int).SetUint64(petID))
}

func (c *Client) ResolveBattle(ctx context.Context, battleID uint64) (string, error) {
	return c.write(ctx, nil, "resolveBattle", new(big.Int).SetUint64(battleID))
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

func (c *Client) callBig(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output %T", method, out[0])
	}
	return v, nil
}

func (c *Client) write(ctx context.Context, value *big.Int, method string, params ...interface{}) (string, error) {
	receipt, err := c.transact(ctx, value, method, params...)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// transact sends a write and waits until it is mined successfully.
func (c *Client) transact(ctx context.Context, value *big.Int, method string, params ...interface{}) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ChainTxTimeout)
	defer cancel()

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = value

	c.sendMu.Lock()
	tx, err := c.contract.Transact(opts, method, params...)
	c.sendMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	log := c.logger.With().Str("method", method).Str("tx", tx.Hash().Hex()).Logger()
	log.Debug().Msg("transaction sent")

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("%s: waiting for %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Warn().Uint64("block", receipt.BlockNumber.Uint64()).Msg("transaction reverted")
		return nil, fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), ErrTxFailed)
	}

	log.Info().Uint64("gas_used", receipt.GasUsed).Msg("transaction mined")
	return receipt, nil
}
