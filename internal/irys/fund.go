package irys

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"pet-arena/internal/config"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const transferGas uint64 = 21000

// EthFunder sends plain value transfers on the storage payment chain.
type EthFunder struct {
	client *ethclient.Client
	key    *ecdsa.PrivateKey
	from   common.Address
	logger zerolog.Logger
}

func NewEthFunder(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*EthFunder, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRIVATE_KEY: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.StorageRPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial storage rpc: %w", err)
	}
	return &EthFunder{
		client: client,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		logger: logger.With().Str("component", "irys_funder").Logger(),
	}, nil
}

func (f *EthFunder) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid deposit address %q", to)
	}
	chainID, err := f.client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read chain id: %w", err)
	}
	nonce, err := f.client.PendingNonceAt(ctx, f.from)
	if err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	gasPrice, err := f.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas price: %w", err)
	}

	recipient := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &recipient,
		Value:    amount,
		Gas:      transferGas,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), f.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := f.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transfer: %w", err)
	}

	f.logger.Info().
		Str("tx", signed.Hash().Hex()).
		Str("to", to).
		Str("amount", amount.String()).
		Msg("funding transfer sent")

	return signed.Hash().Hex(), nil
}

func (f *EthFunder) Close() {
	f.client.Close()
}
