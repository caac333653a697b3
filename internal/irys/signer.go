package irys

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"pet-arena/internal/config"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureTypeEthereum uint16 = 3

// EthereumSigner signs data items with a secp256k1 key using EIP-191 personal messages,
// which is what bundlers expect for EVM-funded uploads.
type EthereumSigner struct {
	key *ecdsa.PrivateKey
}

func NewEthereumSigner(cfg *config.Config) (*EthereumSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRIVATE_KEY: %w", err)
	}
	return &EthereumSigner{key: key}, nil
}

func (s *EthereumSigner) SignatureType() uint16 { return signatureTypeEthereum }

// Owner is the 65-byte uncompressed public key.
func (s *EthereumSigner) Owner() []byte {
	return crypto.FromECDSAPub(&s.key.PublicKey)
}

func (s *EthereumSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *EthereumSigner) Sign(message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// VerifyEthereum checks sig against owner for message.
func VerifyEthereum(owner, message, sig []byte) bool {
	if len(sig) != crypto.SignatureLength {
		return false
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return false
	}
	return bytes.Equal(crypto.FromECDSAPub(pub), owner)
}
