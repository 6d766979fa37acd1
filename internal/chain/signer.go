package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions for one account.
type Signer interface {
	Address() common.Address
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// KeySigner signs with an in-memory secp256k1 key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewKeySigner parses a hex private key, with or without 0x prefix.
func NewKeySigner(hexKey string, chainID *big.Int) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
	}, nil
}

// Address returns the signing account.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTransaction signs tx for the configured chain.
func (s *KeySigner) SignTransaction(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, s.signer, s.key)
}

// AddressSigner stands in for an account whose key is not available. It
// returns transactions unsigned, so it is only useful for dry runs.
type AddressSigner struct {
	address common.Address
}

// NewAddressSigner returns a signer for addr.
func NewAddressSigner(addr common.Address) *AddressSigner {
	return &AddressSigner{address: addr}
}

// Address returns the account.
func (s *AddressSigner) Address() common.Address {
	return s.address
}

// SignTransaction returns tx as is.
func (s *AddressSigner) SignTransaction(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}
