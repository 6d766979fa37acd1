// Package chain submits transactions and read-only calls to an Ethereum
// JSON-RPC endpoint on behalf of a single deployer account.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of the JSON-RPC client the deployer needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to rpcURL and, when expectedChainID is non-zero, refuses
// endpoints serving a different chain.
func Dial(ctx context.Context, rpcURL string, expectedChainID uint64) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", rpcURL, err)
	}
	if expectedChainID == 0 {
		return client, nil
	}
	if err := CheckChainID(ctx, client, expectedChainID); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// CheckChainID compares the endpoint's chain ID with expected.
func CheckChainID(ctx context.Context, b Backend, expected uint64) error {
	got, err := b.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain ID: %w", err)
	}
	if !got.IsUint64() || got.Uint64() != expected {
		return fmt.Errorf("%w: expected %d, got %s", ErrChainMismatch, expected, got)
	}
	return nil
}
