package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Defaults applied by NewEthSubmitter for zero config values.
const (
	DefaultGasBoostPercent  = 150
	DefaultGasBufferPercent = 120
	DefaultGasLimit         = 8_000_000
)

// DefaultMinGasPrice is the floor applied to boosted gas prices (2 gwei).
var DefaultMinGasPrice = big.NewInt(2_000_000_000)

// Call describes one transaction. A nil To deploys Data as contract code.
type Call struct {
	To       *common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// Submitter sends transactions and read-only calls from a single account.
type Submitter interface {
	From() common.Address
	// Send submits call and blocks until it is mined. A successful receipt
	// for a contract creation carries the new address in ContractAddress.
	Send(ctx context.Context, call Call) (*types.Receipt, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Config tunes gas and confirmation behaviour of EthSubmitter.
type Config struct {
	GasBoostPercent  uint64
	GasBufferPercent uint64
	MinGasPrice      *big.Int
	DefaultGasLimit  uint64
	ConfirmTimeout   time.Duration
	Logger           *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.GasBoostPercent == 0 {
		c.GasBoostPercent = DefaultGasBoostPercent
	}
	if c.GasBufferPercent == 0 {
		c.GasBufferPercent = DefaultGasBufferPercent
	}
	if c.MinGasPrice == nil {
		c.MinGasPrice = DefaultMinGasPrice
	}
	if c.DefaultGasLimit == 0 {
		c.DefaultGasLimit = DefaultGasLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// EthSubmitter signs and broadcasts transactions through a Backend.
// Nonces are allocated locally so concurrent sends from one account do not
// collide.
type EthSubmitter struct {
	backend Backend
	signer  Signer
	cfg     Config

	mu        sync.Mutex
	nextNonce uint64
	haveNonce bool
}

// NewEthSubmitter returns a submitter for signer's account.
func NewEthSubmitter(backend Backend, signer Signer, cfg Config) *EthSubmitter {
	cfg.applyDefaults()
	return &EthSubmitter{backend: backend, signer: signer, cfg: cfg}
}

// From returns the sending account.
func (s *EthSubmitter) From() common.Address {
	return s.signer.Address()
}

// Send signs, broadcasts and waits for call to be mined.
func (s *EthSubmitter) Send(ctx context.Context, call Call) (*types.Receipt, error) {
	signed, err := s.submit(ctx, call)
	if err != nil {
		return nil, err
	}

	s.cfg.Logger.Debug("transaction submitted, waiting for confirmation",
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", signed.Nonce()),
	)

	waitCtx := ctx
	if s.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(waitCtx, s.backend, signed)
	if err != nil {
		return nil, &TxError{Hash: signed.Hash(), Err: fmt.Errorf("wait for receipt: %w", err)}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &TxError{Hash: signed.Hash(), Err: ErrReverted}
	}
	if call.To == nil && receipt.ContractAddress == (common.Address{}) {
		receipt.ContractAddress = crypto.CreateAddress(s.From(), signed.Nonce())
	}
	return receipt, nil
}

// Call performs a read-only call against the latest block.
func (s *EthSubmitter) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return s.backend.CallContract(ctx, ethereum.CallMsg{From: s.From(), To: &to, Data: data}, nil)
}

func (s *EthSubmitter) submit(ctx context.Context, call Call) (*types.Transaction, error) {
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	gasPrice, err := s.gasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}

	gasLimit := call.GasLimit
	if gasLimit == 0 {
		gasLimit = s.estimateGas(ctx, call, gasPrice, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveNonce {
		nonce, err := s.backend.PendingNonceAt(ctx, s.From())
		if err != nil {
			return nil, fmt.Errorf("get nonce: %w", err)
		}
		s.nextNonce, s.haveNonce = nonce, true
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    s.nextNonce,
		To:       call.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     call.Data,
	})

	signed, err := s.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		// The node may have seen a different nonce; ask again next time.
		s.haveNonce = false
		return nil, &TxError{Hash: signed.Hash(), Err: fmt.Errorf("send transaction: %w", err)}
	}
	s.nextNonce++
	return signed, nil
}

// gasPrice returns the suggested price boosted for faster inclusion.
func (s *EthSubmitter) gasPrice(ctx context.Context) (*big.Int, error) {
	suggested, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	boosted := new(big.Int).Mul(suggested, new(big.Int).SetUint64(s.cfg.GasBoostPercent))
	boosted.Div(boosted, big.NewInt(100))
	if boosted.Cmp(s.cfg.MinGasPrice) < 0 {
		boosted = new(big.Int).Set(s.cfg.MinGasPrice)
	}
	return boosted, nil
}

func (s *EthSubmitter) estimateGas(ctx context.Context, call Call, gasPrice, value *big.Int) uint64 {
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     s.From(),
		To:       call.To,
		GasPrice: gasPrice,
		Value:    value,
		Data:     call.Data,
	})
	if err != nil {
		s.cfg.Logger.Warn("gas estimation failed, using default",
			slog.Uint64("gas_limit", s.cfg.DefaultGasLimit),
			slog.String("error", err.Error()),
		)
		return s.cfg.DefaultGasLimit
	}
	return gas * s.cfg.GasBufferPercent / 100
}
