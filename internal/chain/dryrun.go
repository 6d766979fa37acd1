package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// PlannedTx is a transaction a dry run would have broadcast.
type PlannedTx struct {
	Nonce   uint64
	To      *common.Address
	Data    []byte
	Hash    common.Hash
	Created common.Address
}

// DryRunSubmitter signs transactions without broadcasting them. Contract
// creations are assigned the address they would receive on chain. Reads are
// forwarded to the backend when one is set; otherwise they return no data.
type DryRunSubmitter struct {
	backend  Backend
	signer   Signer
	gasLimit uint64

	mu        sync.Mutex
	nextNonce uint64
	haveNonce bool
	planned   []PlannedTx
}

// NewDryRunSubmitter returns a dry-run submitter. backend may be nil.
func NewDryRunSubmitter(backend Backend, signer Signer) *DryRunSubmitter {
	return &DryRunSubmitter{backend: backend, signer: signer, gasLimit: DefaultGasLimit}
}

// From returns the account transactions are signed for.
func (s *DryRunSubmitter) From() common.Address {
	return s.signer.Address()
}

// Send signs call and records it as planned.
func (s *DryRunSubmitter) Send(ctx context.Context, call Call) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveNonce {
		if s.backend != nil {
			nonce, err := s.backend.PendingNonceAt(ctx, s.From())
			if err != nil {
				return nil, fmt.Errorf("get nonce: %w", err)
			}
			s.nextNonce = nonce
		}
		s.haveNonce = true
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	gas := call.GasLimit
	if gas == 0 {
		gas = s.gasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    s.nextNonce,
		To:       call.To,
		Value:    value,
		Gas:      gas,
		GasPrice: new(big.Int),
		Data:     call.Data,
	})
	signed, err := s.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	planned := PlannedTx{Nonce: s.nextNonce, To: call.To, Data: call.Data, Hash: signed.Hash()}
	if call.To == nil {
		planned.Created = crypto.CreateAddress(s.From(), s.nextNonce)
	}
	s.planned = append(s.planned, planned)
	s.nextNonce++

	return &types.Receipt{
		Status:          types.ReceiptStatusSuccessful,
		TxHash:          planned.Hash,
		ContractAddress: planned.Created,
	}, nil
}

// Call forwards a read to the backend, if any.
func (s *DryRunSubmitter) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if s.backend == nil {
		return nil, nil
	}
	return s.backend.CallContract(ctx, ethereum.CallMsg{From: s.From(), To: &to, Data: data}, nil)
}

// Planned returns the transactions signed so far, in nonce order.
func (s *DryRunSubmitter) Planned() []PlannedTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlannedTx(nil), s.planned...)
}
