package artifacts

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/rollupctl/internal/chain"
	"github.com/Bidon15/rollupctl/internal/component"
)

// Contract is a deployed artifact reachable through a submitter.
type Contract struct {
	name      string
	address   common.Address
	artifact  *ContractArtifact
	submitter chain.Submitter
}

var _ component.Instance = (*Contract)(nil)

// NewContract binds artifact to address under a logical name.
func NewContract(name string, address common.Address, artifact *ContractArtifact, submitter chain.Submitter) *Contract {
	return &Contract{name: name, address: address, artifact: artifact, submitter: submitter}
}

// Name returns the logical component name.
func (c *Contract) Name() string { return c.name }

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

// HasMethod reports whether the contract's ABI declares method.
func (c *Contract) HasMethod(method string) bool {
	return c.artifact.HasMethod(method)
}

// Transact submits method with args and waits for it to be mined. On
// failure the returned hash is the transaction's, when one was sent.
func (c *Contract) Transact(ctx context.Context, method string, args ...any) (common.Hash, error) {
	if !c.HasMethod(method) {
		return common.Hash{}, fmt.Errorf("%w: %s.%s", component.ErrUnknownMethod, c.name, method)
	}
	data, err := c.artifact.Pack(method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	to := c.address
	receipt, err := c.submitter.Send(ctx, chain.Call{To: &to, Data: data})
	if err != nil {
		hash, _ := chain.TxHashOf(err)
		return hash, fmt.Errorf("%s.%s: %w", c.name, method, err)
	}
	return receipt.TxHash, nil
}

// Call performs a read-only call of method and decodes its outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	if !c.HasMethod(method) {
		return nil, fmt.Errorf("%w: %s.%s", component.ErrUnknownMethod, c.name, method)
	}
	data, err := c.artifact.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.submitter.Call(ctx, c.address, data)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.name, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", component.ErrEmptyResult, c.name, method)
	}
	return c.artifact.Unpack(method, out)
}
