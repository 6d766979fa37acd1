// Package component defines how the orchestrator creates and talks to
// deployed contracts without knowing where their code comes from.
package component

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/rollupctl/internal/plan"
)

var (
	// ErrUnknownMethod is returned when a component has no such method.
	ErrUnknownMethod = errors.New("component: unknown method")

	// ErrEmptyResult is returned by Call when the target returned no data,
	// which is what an address without code answers.
	ErrEmptyResult = errors.New("component: call returned no data")
)

// Instance is a deployed component bound to an address.
type Instance interface {
	Name() string
	Address() common.Address
	HasMethod(method string) bool
	// Transact submits a state-changing call and waits for it to be mined.
	Transact(ctx context.Context, method string, args ...any) (common.Hash, error)
	// Call performs a read-only call and returns the decoded outputs.
	Call(ctx context.Context, method string, args ...any) ([]any, error)
}

// Request carries resolved constructor arguments.
type Request struct {
	Args []any
	// ProxyAdmin administers the proxy of a proxied component. Nil means
	// the deploying account.
	ProxyAdmin *common.Address
	// Implementation is code deployed by an earlier attempt. When set, only
	// the proxy of a proxied component is deployed.
	Implementation *common.Address
}

// Instantiation is the outcome of deploying one component.
type Instantiation struct {
	// Address is where the component is used from. For proxied
	// components this is the proxy.
	Address common.Address
	TxHash  common.Hash

	Implementation   *common.Address
	ImplementationTx common.Hash
}

// Handle creates and binds instances of one plan component.
type Handle interface {
	// Instantiate deploys the component, behind a proxy if it is proxied.
	// When the proxy deploy fails after the implementation confirmed, the
	// error comes with an Instantiation carrying only the implementation.
	Instantiate(ctx context.Context, req Request) (*Instantiation, error)
	// Implement deploys only the component's code, as an upgrade target.
	Implement(ctx context.Context, args ...any) (*Instantiation, error)
	// Attach binds the component to an existing address.
	Attach(addr common.Address) Instance
}

// Factory resolves plan components to handles.
type Factory interface {
	Handle(d *plan.Descriptor) (Handle, error)
}
