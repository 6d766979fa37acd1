// Package componenttest provides an in-memory chain of components for
// exercising the orchestrator and registry without a node.
package componenttest

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/rollupctl/internal/chain"
	"github.com/Bidon15/rollupctl/internal/component"
	"github.com/Bidon15/rollupctl/internal/plan"
)

// Event kinds recorded by Chain.
const (
	KindInstantiate = "instantiate"
	KindImplement   = "implement"
	KindTransact    = "transact"
)

// Event is one state-changing operation, in submission order.
type Event struct {
	Kind   string
	Name   string
	Method string
	Args   []any
	Hash   common.Hash
	Addr   common.Address
}

// Chain is a fake deployment target. Every component behaves as a registry
// as well as an initializable contract, so any plan component can be named
// registry. It is safe for concurrent use.
type Chain struct {
	// From is reported as the deploying account.
	From common.Address
	// Delay is slept inside each instantiation, to widen race windows.
	Delay time.Duration
	// EmptyReads makes registry reads return no data, as an address
	// without code does.
	EmptyReads bool

	mu          sync.Mutex
	next        uint64
	events      []Event
	entries     map[common.Address]map[string]common.Address
	code        map[common.Address]bool
	failures    map[string]error
	hidden      map[string]bool
	inFlight    int
	maxInFlight int
}

// New returns an empty chain.
func New() *Chain {
	return &Chain{
		From:     common.HexToAddress("0x00000000000000000000000000000000000000de"),
		entries:  make(map[common.Address]map[string]common.Address),
		code:     make(map[common.Address]bool),
		failures: make(map[string]error),
		hidden:   make(map[string]bool),
	}
}

// FailInstantiate makes instantiating name revert.
func (c *Chain) FailInstantiate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[KindInstantiate+":"+name] = chain.ErrReverted
}

// FailProxy makes deploying the proxy of name revert. The implementation
// still deploys.
func (c *Chain) FailProxy(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[KindInstantiate+":proxy:"+name] = chain.ErrReverted
}

// FailTransact makes name.method revert.
func (c *Chain) FailTransact(name, method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[KindTransact+":"+name+":"+method] = chain.ErrReverted
}

// Heal removes every injected failure.
func (c *Chain) Heal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = make(map[string]error)
}

// HideMethod removes method from name's interface.
func (c *Chain) HideMethod(name, method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hidden[name+"."+method] = true
}

// Events returns the recorded operations.
func (c *Chain) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Names returns the component names of events of kind, in order. For
// transact events only calls of method are returned, unless method is
// empty.
func (c *Chain) Names(kind, method string) []string {
	var out []string
	for _, e := range c.Events() {
		if e.Kind != kind || (method != "" && e.Method != method) {
			continue
		}
		out = append(out, e.Name)
	}
	return out
}

// MaxInFlight returns the highest number of concurrent instantiations seen.
func (c *Chain) MaxInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFlight
}

// Entries returns the registry contents stored at addr.
func (c *Chain) Entries(addr common.Address) map[string]common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]common.Address, len(c.entries[addr]))
	for k, v := range c.entries[addr] {
		out[k] = v
	}
	return out
}

// SetEntry seeds a registry entry at addr.
func (c *Chain) SetEntry(addr common.Address, key string, value common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setEntryLocked(addr, key, value)
}

// SetCode marks addr as holding code, as if deployed outside the chain's
// view.
func (c *Chain) SetCode(addr common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = true
}

// CodeAt returns a single byte of code for every address the chain deployed
// or was given through SetCode, and nothing otherwise.
func (c *Chain) CodeAt(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.code[addr] {
		return nil, nil
	}
	return []byte{0x60}, nil
}

// Attach binds name to addr, as a factory handle would.
func (c *Chain) Attach(name string, addr common.Address) component.Instance {
	return &instance{chain: c, name: name, addr: addr}
}

// Handle implements component.Factory.
func (c *Chain) Handle(d *plan.Descriptor) (component.Handle, error) {
	return &handle{chain: c, name: d.Name, proxy: d.Proxy}, nil
}

var _ component.Factory = (*Chain)(nil)

func (c *Chain) setEntryLocked(addr common.Address, key string, value common.Address) {
	if c.entries[addr] == nil {
		c.entries[addr] = make(map[string]common.Address)
	}
	c.entries[addr][key] = value
}

// record appends an event, allocating a hash and, for deployments, an
// address. It fails when a failure was injected for key.
func (c *Chain) record(e Event, key string, create bool) (Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	e.Hash = common.BigToHash(new(big.Int).SetUint64(0xf000 + c.next))
	if err, ok := c.failures[key]; ok {
		return e, &chain.TxError{Hash: e.Hash, Err: err}
	}
	if create {
		e.Addr = common.BigToAddress(new(big.Int).SetUint64(0x1000 + c.next))
		c.code[e.Addr] = true
	}
	c.events = append(c.events, e)
	return e, nil
}

func (c *Chain) enter() {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.mu.Unlock()
}

func (c *Chain) leave() {
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
}

type handle struct {
	chain *Chain
	name  string
	proxy bool
}

func (h *handle) Instantiate(ctx context.Context, req component.Request) (*component.Instantiation, error) {
	h.chain.enter()
	defer h.chain.leave()

	if h.chain.Delay > 0 {
		select {
		case <-time.After(h.chain.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	args := append([]any(nil), req.Args...)
	if !h.proxy {
		e, err := h.chain.record(Event{Kind: KindInstantiate, Name: h.name, Args: args}, KindInstantiate+":"+h.name, true)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", h.name, err)
		}
		return &component.Instantiation{Address: e.Addr, TxHash: e.Hash}, nil
	}

	var impl Event
	if req.Implementation != nil {
		impl.Addr = *req.Implementation
	} else {
		var err error
		impl, err = h.chain.record(Event{Kind: KindImplement, Name: h.name, Args: args}, KindInstantiate+":"+h.name, true)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", h.name, err)
		}
	}
	implAddr := impl.Addr
	deployed := &component.Instantiation{Implementation: &implAddr, ImplementationTx: impl.Hash}

	admin := h.chain.From
	if req.ProxyAdmin != nil {
		admin = *req.ProxyAdmin
	}
	proxy, err := h.chain.record(Event{Kind: KindInstantiate, Name: h.name, Args: []any{impl.Addr, admin}}, KindInstantiate+":proxy:"+h.name, true)
	if err != nil {
		return deployed, fmt.Errorf("%s proxy: %w", h.name, err)
	}
	deployed.Address = proxy.Addr
	deployed.TxHash = proxy.Hash
	return deployed, nil
}

func (h *handle) Implement(_ context.Context, args ...any) (*component.Instantiation, error) {
	e, err := h.chain.record(Event{Kind: KindImplement, Name: h.name, Args: args}, KindInstantiate+":"+h.name, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.name, err)
	}
	return &component.Instantiation{Address: e.Addr, TxHash: e.Hash}, nil
}

func (h *handle) Attach(addr common.Address) component.Instance {
	return h.chain.Attach(h.name, addr)
}

type instance struct {
	chain *Chain
	name  string
	addr  common.Address
}

func (i *instance) Name() string            { return i.name }
func (i *instance) Address() common.Address { return i.addr }

func (i *instance) HasMethod(method string) bool {
	i.chain.mu.Lock()
	defer i.chain.mu.Unlock()
	return !i.chain.hidden[i.name+"."+method]
}

func (i *instance) Transact(_ context.Context, method string, args ...any) (common.Hash, error) {
	if !i.HasMethod(method) {
		return common.Hash{}, fmt.Errorf("%w: %s.%s", component.ErrUnknownMethod, i.name, method)
	}
	e, err := i.chain.record(Event{Kind: KindTransact, Name: i.name, Method: method, Args: args, Addr: i.addr},
		KindTransact+":"+i.name+":"+method, false)
	if err != nil {
		return e.Hash, fmt.Errorf("%s.%s: %w", i.name, method, err)
	}

	i.chain.mu.Lock()
	defer i.chain.mu.Unlock()
	switch method {
	case "setAddress":
		if len(args) == 2 {
			key, _ := args[0].(string)
			addr, _ := args[1].(common.Address)
			i.chain.setEntryLocked(i.addr, key, addr)
		}
	case "setAddressBatch":
		if len(args) == 2 {
			keys, _ := args[0].([]string)
			addrs, _ := args[1].([]common.Address)
			for n := range keys {
				if n < len(addrs) {
					i.chain.setEntryLocked(i.addr, keys[n], addrs[n])
				}
			}
		}
	}
	return e.Hash, nil
}

func (i *instance) Call(_ context.Context, method string, args ...any) ([]any, error) {
	if !i.HasMethod(method) {
		return nil, fmt.Errorf("%w: %s.%s", component.ErrUnknownMethod, i.name, method)
	}
	i.chain.mu.Lock()
	defer i.chain.mu.Unlock()
	if i.chain.EmptyReads {
		return nil, fmt.Errorf("%w: %s.%s", component.ErrEmptyResult, i.name, method)
	}
	if method == "getAddr" && len(args) == 1 {
		key, _ := args[0].(string)
		return []any{i.chain.entries[i.addr][key]}, nil
	}
	return []any{}, nil
}
