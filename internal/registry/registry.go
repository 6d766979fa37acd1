// Package registry reads and writes the on-chain name to address registry
// that deployed components use to find each other.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/rollupctl/internal/component"
)

// Registry contract methods.
const (
	MethodSetAddress      = "setAddress"
	MethodSetAddressBatch = "setAddressBatch"
	MethodGetAddr         = "getAddr"
)

// ErrIncompatible is returned when a component lacks the registry methods.
var ErrIncompatible = errors.New("registry: incompatible contract")

// Entry is one name to address binding.
type Entry struct {
	Key     string
	Address common.Address
}

// Registry wraps a deployed registry component.
type Registry struct {
	inst   component.Instance
	batch  bool
	logger *slog.Logger
}

// New checks that inst exposes the registry interface. setAddressBatch is
// optional; without it entries are written one at a time.
func New(inst component.Instance, logger *slog.Logger) (*Registry, error) {
	for _, m := range []string{MethodSetAddress, MethodGetAddr} {
		if !inst.HasMethod(m) {
			return nil, fmt.Errorf("%w: %s has no %s method", ErrIncompatible, inst.Name(), m)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{inst: inst, batch: inst.HasMethod(MethodSetAddressBatch), logger: logger}, nil
}

// Address returns the registry contract address.
func (r *Registry) Address() common.Address {
	return r.inst.Address()
}

// SupportsBatch reports whether entries are written in one transaction.
func (r *Registry) SupportsBatch() bool {
	return r.batch
}

// Get returns the address registered under key. Unset keys, and registries
// that answer with no data, read as the zero address.
func (r *Registry) Get(ctx context.Context, key string) (common.Address, error) {
	out, err := r.inst.Call(ctx, MethodGetAddr, key)
	if errors.Is(err, component.ErrEmptyResult) {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("read %s: %w", key, err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("read %s: unexpected %d return values", key, len(out))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("read %s: unexpected return type %T", key, out[0])
	}
	return addr, nil
}

// GetAll reads every key.
func (r *Registry) GetAll(ctx context.Context, keys []string) (map[string]common.Address, error) {
	out := make(map[string]common.Address, len(keys))
	for _, k := range keys {
		addr, err := r.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = addr
	}
	return out, nil
}

// Pending returns the wanted entries not already present in current, in the
// order given.
func Pending(current map[string]common.Address, wanted []Entry) []Entry {
	var out []Entry
	for _, e := range wanted {
		if current[e.Key] != e.Address {
			out = append(out, e)
		}
	}
	return out
}

// SetMany registers entries in one setAddressBatch transaction.
func (r *Registry) SetMany(ctx context.Context, entries []Entry) (common.Hash, error) {
	names := make([]string, len(entries))
	addrs := make([]common.Address, len(entries))
	for i, e := range entries {
		names[i], addrs[i] = e.Key, e.Address
	}
	hash, err := r.inst.Transact(ctx, MethodSetAddressBatch, names, addrs)
	if err != nil {
		return hash, fmt.Errorf("register %d entries: %w", len(entries), err)
	}
	r.logger.Info("registry updated",
		slog.Int("entries", len(entries)),
		slog.String("tx_hash", hash.Hex()),
	)
	return hash, nil
}

// SetOne registers a single entry with setAddress.
func (r *Registry) SetOne(ctx context.Context, key string, addr common.Address) (common.Hash, error) {
	hash, err := r.inst.Transact(ctx, MethodSetAddress, key, addr)
	if err != nil {
		return hash, fmt.Errorf("register %s: %w", key, err)
	}
	r.logger.Info("registry entry set",
		slog.String("key", key),
		slog.String("address", addr.Hex()),
		slog.String("tx_hash", hash.Hex()),
	)
	return hash, nil
}

// Write registers entries, batched when the registry allows it, and returns
// the confirmed transaction hashes in order. When a single write fails the
// hashes confirmed before it are returned with the error.
func (r *Registry) Write(ctx context.Context, entries []Entry) ([]common.Hash, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if r.batch {
		hash, err := r.SetMany(ctx, entries)
		if err != nil {
			return nil, err
		}
		return []common.Hash{hash}, nil
	}

	hashes := make([]common.Hash, 0, len(entries))
	for _, e := range entries {
		hash, err := r.SetOne(ctx, e.Key, e.Address)
		if err != nil {
			return hashes, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}
