package journal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a Repository that lives for the duration of the process.
type Memory struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*Run
	order     []uuid.UUID
	instances map[instanceKey]*Instance
	txs       []*Transaction
	now       func() time.Time
}

type instanceKey struct {
	chainID int64
	name    string
}

var _ Repository = (*Memory)(nil)

// NewMemory returns an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{
		runs:      make(map[uuid.UUID]*Run),
		instances: make(map[instanceKey]*Instance),
		now:       time.Now,
	}
}

func (m *Memory) CreateRun(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	now := m.now()
	r.CreatedAt, r.UpdatedAt = now, now
	c := *r
	if _, exists := m.runs[r.ID]; !exists {
		m.order = append(m.order, r.ID)
	}
	m.runs[r.ID] = &c
	return nil
}

func (m *Memory) GetRun(_ context.Context, id uuid.UUID) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	c := *r
	return &c, nil
}

func (m *Memory) UpdateRunStatus(_ context.Context, id uuid.UUID, status Status, phase *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	r.Status = status
	if phase != nil {
		p := *phase
		r.Phase = &p
	}
	r.UpdatedAt = m.now()
	return nil
}

func (m *Memory) SetRunError(_ context.Context, id uuid.UUID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	r.Error = Ptr(errMsg)
	r.UpdatedAt = m.now()
	return nil
}

func (m *Memory) ListRuns(_ context.Context, chainID int64) ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Run
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.runs[m.order[i]]
		if chainID != 0 && r.ChainID != chainID {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (m *Memory) UpsertInstance(_ context.Context, inst *Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := instanceKey{inst.ChainID, inst.Name}
	c := *inst
	if prev, ok := m.instances[key]; ok && prev.Address == inst.Address {
		c.Initialized = prev.Initialized || inst.Initialized
		if c.InitializationTx == nil {
			c.InitializationTx = prev.InitializationTx
		}
		if c.InstantiationTx == nil {
			c.InstantiationTx = prev.InstantiationTx
		}
	}
	c.UpdatedAt = m.now()
	m.instances[key] = &c
	return nil
}

func (m *Memory) GetInstance(_ context.Context, chainID int64, name string) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[instanceKey{chainID, name}]
	if !ok {
		return nil, nil
	}
	c := *inst
	return &c, nil
}

func (m *Memory) ListInstances(_ context.Context, chainID int64) ([]*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Instance
	for k, inst := range m.instances {
		if k.chainID != chainID {
			continue
		}
		c := *inst
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) MarkInitialized(_ context.Context, chainID int64, name, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[instanceKey{chainID, name}]
	if !ok {
		return fmt.Errorf("%w: instance %s", ErrNotFound, name)
	}
	inst.Initialized = true
	inst.InitializationTx = Ptr(txHash)
	inst.UpdatedAt = m.now()
	return nil
}

func (m *Memory) RecordTransaction(_ context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *tx
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.txs = append(m.txs, &c)
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, runID uuid.UUID) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Transaction
	for _, tx := range m.txs {
		if tx.RunID == runID {
			c := *tx
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
