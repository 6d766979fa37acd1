// Package journal records deployment runs and the per-component progress
// they make, so an interrupted deployment can be resumed without repeating
// confirmed work.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("journal: not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one invocation of a deploy, attach or upgrade.
type Run struct {
	ID        uuid.UUID
	Mode      string
	ChainID   int64
	Status    Status
	Phase     *string
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Instance is the recorded progress of one component on one chain.
type Instance struct {
	ChainID          int64
	Name             string
	Address          string
	Implementation   *string
	InstantiationTx  *string
	InitializationTx *string
	Initialized      bool
	RunID            uuid.UUID
	UpdatedAt        time.Time
}

// Transaction is a confirmed transaction sent during a run.
type Transaction struct {
	RunID     uuid.UUID
	Component string
	Phase     string
	Hash      string
	CreatedAt time.Time
}

// Repository stores runs, instances and transactions.
type Repository interface {
	CreateRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status Status, phase *string) error
	SetRunError(ctx context.Context, id uuid.UUID, errMsg string) error
	// ListRuns returns runs newest first. A zero chainID lists every chain.
	ListRuns(ctx context.Context, chainID int64) ([]*Run, error)

	// UpsertInstance records an instance, keeping its initialization state
	// when one is already stored.
	UpsertInstance(ctx context.Context, inst *Instance) error
	// GetInstance returns nil, nil when nothing is recorded for name.
	GetInstance(ctx context.Context, chainID int64, name string) (*Instance, error)
	ListInstances(ctx context.Context, chainID int64) ([]*Instance, error)
	MarkInitialized(ctx context.Context, chainID int64, name, txHash string) error

	RecordTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, runID uuid.UUID) ([]*Transaction, error)

	Close() error
}

// Ptr returns a pointer to s, or nil for an empty string.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
