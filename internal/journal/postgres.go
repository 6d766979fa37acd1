package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Postgres is a Repository backed by a shared PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Postgres)(nil)

// OpenPostgres connects to dsn and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to journal: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	err = migrateUp("postgres", "pgx5", driver)
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool. Migrations must already be applied.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) CreateRun(ctx context.Context, r *Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	query := `
		INSERT INTO deploy_runs (id, mode, chain_id, status, phase, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	err := p.pool.QueryRow(ctx, query, r.ID, r.Mode, r.ChainID, string(r.Status), r.Phase, r.Error).
		Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, mode, chain_id, status, phase, error, created_at, updated_at
		FROM deploy_runs WHERE id = $1`
	r, err := scanPostgresRun(p.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (p *Postgres) UpdateRunStatus(ctx context.Context, id uuid.UUID, status Status, phase *string) error {
	query := `
		UPDATE deploy_runs SET status = $2, phase = COALESCE($3, phase), updated_at = NOW()
		WHERE id = $1`
	tag, err := p.pool.Exec(ctx, query, id, string(status), phase)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

func (p *Postgres) SetRunError(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `UPDATE deploy_runs SET error = $2, updated_at = NOW() WHERE id = $1`
	tag, err := p.pool.Exec(ctx, query, id, Ptr(errMsg))
	if err != nil {
		return fmt.Errorf("set run error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

func (p *Postgres) ListRuns(ctx context.Context, chainID int64) ([]*Run, error) {
	query := `
		SELECT id, mode, chain_id, status, phase, error, created_at, updated_at
		FROM deploy_runs WHERE ($1::BIGINT = 0 OR chain_id = $1)
		ORDER BY created_at DESC`
	rows, err := p.pool.Query(ctx, query, chainID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertInstance(ctx context.Context, inst *Instance) error {
	query := `
		INSERT INTO deploy_instances (chain_id, name, address, implementation, instantiation_tx,
			initialization_tx, initialized, run_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (chain_id, name) DO UPDATE SET
			implementation = EXCLUDED.implementation,
			instantiation_tx = CASE WHEN deploy_instances.address = EXCLUDED.address
				THEN COALESCE(EXCLUDED.instantiation_tx, deploy_instances.instantiation_tx)
				ELSE EXCLUDED.instantiation_tx END,
			initialization_tx = CASE WHEN deploy_instances.address = EXCLUDED.address
				THEN COALESCE(EXCLUDED.initialization_tx, deploy_instances.initialization_tx)
				ELSE EXCLUDED.initialization_tx END,
			initialized = CASE WHEN deploy_instances.address = EXCLUDED.address
				THEN deploy_instances.initialized OR EXCLUDED.initialized
				ELSE EXCLUDED.initialized END,
			address = EXCLUDED.address,
			run_id = EXCLUDED.run_id,
			updated_at = NOW()`
	_, err := p.pool.Exec(ctx, query,
		inst.ChainID, inst.Name, inst.Address, inst.Implementation, inst.InstantiationTx,
		inst.InitializationTx, inst.Initialized, inst.RunID,
	)
	if err != nil {
		return fmt.Errorf("upsert instance %s: %w", inst.Name, err)
	}
	return nil
}

func (p *Postgres) GetInstance(ctx context.Context, chainID int64, name string) (*Instance, error) {
	query := `
		SELECT chain_id, name, address, implementation, instantiation_tx, initialization_tx,
			initialized, run_id, updated_at
		FROM deploy_instances WHERE chain_id = $1 AND name = $2`
	inst, err := scanPostgresInstance(p.pool.QueryRow(ctx, query, chainID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", name, err)
	}
	return inst, nil
}

func (p *Postgres) ListInstances(ctx context.Context, chainID int64) ([]*Instance, error) {
	query := `
		SELECT chain_id, name, address, implementation, instantiation_tx, initialization_tx,
			initialized, run_id, updated_at
		FROM deploy_instances WHERE chain_id = $1 ORDER BY name`
	rows, err := p.pool.Query(ctx, query, chainID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []*Instance
	for rows.Next() {
		inst, err := scanPostgresInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkInitialized(ctx context.Context, chainID int64, name, txHash string) error {
	query := `
		UPDATE deploy_instances SET initialized = TRUE, initialization_tx = $3, updated_at = NOW()
		WHERE chain_id = $1 AND name = $2`
	tag, err := p.pool.Exec(ctx, query, chainID, name, Ptr(txHash))
	if err != nil {
		return fmt.Errorf("mark %s initialized: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: instance %s", ErrNotFound, name)
	}
	return nil
}

func (p *Postgres) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO deploy_transactions (run_id, component, phase, hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := p.pool.Exec(ctx, query, tx.RunID, tx.Component, tx.Phase, tx.Hash, tx.CreatedAt); err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

func (p *Postgres) ListTransactions(ctx context.Context, runID uuid.UUID) ([]*Transaction, error) {
	query := `
		SELECT run_id, component, phase, hash, created_at
		FROM deploy_transactions WHERE run_id = $1 ORDER BY id`
	rows, err := p.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.RunID, &tx.Component, &tx.Phase, &tx.Hash, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPostgresRun(row pgx.Row) (*Run, error) {
	var (
		r      Run
		status string
	)
	if err := row.Scan(&r.ID, &r.Mode, &r.ChainID, &status, &r.Phase, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	return &r, nil
}

func scanPostgresInstance(row pgx.Row) (*Instance, error) {
	var inst Instance
	if err := row.Scan(&inst.ChainID, &inst.Name, &inst.Address, &inst.Implementation, &inst.InstantiationTx,
		&inst.InitializationTx, &inst.Initialized, &inst.RunID, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	return &inst, nil
}
