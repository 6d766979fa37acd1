package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Repository stored in a local SQLite file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLite)(nil)

// OpenSQLite opens or creates the journal at path and applies migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); path != ":memory:" && !strings.HasPrefix(path, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to journal: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	if err := migrateUp("sqlite", "sqlite3", driver); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) CreateRun(ctx context.Context, r *Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, chain_id, status, phase, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Mode, r.ChainID, string(r.Status), r.Phase, r.Error, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *SQLite) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, chain_id, status, phase, error, created_at, updated_at
		FROM runs WHERE id = ?`, id.String())
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *SQLite) UpdateRunStatus(ctx context.Context, id uuid.UUID, status Status, phase *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, phase = COALESCE(?, phase), updated_at = ?
		WHERE id = ?`,
		string(status), phase, s.now().UnixNano(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return requireRow(res, "run", id.String())
}

func (s *SQLite) SetRunError(ctx context.Context, id uuid.UUID, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET error = ?, updated_at = ? WHERE id = ?`,
		Ptr(errMsg), s.now().UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("set run error: %w", err)
	}
	return requireRow(res, "run", id.String())
}

func (s *SQLite) ListRuns(ctx context.Context, chainID int64) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, chain_id, status, phase, error, created_at, updated_at
		FROM runs WHERE (? = 0 OR chain_id = ?)
		ORDER BY created_at DESC, rowid DESC`, chainID, chainID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertInstance(ctx context.Context, inst *Instance) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (chain_id, name, address, implementation, instantiation_tx,
			initialization_tx, initialized, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, name) DO UPDATE SET
			implementation = excluded.implementation,
			instantiation_tx = CASE WHEN instances.address = excluded.address
				THEN COALESCE(excluded.instantiation_tx, instances.instantiation_tx)
				ELSE excluded.instantiation_tx END,
			initialization_tx = CASE WHEN instances.address = excluded.address
				THEN COALESCE(excluded.initialization_tx, instances.initialization_tx)
				ELSE excluded.initialization_tx END,
			initialized = CASE WHEN instances.address = excluded.address
				THEN MAX(instances.initialized, excluded.initialized)
				ELSE excluded.initialized END,
			address = excluded.address,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`,
		inst.ChainID, inst.Name, inst.Address, inst.Implementation, inst.InstantiationTx,
		inst.InitializationTx, inst.Initialized, inst.RunID.String(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert instance %s: %w", inst.Name, err)
	}
	return nil
}

func (s *SQLite) GetInstance(ctx context.Context, chainID int64, name string) (*Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chain_id, name, address, implementation, instantiation_tx, initialization_tx,
			initialized, run_id, updated_at
		FROM instances WHERE chain_id = ? AND name = ?`, chainID, name)
	inst, err := scanSQLiteInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", name, err)
	}
	return inst, nil
}

func (s *SQLite) ListInstances(ctx context.Context, chainID int64) ([]*Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_id, name, address, implementation, instantiation_tx, initialization_tx,
			initialized, run_id, updated_at
		FROM instances WHERE chain_id = ? ORDER BY name`, chainID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []*Instance
	for rows.Next() {
		inst, err := scanSQLiteInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *SQLite) MarkInitialized(ctx context.Context, chainID int64, name, txHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE instances SET initialized = 1, initialization_tx = ?, updated_at = ?
		WHERE chain_id = ? AND name = ?`,
		Ptr(txHash), s.now().UnixNano(), chainID, name,
	)
	if err != nil {
		return fmt.Errorf("mark %s initialized: %w", name, err)
	}
	return requireRow(res, "instance", name)
}

func (s *SQLite) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (run_id, component, phase, hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		tx.RunID.String(), tx.Component, tx.Phase, tx.Hash, tx.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

func (s *SQLite) ListTransactions(ctx context.Context, runID uuid.UUID) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, component, phase, hash, created_at
		FROM transactions WHERE run_id = ? ORDER BY id`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var (
			tx      Transaction
			id      string
			created int64
		)
		if err := rows.Scan(&id, &tx.Component, &tx.Phase, &tx.Hash, &created); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.CreatedAt = time.Unix(0, created)
		out = append(out, &tx)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner) (*Run, error) {
	var (
		r                Run
		id, status       string
		created, updated int64
	)
	if err := row.Scan(&id, &r.Mode, &r.ChainID, &status, &r.Phase, &r.Error, &created, &updated); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	r.ID = parsed
	r.Status = Status(status)
	r.CreatedAt = time.Unix(0, created)
	r.UpdatedAt = time.Unix(0, updated)
	return &r, nil
}

func scanSQLiteInstance(row rowScanner) (*Instance, error) {
	var (
		inst    Instance
		runID   string
		updated int64
	)
	if err := row.Scan(&inst.ChainID, &inst.Name, &inst.Address, &inst.Implementation, &inst.InstantiationTx,
		&inst.InitializationTx, &inst.Initialized, &runID, &updated); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(runID)
	if err != nil {
		return nil, err
	}
	inst.RunID = parsed
	inst.UpdatedAt = time.Unix(0, updated)
	return &inst, nil
}

func requireRow(res sql.Result, what, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, key)
	}
	return nil
}
