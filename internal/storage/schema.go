package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// SchemaManager creates the relational schema on first use.
//
// Initialization is idempotent and guarded by a cheap catalog probe: if the
// probe table exists the schema is assumed complete and no DDL runs. The
// result is cached for the lifetime of the manager; Invalidate drops the
// cache so the next EnsureInitialized probes again (used when a query
// reports a missing table).
type SchemaManager struct {
	db         *sql.DB
	probeQuery string
	probeTable string
	statements []string

	mu          sync.Mutex
	initialized atomic.Bool
}

// SchemaDefinition describes one backend's schema.
type SchemaDefinition struct {
	// ProbeQuery must return a row iff the table named by its single
	// parameter exists, e.g. "SELECT 1 FROM sqlite_master WHERE type='table' AND name = ?".
	ProbeQuery string

	// ProbeTable is created by the last statement, so its presence implies
	// every earlier statement succeeded.
	ProbeTable string

	// Statements are applied in order inside one transaction.
	Statements []string
}

// NewSchemaManager creates a SchemaManager for db.
func NewSchemaManager(db *sql.DB, def SchemaDefinition) (*SchemaManager, error) {
	if db == nil {
		return nil, fmt.Errorf("schema: database connection is required")
	}
	if def.ProbeQuery == "" || def.ProbeTable == "" {
		return nil, fmt.Errorf("schema: probe query and table are required")
	}
	if len(def.Statements) == 0 {
		return nil, fmt.Errorf("schema: no statements")
	}
	return &SchemaManager{
		db:         db,
		probeQuery: def.ProbeQuery,
		probeTable: def.ProbeTable,
		statements: def.Statements,
	}, nil
}

// EnsureInitialized creates the schema if it is absent.
// After the first success it returns immediately without touching the database.
func (m *SchemaManager) EnsureInitialized(ctx context.Context) error {
	if m.initialized.Load() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized.Load() {
		return nil
	}

	exists, err := m.probe(ctx)
	if err != nil {
		return &SchemaError{Op: "probe", Err: err}
	}
	if !exists {
		if err := m.apply(ctx); err != nil {
			return &SchemaError{Op: "apply", Err: err}
		}
	}

	m.initialized.Store(true)
	return nil
}

// Initialized reports whether the schema is known to exist.
func (m *SchemaManager) Initialized() bool {
	return m.initialized.Load()
}

// Invalidate forgets the cached initialization result.
func (m *SchemaManager) Invalidate() {
	m.initialized.Store(false)
}

// Repair applies every statement without probing first. It recreates
// individual objects dropped from an otherwise initialized database and
// therefore requires idempotent statements (IF NOT EXISTS and the like).
func (m *SchemaManager) Repair(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initialized.Store(false)
	if err := m.apply(ctx); err != nil {
		return &SchemaError{Op: "repair", Err: err}
	}
	m.initialized.Store(true)
	return nil
}

func (m *SchemaManager) probe(ctx context.Context) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx, m.probeQuery, m.probeTable).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *SchemaManager) apply(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
