// Package transaction runs units of schema work inside database transactions,
// with savepoint nesting, hooks deferred until commit, and retry of
// deadlocked or busy transactions.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/logging"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

var (
	// ErrDeadlock is returned when every retry of a transaction deadlocked
	ErrDeadlock = errors.New("deadlock detected")
	// ErrTransactionTimeout is returned when a transaction times out
	ErrTransactionTimeout = errors.New("transaction timeout")
	// ErrTransactionDone is returned when committing or rolling back twice
	ErrTransactionDone = errors.New("transaction already finished")
)

// savepointCounter keeps savepoint names unique across transactions
var savepointCounter atomic.Uint64

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// Default uses the database's default level
	Default IsolationLevel = iota
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the SQL name of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "DEFAULT"
	}
}

func (l IsolationLevel) options() *sql.TxOptions {
	switch l {
	case ReadCommitted:
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	case RepeatableRead:
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case Serializable:
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	default:
		return nil
	}
}

// Transaction is a database transaction or a savepoint nested in one. It
// satisfies store.Querier, store.CommitHooker and store.RollbackHooker.
type Transaction struct {
	tx            *sql.Tx
	parent        *Transaction
	level         int
	savepointName string
	finished      atomic.Bool
	logger        *zap.Logger

	mu            sync.Mutex
	hooks         []func()
	rollbackHooks []func()
}

// Manager begins transactions on a database
type Manager struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewManager creates a transaction manager
func NewManager(db *sql.DB, logger *zap.Logger) *Manager {
	return &Manager{db: db, logger: logging.OrNop(logger)}
}

// DB returns the managed database
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Begin starts a transaction at the database's default isolation level
func (m *Manager) Begin(ctx context.Context) (*Transaction, error) {
	return m.BeginWithIsolation(ctx, Default)
}

// BeginWithIsolation starts a transaction at the given isolation level
func (m *Manager) BeginWithIsolation(ctx context.Context, level IsolationLevel) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, level.options())
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx, logger: m.logger}, nil
}

// WithTransaction runs fn in a transaction, committing when it returns nil
// and rolling back otherwise
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	return m.WithTransactionIsolation(ctx, Default, fn)
}

// WithTransactionIsolation runs fn in a transaction at the given isolation level
func (m *Manager) WithTransactionIsolation(ctx context.Context, level IsolationLevel, fn func(tx *Transaction) error) error {
	tx, err := m.BeginWithIsolation(ctx, level)
	if err != nil {
		return err
	}
	return run(tx, fn)
}

func run(tx *Transaction, fn func(tx *Transaction) error) error {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Tx returns the underlying sql.Tx
func (t *Transaction) Tx() *sql.Tx {
	return t.tx
}

// Level returns the nesting depth, zero for a top-level transaction
func (t *Transaction) Level() int {
	return t.level
}

// ExecContext runs a statement in the transaction
func (t *Transaction) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query in the transaction
func (t *Transaction) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query in the transaction
func (t *Transaction) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// OnCommit registers fn to run after the top-level transaction commits.
// Hooks of a rolled back transaction or savepoint never run.
func (t *Transaction) OnCommit(fn func()) {
	t.mu.Lock()
	t.hooks = append(t.hooks, fn)
	t.mu.Unlock()
}

// OnRollback registers fn to run when the work of t is undone: when t or
// a transaction enclosing it rolls back, or when the top-level commit fails
func (t *Transaction) OnRollback(fn func()) {
	t.mu.Lock()
	t.rollbackHooks = append(t.rollbackHooks, fn)
	t.mu.Unlock()
}

func (t *Transaction) takeHooks() (commit, rollback []func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	commit, rollback = t.hooks, t.rollbackHooks
	t.hooks, t.rollbackHooks = nil, nil
	return commit, rollback
}

// Commit commits the transaction, or releases the savepoint of a nested one
// and hands its hooks to the parent
func (t *Transaction) Commit() error {
	if !t.finished.CompareAndSwap(false, true) {
		return ErrTransactionDone
	}

	if t.level > 0 {
		commit, rollback := t.takeHooks()
		if _, err := t.tx.Exec("RELEASE SAVEPOINT " + t.savepointName); err != nil {
			t.runHooks(rollback)
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
		for _, hook := range commit {
			t.parent.OnCommit(hook)
		}
		for _, hook := range rollback {
			t.parent.OnRollback(hook)
		}
		return nil
	}

	commit, rollback := t.takeHooks()
	if err := t.tx.Commit(); err != nil {
		t.runHooks(rollback)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.runHooks(commit)
	return nil
}

func (t *Transaction) runHooks(hooks []func()) {
	for _, hook := range hooks {
		t.runHook(hook)
	}
}

func (t *Transaction) runHook(hook func()) {
	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("transaction hook panicked", zap.Any("panic", p))
		}
	}()
	hook()
}

// Rollback rolls back the transaction, or the savepoint of a nested one,
// and runs the rollback hooks. Rolling back a finished transaction is a no-op.
func (t *Transaction) Rollback() error {
	if !t.finished.CompareAndSwap(false, true) {
		return nil
	}
	_, rollback := t.takeHooks()
	defer t.runHooks(rollback)

	if t.level > 0 {
		if _, err := t.tx.Exec("ROLLBACK TO SAVEPOINT " + t.savepointName); err != nil {
			return fmt.Errorf("failed to rollback to savepoint: %w", err)
		}
		return nil
	}

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// BeginNested opens a savepoint inside the transaction
func (t *Transaction) BeginNested(ctx context.Context) (*Transaction, error) {
	name := fmt.Sprintf("sp_%d_%d", savepointCounter.Add(1), t.level+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}
	return &Transaction{
		tx:            t.tx,
		parent:        t,
		level:         t.level + 1,
		savepointName: name,
		logger:        t.logger,
	}, nil
}

// Nested runs fn in a savepoint, releasing it when fn returns nil and
// rolling back to it otherwise
func (t *Transaction) Nested(ctx context.Context, fn func(tx *Transaction) error) error {
	sp, err := t.BeginNested(ctx)
	if err != nil {
		return err
	}
	return run(sp, fn)
}

// IsFinished reports whether the transaction was committed or rolled back
func (t *Transaction) IsFinished() bool {
	return t.finished.Load()
}

// Savepoint runs fn in a savepoint so that a failing statement does not
// abort the enclosing transaction. It implements store.Savepointer.
func (t *Transaction) Savepoint(ctx context.Context, fn func(q store.Querier) error) error {
	return t.Nested(ctx, func(sp *Transaction) error { return fn(sp) })
}
