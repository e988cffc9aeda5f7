package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/orm/store"
	"github.com/conduit-lang/contentschema/internal/orm/transaction"
)

// Runner executes migrations with transaction support
type Runner struct {
	store   *store.Store
	tracker *Tracker
	txm     *transaction.Manager
	logger  *zap.Logger
}

// NewRunner creates a new migration runner
func NewRunner(db *sql.DB, s *store.Store) *Runner {
	return &Runner{
		store:   s,
		tracker: NewTracker(db, s),
		txm:     transaction.NewManager(db, s.Logger()),
		logger:  s.Logger().Named("migrate"),
	}
}

// Tracker returns the runner's migration tracker
func (r *Runner) Tracker() *Tracker {
	return r.tracker
}

// Initialize sets up the migration tracking table
func (r *Runner) Initialize(ctx context.Context) error {
	return r.tracker.Initialize(ctx)
}

// MigrateUp applies all pending migrations and returns how many were applied
func (r *Runner) MigrateUp(ctx context.Context, migrations []*Migration) (int, error) {
	pending, err := r.tracker.GetPending(ctx, migrations)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	if len(pending) == 0 {
		r.logger.Info("no pending migrations")
		return 0, nil
	}

	r.logger.Info("found pending migrations", zap.Int("count", len(pending)))

	for i, migration := range pending {
		if err := r.applyMigration(ctx, migration); err != nil {
			return i, fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
		r.logger.Info("applied migration", zap.Int64("version", migration.Version), zap.String("name", migration.Name))
	}

	return len(pending), nil
}

// MigrateDown rolls back the last migration
func (r *Runner) MigrateDown(ctx context.Context) error {
	last, err := r.tracker.GetLast(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last migration: %w", err)
	}

	if last == nil {
		return fmt.Errorf("no migrations to rollback")
	}

	if len(last.Down) == 0 {
		return fmt.Errorf("migration %s has no down migration", last.Name)
	}

	if err := r.rollbackMigration(ctx, last); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	r.logger.Info("rolled back migration", zap.Int64("version", last.Version), zap.String("name", last.Name))
	return nil
}

// MigrateDownTo rolls back migrations down to a specific version
func (r *Runner) MigrateDownTo(ctx context.Context, targetVersion int64) error {
	applied, err := r.tracker.GetApplied(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var toRollback []*Migration
	for i := len(applied) - 1; i >= 0; i-- {
		if applied[i].Version > targetVersion {
			toRollback = append(toRollback, applied[i])
		}
	}

	if len(toRollback) == 0 {
		r.logger.Info("no migrations to rollback")
		return nil
	}

	for _, migration := range toRollback {
		if len(migration.Down) == 0 {
			return fmt.Errorf("migration %s has no down migration", migration.Name)
		}

		if err := r.rollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("rollback of %s failed: %w", migration.Name, err)
		}

		r.logger.Info("rolled back migration", zap.Int64("version", migration.Version), zap.String("name", migration.Name))
	}

	return nil
}

// applyMigration applies a single migration in a transaction
func (r *Runner) applyMigration(ctx context.Context, migration *Migration) error {
	start := time.Now()

	if err := r.Validate(migration); err != nil {
		return err
	}

	if migration.Breaking {
		r.logger.Warn("migration contains breaking changes", zap.String("name", migration.Name))
	}

	if migration.DataLoss {
		r.logger.Warn("migration may cause data loss", zap.String("name", migration.Name))
	}

	err := r.txm.WithTransaction(ctx, func(tx *transaction.Transaction) error {
		for _, stmt := range migration.Up {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", store.ConvertDBError(err))
			}
		}
		return r.tracker.Record(ctx, tx, migration)
	})
	r.store.InvalidateColumns(ctx)
	if err != nil {
		return err
	}

	r.logger.Debug("migration finished", zap.String("name", migration.Name), zap.Duration("took", time.Since(start)))
	return nil
}

// rollbackMigration rolls back a single migration in a transaction
func (r *Runner) rollbackMigration(ctx context.Context, migration *Migration) error {
	start := time.Now()

	err := r.txm.WithTransaction(ctx, func(tx *transaction.Transaction) error {
		for _, stmt := range migration.Down {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute rollback SQL: %w", store.ConvertDBError(err))
			}
		}
		return r.tracker.Remove(ctx, tx, migration.Version)
	})
	r.store.InvalidateColumns(ctx)
	if err != nil {
		return err
	}

	r.logger.Debug("rollback finished", zap.String("name", migration.Name), zap.Duration("took", time.Since(start)))
	return nil
}

// Status returns the current migration status
func (r *Runner) Status(ctx context.Context, allMigrations []*Migration) (*MigrationStatus, error) {
	applied, err := r.tracker.GetApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending, err := r.tracker.GetPending(ctx, allMigrations)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	var lastApplied *Migration
	if len(applied) > 0 {
		lastApplied = applied[len(applied)-1]
	}

	return &MigrationStatus{
		Total:       len(allMigrations),
		Applied:     applied,
		Pending:     pending,
		LastApplied: lastApplied,
	}, nil
}

// Validate checks that a migration can be applied
func (r *Runner) Validate(migration *Migration) error {
	if migration.Version <= 0 {
		return fmt.Errorf("migration %s has no version", migration.Name)
	}
	if len(migration.Up) == 0 {
		return fmt.Errorf("migration has no up SQL")
	}
	for i, stmt := range migration.Up {
		if stmt == "" {
			return fmt.Errorf("migration %s: statement %d is empty", migration.Name, i)
		}
	}
	return nil
}

// MigrationStatus represents the current state of migrations
type MigrationStatus struct {
	Total       int
	Applied     []*Migration
	Pending     []*Migration
	LastApplied *Migration
}

// Summary returns a human-readable summary
func (s *MigrationStatus) Summary() string {
	return fmt.Sprintf("Total: %d migrations (%d applied, %d pending)",
		s.Total,
		len(s.Applied),
		len(s.Pending))
}
