// Package migrate installs the store's base tables through versioned
// migrations and compares schemas.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// MigrationsTable records the applied migrations
const MigrationsTable = "schema_migrations"

// statementSeparator joins the statements of a migration when stored
const statementSeparator = ";\n"

// Migration represents a single database migration
type Migration struct {
	Version   int64    // Ordering key
	Name      string   // Human-readable name
	Up        []string // Statements to apply
	Down      []string // Statements to rollback
	Applied   bool
	AppliedAt time.Time
	Breaking  bool // Requires manual review
	DataLoss  bool // May cause data loss
}

// Tracker manages migration history in the database
type Tracker struct {
	db    *sql.DB
	store *store.Store
}

// NewTracker creates a new migration tracker
func NewTracker(db *sql.DB, s *store.Store) *Tracker {
	return &Tracker{db: db, store: s}
}

// Initialize ensures the migrations table exists
func (t *Tracker) Initialize(ctx context.Context) error {
	mapper := t.store.DDL().TypeMapper()
	timestamp, err := mapper.MapKind(schema.KindDate)
	if err != nil {
		return err
	}
	text, err := mapper.MapKind(schema.KindLongText)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  version BIGINT NOT NULL PRIMARY KEY,
  name VARCHAR(255) NOT NULL,
  applied_at %s NOT NULL,
  breaking BOOLEAN NOT NULL DEFAULT FALSE,
  data_loss BOOLEAN NOT NULL DEFAULT FALSE,
  up_sql %s NULL,
  down_sql %s NULL
)`, t.store.Quote(MigrationsTable), timestamp, text, text)

	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", store.ConvertDBError(err))
	}
	return nil
}

const selectMigrations = `SELECT version, name, applied_at, breaking, data_loss, up_sql, down_sql FROM schema_migrations`

type scanner interface {
	Scan(dest ...any) error
}

func scanMigration(row scanner) (*Migration, error) {
	m := &Migration{Applied: true}
	var upSQL, downSQL sql.NullString
	if err := row.Scan(&m.Version, &m.Name, &m.AppliedAt, &m.Breaking, &m.DataLoss, &upSQL, &downSQL); err != nil {
		return nil, err
	}
	m.Up = splitStatements(upSQL.String)
	m.Down = splitStatements(downSQL.String)
	return m, nil
}

// GetApplied returns all applied migrations sorted by version
func (t *Tracker) GetApplied(ctx context.Context) ([]*Migration, error) {
	rows, err := t.db.QueryContext(ctx, selectMigrations+" ORDER BY version ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", store.ConvertDBError(err))
	}
	defer rows.Close()

	var migrations []*Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		migrations = append(migrations, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}

	return migrations, nil
}

// GetLast returns the most recently applied migration, or nil if none exist
func (t *Tracker) GetLast(ctx context.Context) (*Migration, error) {
	m, err := scanMigration(t.db.QueryRowContext(ctx, selectMigrations+" ORDER BY version DESC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last migration: %w", store.ConvertDBError(err))
	}
	return m, nil
}

// IsApplied checks if a migration version has been applied
func (t *Tracker) IsApplied(ctx context.Context, version int64) (bool, error) {
	var count int
	query := t.store.Rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?")
	if err := t.db.QueryRowContext(ctx, query, version).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", store.ConvertDBError(err))
	}
	return count > 0, nil
}

// Record marks a migration as applied within the caller's transaction
func (t *Tracker) Record(ctx context.Context, q store.Querier, m *Migration) error {
	query := t.store.Rebind(`INSERT INTO schema_migrations (version, name, applied_at, breaking, data_loss, up_sql, down_sql)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query, m.Version, m.Name, time.Now().UTC(), m.Breaking, m.DataLoss,
		strings.Join(m.Up, statementSeparator), strings.Join(m.Down, statementSeparator))
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", store.ConvertDBError(err))
	}
	return nil
}

// Remove removes a migration record within the caller's transaction
func (t *Tracker) Remove(ctx context.Context, q store.Querier, version int64) error {
	n, err := t.store.Exec(ctx, q, "DELETE FROM schema_migrations WHERE version = ?", version)
	if err != nil {
		return fmt.Errorf("failed to remove migration: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("migration version %d not found", version)
	}
	return nil
}

// GetPending returns migrations that haven't been applied yet
func (t *Tracker) GetPending(ctx context.Context, all []*Migration) ([]*Migration, error) {
	applied, err := t.GetApplied(ctx)
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[int64]bool)
	for _, m := range applied {
		appliedSet[m.Version] = true
	}

	var pending []*Migration
	for _, m := range all {
		if !appliedSet[m.Version] {
			pending = append(pending, m)
		}
	}

	return pending, nil
}

// GetCount returns the total number of applied migrations
func (t *Tracker) GetCount(ctx context.Context) (int, error) {
	var count int
	if err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get migration count: %w", store.ConvertDBError(err))
	}
	return count, nil
}

func splitStatements(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, statementSeparator)
}
