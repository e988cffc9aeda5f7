// Package quickcol keeps the quick columns of the node table in step with
// the optimized flag of the attribute types. A quick column is a typed,
// indexed, denormalized copy of one attribute's single value per instance,
// mirrored into the node history table when one exists.
package quickcol

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/orm/catalog"
	"github.com/conduit-lang/contentschema/internal/orm/codegen"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// Options controls one synchronization
type Options struct {
	// ForceStructureChange allows creating, rewriting and dropping columns
	ForceStructureChange bool
	// Evacuate copies quick column values back into the generic attribute
	// table before their column is dropped
	Evacuate bool
	// StaleColumns names columns the attribute used before, such as the
	// column of its previous name, that must not survive unless they are
	// the target column
	StaleColumns []string
}

// SyncReport describes the statements a synchronization issued
type SyncReport struct {
	Attribute string
	// Statements counts every structural and data statement issued
	Statements int
	Created    []string
	Dropped    []string
	Backfilled int64
	Evacuated  int64

	failures errs.Group
}

// Failures returns the statements that failed without stopping the rest
func (r *SyncReport) Failures() []error {
	return append([]error(nil), r.failures...)
}

// Err combines the failures
func (r *SyncReport) Err() error {
	return r.failures.Err()
}

// Synchronizer creates, rewrites and drops quick columns
type Synchronizer struct {
	store   *store.Store
	catalog *catalog.Catalog
}

// New creates a synchronizer
func New(s *store.Store, c *catalog.Catalog) *Synchronizer {
	return &Synchronizer{store: s, catalog: c}
}

// target is the column an attribute name should have
type target struct {
	column  string
	kind    schema.DataKind
	typeIDs []int
}

// carry names the values a surviving column holds for types whose
// attribute of this name does not use it
type carry struct {
	column  string
	typeIDs []int
	history bool
}

// plan lists what one synchronization has to change
type plan struct {
	history     bool
	target      *target
	liveKind    *schema.DataKind
	liveTypeIDs []int
	owners      map[string][]int

	carries []carry

	dropWrong        bool
	dropWrongHistory bool
	create           bool
	createHistory    bool
	stale            []string
	staleHistory     []string
}

func (p *plan) changes() []string {
	var c []string
	if p.dropWrong {
		c = append(c, "rewrite column "+p.target.column)
	} else if p.create {
		c = append(c, "create column "+p.target.column)
	}
	if p.dropWrongHistory {
		c = append(c, "rewrite history column "+p.target.column)
	} else if p.createHistory {
		c = append(c, "create history column "+p.target.column)
	}
	for _, col := range p.stale {
		c = append(c, "drop column "+col)
	}
	for _, col := range p.staleHistory {
		c = append(c, "drop history column "+col)
	}
	return c
}

// Sync brings the quick column of the attributes named name to the state
// their stored definitions ask for. When no change is needed nothing is
// issued. When a change is needed but not allowed, a *StructureChangeError
// is returned and nothing is issued. Otherwise every statement is attempted
// even when an earlier one failed; the failures are in the report.
func (s *Synchronizer) Sync(ctx context.Context, q store.Querier, name string, opts Options) (*SyncReport, error) {
	report := &SyncReport{Attribute: name}

	p, err := s.plan(ctx, q, name, opts)
	if err != nil {
		return report, err
	}

	changes := p.changes()
	if len(changes) == 0 && len(p.carries) == 0 {
		return report, nil
	}
	if len(changes) > 0 && !opts.ForceStructureChange {
		return report, &StructureChangeError{Attribute: name, Changes: changes}
	}

	logger := s.store.Logger().With(zap.String("attribute", name))
	if len(changes) > 0 {
		defer s.store.InvalidateColumns(ctx)
		// the DDL is undone with the transaction, and so is any shape cached since
		store.AfterRollback(q, func() { s.store.InvalidateColumns(context.WithoutCancel(ctx)) })
	}

	node := codegen.NodeTable
	nodeHistory := codegen.HistoryTable(codegen.NodeTable)

	// values of columns that stay are moved out before anything is dropped
	for _, c := range p.carries {
		n := s.evacuate(ctx, q, report, logger, name, c.column, *p.liveKind, c.typeIDs, c.history)
		if !c.history {
			report.Evacuated += n
		}
		s.clear(ctx, q, report, logger, c)
	}

	for _, col := range p.stale {
		if opts.Evacuate && p.liveKind != nil {
			report.Evacuated += s.evacuate(ctx, q, report, logger, name, col, *p.liveKind, p.liveTypeIDs, false)
		}
		s.drop(ctx, q, report, logger, node, col)
	}
	for _, col := range p.staleHistory {
		if opts.Evacuate && p.liveKind != nil {
			s.evacuate(ctx, q, report, logger, name, col, *p.liveKind, p.liveTypeIDs, true)
		}
		s.drop(ctx, q, report, logger, nodeHistory, col)
	}

	if t := p.target; t != nil {
		if p.dropWrong {
			s.drop(ctx, q, report, logger, node, t.column)
		}
		if p.create {
			s.create(ctx, q, report, logger, node, t)
		}
		if p.dropWrongHistory {
			s.drop(ctx, q, report, logger, nodeHistory, t.column)
		}
		if p.createHistory {
			s.create(ctx, q, report, logger, nodeHistory, t)
		}

		if p.create {
			report.Backfilled += s.backfill(ctx, q, report, logger, name, t, false)
		}
		if p.createHistory {
			s.backfill(ctx, q, report, logger, name, t, true)
		}
	}

	logger.Info("synchronized quick column",
		zap.Int("statements", report.Statements),
		zap.Strings("created", report.Created),
		zap.Strings("dropped", report.Dropped),
		zap.Int64("backfilled", report.Backfilled),
		zap.Int64("evacuated", report.Evacuated),
		zap.Int("failures", len(report.failures)))
	return report, nil
}

func (s *Synchronizer) plan(ctx context.Context, q store.Querier, name string, opts Options) (*plan, error) {
	attrs, err := s.catalog.AttributesNamed(ctx, q, name)
	if err != nil {
		return nil, err
	}
	history, err := s.store.HasHistory(ctx, q)
	if err != nil {
		return nil, err
	}

	p := &plan{history: history}
	if len(attrs) > 0 {
		kind := attrs[0].Kind
		p.liveKind = &kind
	}
	for _, a := range attrs {
		p.liveTypeIDs = append(p.liveTypeIDs, a.ObjectTypeID)
		if !a.Optimized {
			continue
		}
		if p.target == nil {
			p.target = &target{column: a.QuickColumn(), kind: a.Kind}
		} else if p.target.column != a.QuickColumn() || p.target.kind != a.Kind {
			s.store.Logger().Warn("optimized attributes disagree on their quick column",
				zap.String("attribute", name),
				zap.Int("type_id", a.ObjectTypeID),
				zap.String("column", a.QuickColumn()),
				zap.String("using", p.target.column))
		}
		p.target.typeIDs = append(p.target.typeIDs, a.ObjectTypeID)
	}

	candidates := map[string]bool{schema.DeriveQuickColumnName(name): true}
	for _, col := range opts.StaleColumns {
		if col != "" {
			candidates[col] = true
		}
	}
	if p.target != nil {
		delete(candidates, p.target.column)

		p.create, p.dropWrong, err = s.inspect(ctx, q, codegen.NodeTable, p.target)
		if err != nil {
			return nil, err
		}
		if history {
			p.createHistory, p.dropWrongHistory, err = s.inspect(ctx, q, codegen.HistoryTable(codegen.NodeTable), p.target)
			if err != nil {
				return nil, err
			}
		}
	}

	if p.target != nil && opts.Evacuate {
		if !p.create {
			if err := s.planCarry(ctx, q, p, p.target.column, false); err != nil {
				return nil, err
			}
		}
		if history && !p.createHistory {
			if err := s.planCarry(ctx, q, p, p.target.column, true); err != nil {
				return nil, err
			}
		}
	}

	for _, col := range sortedKeys(candidates) {
		for _, inHistory := range []bool{false, true} {
			if inHistory && !history {
				continue
			}
			table := codegen.NodeTable
			if inHistory {
				table = codegen.HistoryTable(table)
			}
			exists, err := s.store.ColumnExists(ctx, q, table, col)
			if err != nil {
				return nil, err
			}
			if !exists {
				continue
			}

			owners, err := s.owners(ctx, q, p, col)
			if err != nil {
				return nil, err
			}
			if len(owners) > 0 {
				// the column serves attributes of another name
				if opts.Evacuate {
					if err := s.planCarry(ctx, q, p, col, inHistory); err != nil {
						return nil, err
					}
				}
				continue
			}
			if inHistory {
				p.staleHistory = append(p.staleHistory, col)
			} else {
				p.stale = append(p.stale, col)
			}
		}
	}
	return p, nil
}

// owners returns the types whose optimized attributes use column
func (s *Synchronizer) owners(ctx context.Context, q store.Querier, p *plan, column string) ([]int, error) {
	if p.owners == nil {
		all, err := s.catalog.AllAttributes(ctx, q)
		if err != nil {
			return nil, err
		}
		p.owners = make(map[string][]int)
		for _, a := range all {
			if a.Optimized {
				p.owners[a.QuickColumn()] = append(p.owners[a.QuickColumn()], a.ObjectTypeID)
			}
		}
	}
	return p.owners[column], nil
}

// planCarry adds a carry for the live types of the name that hold values
// in column without owning it
func (s *Synchronizer) planCarry(ctx context.Context, q store.Querier, p *plan, column string, history bool) error {
	if p.liveKind == nil {
		return nil
	}
	owners, err := s.owners(ctx, q, p, column)
	if err != nil {
		return err
	}
	var typeIDs []int
	for _, id := range p.liveTypeIDs {
		if !slices.Contains(owners, id) {
			typeIDs = append(typeIDs, id)
		}
	}
	if len(typeIDs) == 0 {
		return nil
	}

	table := codegen.NodeTable
	if history {
		table = codegen.HistoryTable(table)
	}
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND type_id IN (%s)`,
		s.store.Quote(table), s.store.Quote(column), placeholders(len(typeIDs)))
	if err := q.QueryRowContext(ctx, s.store.Rebind(query), ints(typeIDs)...).Scan(&n); err != nil {
		return fmt.Errorf("count values of %s.%s: %w", table, column, store.ConvertDBError(err))
	}
	if n > 0 {
		p.carries = append(p.carries, carry{column: column, typeIDs: typeIDs, history: history})
	}
	return nil
}

// inspect compares a table's column with the target definition
func (s *Synchronizer) inspect(ctx context.Context, q store.Querier, table string, t *target) (create, dropWrong bool, err error) {
	reported, exists, err := s.store.ColumnType(ctx, q, table, t.column)
	if err != nil {
		return false, false, err
	}
	if !exists {
		return true, false, nil
	}
	if s.store.DDL().TypeMapper().Matches(reported, t.kind) {
		return false, false, nil
	}
	s.store.Logger().Info("quick column has the wrong definition",
		zap.String("table", table),
		zap.String("column", t.column),
		zap.String("reported", reported),
		zap.String("kind", t.kind.String()))
	return true, true, nil
}

// exec issues one statement in isolation. A failure is recorded and logged.
func (s *Synchronizer) exec(ctx context.Context, q store.Querier, report *SyncReport, logger *zap.Logger, op, stmt string, args ...any) (int64, bool) {
	report.Statements++

	var affected int64
	err := store.Isolated(ctx, q, func(q store.Querier) error {
		n, err := s.store.Exec(ctx, q, stmt, args...)
		affected = n
		return err
	})
	s.store.Metrics().DDL(op, err)
	if err != nil {
		report.failures.Add(fmt.Errorf("%s: %w", op, err))
		s.store.Metrics().SideEffectFailed("quick_column_" + op)
		logger.Warn("quick column statement failed", zap.String("op", op), zap.String("statement", stmt), zap.Error(err))
		return 0, false
	}
	return affected, true
}

func (s *Synchronizer) drop(ctx context.Context, q store.Querier, report *SyncReport, logger *zap.Logger, table, column string) {
	ddl := s.store.DDL()
	s.exec(ctx, q, report, logger, "drop_index", ddl.DropIndex(table, column))
	if _, ok := s.exec(ctx, q, report, logger, "drop_column", ddl.DropColumn(table, column)); ok {
		report.Dropped = append(report.Dropped, table+"."+column)
	}
}

// clear nulls the values a carry moved out
func (s *Synchronizer) clear(ctx context.Context, q store.Querier, report *SyncReport, logger *zap.Logger, c carry) {
	table := codegen.NodeTable
	if c.history {
		table = codegen.HistoryTable(table)
	}
	stmt := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = NULL WHERE %[2]s IS NOT NULL AND type_id IN (%[3]s)`,
		s.store.Quote(table), s.store.Quote(c.column), placeholders(len(c.typeIDs)))
	s.exec(ctx, q, report, logger, "clear", stmt, ints(c.typeIDs)...)
}

func (s *Synchronizer) create(ctx context.Context, q store.Querier, report *SyncReport, logger *zap.Logger, table string, t *target) {
	ddl := s.store.DDL()
	stmt, err := ddl.AddColumn(table, t.column, t.kind)
	if err != nil {
		report.failures.Add(err)
		return
	}
	if _, ok := s.exec(ctx, q, report, logger, "add_column", stmt); !ok {
		return
	}
	report.Created = append(report.Created, table+"."+t.column)
	s.exec(ctx, q, report, logger, "create_index", ddl.CreateIndex(table, t.column, t.kind))
}

// backfill copies the single value of every instance from the generic
// attribute table into the quick column
func (s *Synchronizer) backfill(ctx context.Context, q store.Querier, report *SyncReport, logger *zap.Logger, name string, t *target, history bool) int64 {
	nodeTable, attrTable, versionMatch := codegen.NodeTable, codegen.AttributeTable, ""
	if history {
		nodeTable = codegen.HistoryTable(nodeTable)
		attrTable = codegen.HistoryTable(attrTable)
		versionMatch = fmt.Sprintf(" AND a.version_time = %s.version_time", s.store.Quote(nodeTable))
	}

	stmt := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = (SELECT a.%[3]s FROM %[4]s a
		WHERE a.node_id = %[1]s.id AND a.name = ? AND (a.ordinal IS NULL OR a.ordinal = 0)%[5]s LIMIT 1)
		WHERE %[1]s.type_id IN (%[6]s)`,
		s.store.Quote(nodeTable), s.store.Quote(t.column), t.kind.ValueColumn(), s.store.Quote(attrTable),
		versionMatch, placeholders(len(t.typeIDs)))

	args := append([]any{name}, ints(t.typeIDs)...)
	n, _ := s.exec(ctx, q, report, logger, "backfill", stmt, args...)
	return n
}

// evacuate copies a quick column's values back into the generic attribute
// table: existing single-value rows are updated and missing rows inserted
func (s *Synchronizer) evacuate(ctx context.Context, q store.Querier, report *SyncReport, logger *zap.Logger,
	name, column string, kind schema.DataKind, typeIDs []int, history bool) int64 {

	nodeTable, attrTable := codegen.NodeTable, codegen.AttributeTable
	versionMatch, versionColumn, versionValue := "", "", ""
	if history {
		nodeTable = codegen.HistoryTable(nodeTable)
		attrTable = codegen.HistoryTable(attrTable)
		versionMatch = " AND n.version_time = a2.version_time"
		versionColumn = ", version_time"
		versionValue = ", n.version_time"
	}

	qn, qa, qc := s.store.Quote(nodeTable), s.store.Quote(attrTable), s.store.Quote(column)
	value := kind.ValueColumn()
	in := placeholders(len(typeIDs))

	update := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = (SELECT n.%[3]s FROM %[4]s n
		WHERE n.id = %[1]s.node_id%[5]s)
		WHERE name = ? AND (ordinal IS NULL OR ordinal = 0) AND EXISTS (SELECT 1 FROM %[4]s n
		WHERE n.id = %[1]s.node_id AND n.%[3]s IS NOT NULL AND n.type_id IN (%[6]s)%[5]s)`,
		qa, value, qc, qn, strings.ReplaceAll(versionMatch, "a2.", qa+"."), in)
	args := append([]any{name}, ints(typeIDs)...)
	updated, _ := s.exec(ctx, q, report, logger, "evacuate", update, args...)

	insert := fmt.Sprintf(`INSERT INTO %[1]s (node_id, name, %[2]s%[5]s)
		SELECT n.id, ?, n.%[3]s%[6]s FROM %[4]s n
		WHERE n.%[3]s IS NOT NULL AND n.type_id IN (%[7]s) AND NOT EXISTS (SELECT 1 FROM %[1]s a2
		WHERE a2.node_id = n.id AND a2.name = ?%[8]s)`,
		qa, value, qc, qn, versionColumn, versionValue, in, versionMatch)
	args = append([]any{name}, ints(typeIDs)...)
	args = append(args, name)
	inserted, _ := s.exec(ctx, q, report, logger, "evacuate", insert, args...)

	return updated + inserted
}

func placeholders(n int) string {
	if n == 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func ints(values []int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
