// Package metrics provides the Prometheus metrics of the schema engine
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	DDLStatementsTotal       *prometheus.CounterVec
	SideEffectFailuresTotal  *prometheus.CounterVec
	MutationsTotal           *prometheus.CounterVec
	ColumnCacheInvalidations prometheus.Counter
	ValuesMigratedTotal      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to get isolated counters.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DDLStatementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentschema_ddl_statements_total",
				Help: "Structural statements issued, by operation and status",
			},
			[]string{"op", "status"},
		),
		SideEffectFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentschema_side_effect_failures_total",
				Help: "Best-effort side effects that failed without failing their operation",
			},
			[]string{"effect"},
		),
		MutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentschema_mutations_total",
				Help: "Schema mutations, by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		ColumnCacheInvalidations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "contentschema_column_cache_invalidations_total",
				Help: "Times the column cache was cleared after a structural change",
			},
		),
		ValuesMigratedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentschema_values_migrated_total",
				Help: "Attribute values moved between inline and external storage",
			},
			[]string{"direction", "outcome"},
		),
	}
}

// DDL records one structural statement
func (m *Metrics) DDL(op string, err error) {
	if m == nil {
		return
	}
	m.DDLStatementsTotal.WithLabelValues(op, status(err)).Inc()
}

// SideEffectFailed records a failed best-effort step
func (m *Metrics) SideEffectFailed(effect string) {
	if m == nil {
		return
	}
	m.SideEffectFailuresTotal.WithLabelValues(effect).Inc()
}

// Mutation records a schema mutation
func (m *Metrics) Mutation(op string, err error) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(op, status(err)).Inc()
}

// CacheInvalidated records a column cache invalidation
func (m *Metrics) CacheInvalidated() {
	if m == nil {
		return
	}
	m.ColumnCacheInvalidations.Inc()
}

// ValueMigrated records one migrated value
func (m *Metrics) ValueMigrated(direction, outcome string) {
	if m == nil {
		return
	}
	m.ValuesMigratedTotal.WithLabelValues(direction, outcome).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
