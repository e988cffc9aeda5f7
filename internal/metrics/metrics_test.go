package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(nil)

	m.DDL("add_column", nil)
	m.DDL("add_column", errors.New("boom"))
	m.DDL("add_column", nil)
	m.SideEffectFailed("drop_index")
	m.Mutation("save_attribute", nil)
	m.CacheInvalidated()
	m.ValueMigrated("to_inline", "cleared")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DDLStatementsTotal.WithLabelValues("add_column", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DDLStatementsTotal.WithLabelValues("add_column", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SideEffectFailuresTotal.WithLabelValues("drop_index")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues("save_attribute", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ColumnCacheInvalidations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValuesMigratedTotal.WithLabelValues("to_inline", "cleared")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DDL("x", nil)
		m.SideEffectFailed("x")
		m.Mutation("x", nil)
		m.CacheInvalidated()
		m.ValueMigrated("x", "y")
	})
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheInvalidated()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "contentschema_column_cache_invalidations_total")
}
