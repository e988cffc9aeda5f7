package payload

import (
	"context"
	"io"

	"github.com/conduit-lang/contentschema/internal/orm/engine"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// Exporter writes the stored schema as a payload
type Exporter struct {
	engine *engine.Engine
}

// NewExporter creates an exporter
func NewExporter(e *engine.Engine) *Exporter {
	return &Exporter{engine: e}
}

// Export writes every stored object type, or only those listed in typeIDs
func (x *Exporter) Export(ctx context.Context, q store.Querier, w io.Writer, format Format, typeIDs ...int) error {
	types, err := x.engine.LoadSchema(ctx, q)
	if err != nil {
		return err
	}
	return Encode(w, format, filterTypes(types, typeIDs))
}

func filterTypes(types []*schema.ObjectType, typeIDs []int) []*schema.ObjectType {
	if len(typeIDs) == 0 {
		return types
	}
	want := make(map[int]bool, len(typeIDs))
	for _, id := range typeIDs {
		want[id] = true
	}
	var out []*schema.ObjectType
	for _, t := range types {
		if want[t.TypeID] {
			out = append(out, t)
		}
	}
	return out
}
