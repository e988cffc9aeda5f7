package codegen

import (
	"strings"
	"testing"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

func TestDDLGenerator_AddDropColumn(t *testing.T) {
	g := NewDDLGenerator(Postgres, 0)

	stmt, err := g.AddColumn("node", "quick_title", schema.KindShortText)
	if err != nil {
		t.Fatalf("AddColumn() error = %v", err)
	}
	if stmt != `ALTER TABLE "node" ADD COLUMN "quick_title" VARCHAR(255) NULL` {
		t.Errorf("AddColumn() = %s", stmt)
	}

	if got := g.DropColumn("node_nodeversion", "quick_title"); got != `ALTER TABLE "node_nodeversion" DROP COLUMN "quick_title"` {
		t.Errorf("DropColumn() = %s", got)
	}

	if _, err := g.AddColumn("node", "quick_x", schema.DataKind(42)); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestDDLGenerator_CreateIndex(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		kind    schema.DataKind
		want    string
	}{
		{"pg short", Postgres, schema.KindShortText, `CREATE INDEX "idx_node_quick_c" ON "node" ("quick_c")`},
		{"pg text prefix", Postgres, schema.KindLongText, `CREATE INDEX "idx_node_quick_c" ON "node" ((substr("quick_c", 1, 100)))`},
		{"mysql blob prefix", MySQL, schema.KindBinary, "CREATE INDEX `idx_node_quick_c` ON `node` (`quick_c`(100))"},
		{"sqlite text", SQLite, schema.KindLongText, `CREATE INDEX "idx_node_quick_c" ON "node" ("quick_c")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewDDLGenerator(tt.dialect, 100)
			if got := g.CreateIndex("node", "quick_c", tt.kind); got != tt.want {
				t.Errorf("CreateIndex() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDDLGenerator_DropIndex(t *testing.T) {
	if got := NewDDLGenerator(SQLite, 0).DropIndex("node", "quick_c"); got != `DROP INDEX "idx_node_quick_c"` {
		t.Errorf("DropIndex() = %s", got)
	}
	if got := NewDDLGenerator(MySQL, 0).DropIndex("node", "quick_c"); got != "DROP INDEX `idx_node_quick_c` ON `node`" {
		t.Errorf("DropIndex() = %s", got)
	}
}

func TestIndexName_Truncates(t *testing.T) {
	long := strings.Repeat("x", 80)
	name := IndexName("node_nodeversion", long)
	if len(name) != maxIdentifierLength {
		t.Errorf("IndexName() length = %d, want %d", len(name), maxIdentifierLength)
	}
	if name != IndexName("node_nodeversion", long) {
		t.Error("IndexName() must be deterministic")
	}
	if IndexName("node", long) == IndexName("node_nodeversion", long) {
		t.Error("truncated names of different tables must differ")
	}
}

func TestDDLGenerator_BaseTables(t *testing.T) {
	g := NewDDLGenerator(SQLite, 0)

	without := g.BaseTables(false)
	with := g.BaseTables(true)
	if len(with) <= len(without) {
		t.Fatalf("history tables missing: %d <= %d", len(with), len(without))
	}

	joined := strings.Join(with, "\n")
	for _, table := range []string{"object_type", "attribute_type", "node", "attribute", "node_nodeversion", "attribute_nodeversion"} {
		if !strings.Contains(joined, `"`+table+`"`) {
			t.Errorf("table %s not created", table)
		}
	}
	if strings.Contains(strings.Join(without, "\n"), HistorySuffix) {
		t.Error("history tables generated without history")
	}
}

func TestHistoryTable(t *testing.T) {
	if got := HistoryTable("node"); got != "node_nodeversion" {
		t.Errorf("HistoryTable() = %s", got)
	}
}
