package codegen

import (
	"testing"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

func TestTypeMapper_MapKind(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		kind     schema.DataKind
		expected string
	}{
		{"pg short text", Postgres, schema.KindShortText, "VARCHAR(255)"},
		{"pg long text", Postgres, schema.KindLongText, "TEXT"},
		{"pg int", Postgres, schema.KindInteger, "INTEGER"},
		{"pg long", Postgres, schema.KindLongInteger, "BIGINT"},
		{"pg double", Postgres, schema.KindDouble, "DOUBLE PRECISION"},
		{"pg date", Postgres, schema.KindDate, "TIMESTAMP"},
		{"pg binary", Postgres, schema.KindBinary, "BYTEA"},
		{"pg link", Postgres, schema.KindObjectLink, "VARCHAR(255)"},
		{"sqlite double", SQLite, schema.KindDouble, "DOUBLE"},
		{"sqlite binary", SQLite, schema.KindBinary, "BLOB"},
		{"mysql long text", MySQL, schema.KindLongText, "LONGTEXT"},
		{"mysql int", MySQL, schema.KindInteger, "INT"},
		{"mysql date", MySQL, schema.KindDate, "DATETIME"},
		{"mysql binary", MySQL, schema.KindBinary, "LONGBLOB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewTypeMapper(tt.dialect).MapKind(tt.kind)
			if err != nil {
				t.Fatalf("MapKind() error = %v", err)
			}
			if result != tt.expected {
				t.Errorf("MapKind() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestTypeMapper_UnknownKind(t *testing.T) {
	if _, err := NewTypeMapper(Postgres).MapKind(schema.DataKind(42)); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := NewTypeMapper(Postgres).ReportedType(schema.DataKind(42)); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestTypeMapper_Matches(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		reported string
		kind     schema.DataKind
		want     bool
	}{
		{"pg varchar", Postgres, "character varying(255)", schema.KindShortText, true},
		{"pg text for short", Postgres, "text", schema.KindShortText, false},
		{"pg double", Postgres, "double precision", schema.KindDouble, true},
		{"pg timestamp", Postgres, "timestamp without time zone", schema.KindDate, true},
		{"sqlite declared upper", SQLite, "VARCHAR(255)", schema.KindShortText, true},
		{"sqlite int vs long", SQLite, "INTEGER", schema.KindLongInteger, false},
		{"sqlite blob", SQLite, "BLOB", schema.KindBinary, true},
		{"mysql display width", MySQL, "int(11)", schema.KindInteger, true},
		{"mysql bigint width", MySQL, "bigint(20)", schema.KindLongInteger, true},
		{"mysql longtext", MySQL, "longtext", schema.KindLongText, true},
		{"unknown kind", SQLite, "TEXT", schema.DataKind(42), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewTypeMapper(tt.dialect).Matches(tt.reported, tt.kind); got != tt.want {
				t.Errorf("Matches(%q, %s) = %v, want %v", tt.reported, tt.kind, got, tt.want)
			}
		})
	}
}

func TestDialectForProduct(t *testing.T) {
	tests := []struct {
		product string
		want    Dialect
		wantErr bool
	}{
		{"PostgreSQL 16.2 on x86_64-pc-linux-gnu", Postgres, false},
		{"CockroachDB CCL v23.1", Postgres, false},
		{"SQLite", SQLite, false},
		{"MySQL", MySQL, false},
		{"MariaDB", MySQL, false},
		{"Oracle", 0, true},
	}

	for _, tt := range tests {
		got, err := DialectForProduct(tt.product)
		if tt.wantErr {
			if err == nil {
				t.Errorf("DialectForProduct(%q) expected error", tt.product)
			}
			continue
		}
		if err != nil {
			t.Fatalf("DialectForProduct(%q) error = %v", tt.product, err)
		}
		if got != tt.want {
			t.Errorf("DialectForProduct(%q) = %v, want %v", tt.product, got, tt.want)
		}
	}
}

func TestDialect_QuoteIdentifier(t *testing.T) {
	if got := Postgres.QuoteIdentifier(`quick_"x`); got != `"quick_""x"` {
		t.Errorf("Postgres quote = %s", got)
	}
	if got := SQLite.QuoteIdentifier("quick_title"); got != `"quick_title"` {
		t.Errorf("SQLite quote = %s", got)
	}
	if got := MySQL.QuoteIdentifier("quick`title"); got != "`quick``title`" {
		t.Errorf("MySQL quote = %s", got)
	}
}

func TestDialect_Rebind(t *testing.T) {
	query := "UPDATE attribute SET name = ? WHERE name = ? AND node_id LIKE ?"
	if got := Postgres.Rebind(query); got != "UPDATE attribute SET name = $1 WHERE name = $2 AND node_id LIKE $3" {
		t.Errorf("Rebind() = %s", got)
	}
	if got := SQLite.Rebind(query); got != query {
		t.Errorf("SQLite Rebind() changed the query: %s", got)
	}
}
