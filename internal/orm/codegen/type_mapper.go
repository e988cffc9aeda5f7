// Package codegen generates the dialect-specific DDL the schema engine issues:
// quick column definitions, their indexes, and the base tables of the store.
package codegen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

// ShortTextLength is the width of short text and link columns
const ShortTextLength = 255

// TypeMapper maps attribute data kinds to column types of one dialect
type TypeMapper struct {
	dialect Dialect
}

// NewTypeMapper creates a new TypeMapper
func NewTypeMapper(dialect Dialect) *TypeMapper {
	return &TypeMapper{dialect: dialect}
}

// MapKind returns the column type used in DDL for a data kind
func (tm *TypeMapper) MapKind(kind schema.DataKind) (string, error) {
	switch kind {
	case schema.KindShortText, schema.KindObjectLink, schema.KindForeignLink:
		return fmt.Sprintf("VARCHAR(%d)", ShortTextLength), nil

	case schema.KindLongText:
		if tm.dialect == MySQL {
			return "LONGTEXT", nil
		}
		return "TEXT", nil

	case schema.KindInteger:
		if tm.dialect == MySQL {
			return "INT", nil
		}
		return "INTEGER", nil

	case schema.KindLongInteger:
		return "BIGINT", nil

	case schema.KindDouble:
		if tm.dialect == Postgres {
			return "DOUBLE PRECISION", nil
		}
		return "DOUBLE", nil

	case schema.KindDate:
		if tm.dialect == MySQL {
			return "DATETIME", nil
		}
		return "TIMESTAMP", nil

	case schema.KindBinary:
		switch tm.dialect {
		case Postgres:
			return "BYTEA", nil
		case MySQL:
			return "LONGBLOB", nil
		default:
			return "BLOB", nil
		}

	default:
		return "", fmt.Errorf("unsupported data kind: %s", kind)
	}
}

// ReportedType returns the column type as the dialect's catalog reports it
// back for a column created with MapKind
func (tm *TypeMapper) ReportedType(kind schema.DataKind) (string, error) {
	if tm.dialect != Postgres {
		mapped, err := tm.MapKind(kind)
		if err != nil {
			return "", err
		}
		return strings.ToLower(mapped), nil
	}

	switch kind {
	case schema.KindShortText, schema.KindObjectLink, schema.KindForeignLink:
		return fmt.Sprintf("character varying(%d)", ShortTextLength), nil
	case schema.KindLongText:
		return "text", nil
	case schema.KindInteger:
		return "integer", nil
	case schema.KindLongInteger:
		return "bigint", nil
	case schema.KindDouble:
		return "double precision", nil
	case schema.KindDate:
		return "timestamp without time zone", nil
	case schema.KindBinary:
		return "bytea", nil
	default:
		return "", fmt.Errorf("unsupported data kind: %s", kind)
	}
}

var displayWidth = regexp.MustCompile(`^(tinyint|smallint|int|bigint)\(\d+\)`)

// Matches reports whether a reported column type is the right definition for a kind
func (tm *TypeMapper) Matches(reported string, kind schema.DataKind) bool {
	expected, err := tm.ReportedType(kind)
	if err != nil {
		return false
	}
	return normalizeReported(reported) == expected
}

func normalizeReported(reported string) string {
	t := strings.ToLower(strings.TrimSpace(reported))
	t = strings.Join(strings.Fields(t), " ")
	// MySQL before 8.0.19 reports integer display widths
	t = displayWidth.ReplaceAllString(t, "$1")
	return strings.TrimSuffix(t, " unsigned")
}
