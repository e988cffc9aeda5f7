// Package schema provides the metadata model of the content store: object types
// (content types) and the attribute types (fields) they own, with normalization,
// consistency checking, copy and value-equality semantics.
package schema

import "fmt"

// DataKind is the declared value kind of an attribute type
type DataKind int

const (
	// Text kinds
	KindShortText DataKind = iota
	KindLongText

	// Numeric kinds
	KindInteger
	KindLongInteger
	KindDouble

	// Time
	KindDate

	// Raw bytes
	KindBinary

	// Link kinds
	KindObjectLink
	KindForeignLink
)

// String returns the stored name of the data kind
func (k DataKind) String() string {
	switch k {
	case KindShortText:
		return "string"
	case KindLongText:
		return "text"
	case KindInteger:
		return "int"
	case KindLongInteger:
		return "long"
	case KindDouble:
		return "double"
	case KindDate:
		return "date"
	case KindBinary:
		return "binary"
	case KindObjectLink:
		return "link"
	case KindForeignLink:
		return "foreignlink"
	default:
		return "unknown"
	}
}

// ParseDataKind converts a stored name to a DataKind
func ParseDataKind(s string) (DataKind, error) {
	switch s {
	case "string":
		return KindShortText, nil
	case "text":
		return KindLongText, nil
	case "int":
		return KindInteger, nil
	case "long":
		return KindLongInteger, nil
	case "double":
		return KindDouble, nil
	case "date":
		return KindDate, nil
	case "binary":
		return KindBinary, nil
	case "link":
		return KindObjectLink, nil
	case "foreignlink":
		return KindForeignLink, nil
	default:
		return 0, fmt.Errorf("unknown data kind: %s", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (k DataKind) MarshalText() ([]byte, error) {
	if k < KindShortText || k > KindForeignLink {
		return nil, fmt.Errorf("unknown data kind: %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *DataKind) UnmarshalText(text []byte) error {
	parsed, err := ParseDataKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsLink returns true for the object-link and foreign-link kinds
func (k DataKind) IsLink() bool {
	return k == KindObjectLink || k == KindForeignLink
}

// IsLarge returns true for kinds whose values may be too long for a full-width
// index key and which may live in external storage
func (k DataKind) IsLarge() bool {
	return k == KindLongText || k == KindBinary
}

// SupportsExternalStorage reports whether values of this kind may be stored
// outside the generic attribute table
func (k DataKind) SupportsExternalStorage() bool {
	return k.IsLarge()
}

// ValueColumn returns the column of the generic attribute table holding values
// of this kind
func (k DataKind) ValueColumn() string {
	switch k {
	case KindLongText:
		return "value_text"
	case KindInteger, KindLongInteger:
		return "value_long"
	case KindDouble:
		return "value_double"
	case KindDate:
		return "value_date"
	case KindBinary:
		return "value_binary"
	default:
		return "value_string"
	}
}
