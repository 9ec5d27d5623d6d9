// Package types holds the scalar value, row, and column-descriptor types
// shared by the table store, the catalog, the query parser, the executor,
// and the wire codec. Keeping them in one leaf package avoids import
// cycles between those five.
package types

import (
	"encoding/binary"
	"fmt"

	"github.com/d-bee/dbee/internal/dbeeerr"
)

// Kind tags a Value's variant. The numeric values double as the on-disk
// col_type and the wire protocol's type byte, so they must never be
// renumbered.
type Kind uint8

const (
	Number Kind = 0
	Text   Kind = 1
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "NUMBER"
	case Text:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// ParseKind maps a keyword token (case already normalized by the caller)
// to a Kind.
func ParseKind(word string) (Kind, error) {
	switch word {
	case "NUMBER":
		return Number, nil
	case "TEXT":
		return Text, nil
	default:
		return 0, dbeeerr.Newf(dbeeerr.InvalidInput, "unknown column type %q", word)
	}
}

// Value is a tagged scalar: either a Text or a Number, never both. The
// zero value is Number(0).
type Value struct {
	Kind Kind
	Num  uint64
	Text string
}

func NumberValue(n uint64) Value { return Value{Kind: Number, Num: n} }
func TextValue(s string) Value   { return Value{Kind: Text, Text: s} }

// Bytes renders the value as it is stored on disk and on the wire: raw
// UTF-8 for Text, little-endian 8 bytes for Number.
func (v Value) Bytes() []byte {
	if v.Kind == Text {
		return []byte(v.Text)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v.Num)
	return buf
}

// FromBytes reconstructs a Value of the given Kind from raw bytes, the
// inverse of Bytes.
func FromBytes(k Kind, b []byte) (Value, error) {
	switch k {
	case Text:
		return Value{Kind: Text, Text: string(b)}, nil
	case Number:
		if len(b) != 8 {
			return Value{}, dbeeerr.Newf(dbeeerr.Corruption, "number value has %d bytes, want 8", len(b))
		}
		return Value{Kind: Number, Num: binary.LittleEndian.Uint64(b)}, nil
	default:
		return Value{}, dbeeerr.Newf(dbeeerr.Corruption, "unknown value kind %d", k)
	}
}

// ParseLiteral parses a text literal into the variant named by k, the way
// cols_to_row and create_value do it against a schema-declared column
// type.
func ParseLiteral(k Kind, literal string) (Value, error) {
	switch k {
	case Text:
		return TextValue(literal), nil
	case Number:
		var n uint64
		if _, err := fmt.Sscanf(literal, "%d", &n); err != nil {
			return Value{}, dbeeerr.Newf(dbeeerr.InvalidInput, "%q is not a valid number", literal)
		}
		return NumberValue(n), nil
	default:
		return Value{}, dbeeerr.Newf(dbeeerr.InvalidInput, "unknown column type %d", k)
	}
}

// Compare orders two same-Kind values; comparing across Kinds is an
// error.
func Compare(a, b Value) (int, error) {
	if a.Kind != b.Kind {
		return 0, dbeeerr.Newf(dbeeerr.InvalidInput, "cannot compare %s with %s", a.Kind, b.Kind)
	}
	switch a.Kind {
	case Number:
		switch {
		case a.Num < b.Num:
			return -1, nil
		case a.Num > b.Num:
			return 1, nil
		default:
			return 0, nil
		}
	case Text:
		switch {
		case a.Text < b.Text:
			return -1, nil
		case a.Text > b.Text:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, dbeeerr.Newf(dbeeerr.Internal, "unknown value kind %d", a.Kind)
	}
}

// Row is an ordered sequence of Values; arity and per-column types come
// from the owning table's schema, never from the row itself.
type Row []Value

// ColumnDescriptor pairs a type with a name; a table schema is an ordered
// sequence of these.
type ColumnDescriptor struct {
	Type Kind
	Name string
}

// Schema is an ordered list of column descriptors, indexed by col_id.
type Schema []ColumnDescriptor

// IndexOf returns the ordinal position of name in the schema, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}
