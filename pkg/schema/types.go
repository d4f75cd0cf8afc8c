// Package schema defines the declarative protocol model consumed by the codec
// and the template matcher.
//
// A Protocol is a flat, ordered list of Fields. Absent an explicit offset, a
// field starts where the previous one ended. Array fields repeat a fixed-width
// element; their element count is taken from an earlier integer field
// (CountFieldID) when decoding and from the supplied value list when encoding.
package schema

import (
	"encoding/binary"
	"strings"
)

// FieldType is the storage type of a field.
type FieldType string

const (
	TypeInt8   FieldType = "int8"
	TypeUint8  FieldType = "uint8"
	TypeInt16  FieldType = "int16"
	TypeUint16 FieldType = "uint16"
	TypeInt32  FieldType = "int32"
	TypeUint32 FieldType = "uint32"
	TypeInt64  FieldType = "int64"
	TypeUint64 FieldType = "uint64"
	TypeString FieldType = "string"
	TypeByte   FieldType = "byte"
	TypeArray  FieldType = "array"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeInt32, TypeUint32,
		TypeInt64, TypeUint64, TypeString, TypeByte, TypeArray:
		return true
	}
	return false
}

// IsInteger reports whether t is a signed or unsigned integer type.
func (t FieldType) IsInteger() bool {
	return t.Width() > 0
}

// Width returns the byte width of an integer type, or 0 for other types.
func (t FieldType) Width() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32:
		return 4
	case TypeInt64, TypeUint64:
		return 8
	}
	return 0
}

// Signed reports whether t is a signed integer type.
func (t FieldType) Signed() bool {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return true
	}
	return false
}

// Endianness selects the byte order of multi-byte integers.
type Endianness string

const (
	BigEndian    Endianness = "be"
	LittleEndian Endianness = "le"
)

// Valid reports whether e is a recognised byte order. The empty value is
// accepted and means big-endian.
func (e Endianness) Valid() bool {
	switch strings.ToLower(string(e)) {
	case "", "be", "le", "big", "little":
		return true
	}
	return false
}

// IsLittle reports whether e selects little-endian order.
func (e Endianness) IsLittle() bool {
	switch strings.ToLower(string(e)) {
	case "le", "little":
		return true
	}
	return false
}

// ByteOrder returns the binary.ByteOrder for e.
func (e Endianness) ByteOrder() binary.ByteOrder {
	if e.IsLittle() {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Algorithm is the value interpretation applied to a field's raw bytes,
// independent of the field's storage type.
type Algorithm string

const (
	AlgDefault  Algorithm = "default"
	AlgLongToIP Algorithm = "longToIp"
	AlgBCD      Algorithm = "bcd"
	AlgUTF8     Algorithm = "utf8"
	AlgHexStr   Algorithm = "hexStr"
	AlgCString  Algorithm = "c_string"
	AlgInt8     Algorithm = "int8"
	AlgUint8    Algorithm = "uint8"
	AlgInt16    Algorithm = "int16"
	AlgUint16   Algorithm = "uint16"
	AlgInt32    Algorithm = "int32"
	AlgUint32   Algorithm = "uint32"
	AlgInt64    Algorithm = "int64"
	AlgUint64   Algorithm = "uint64"
)

// Known reports whether a is one of the recognised algorithm tags. The empty
// tag is treated as AlgDefault.
func (a Algorithm) Known() bool {
	switch a {
	case "", AlgDefault, AlgLongToIP, AlgBCD, AlgUTF8, AlgHexStr, AlgCString:
		return true
	}
	_, ok := a.NumericType()
	return ok
}

// Normalize maps the empty tag and unknown tags to AlgDefault.
func (a Algorithm) Normalize() Algorithm {
	if a == "" || !a.Known() {
		return AlgDefault
	}
	return a
}

// NumericType returns the integer type named by a numeric algorithm tag.
func (a Algorithm) NumericType() (FieldType, bool) {
	switch a {
	case AlgInt8, AlgUint8, AlgInt16, AlgUint16, AlgInt32, AlgUint32, AlgInt64, AlgUint64:
		return FieldType(a), true
	}
	return "", false
}

// Field is one entry of a protocol schema.
type Field struct {
	ID           string     `json:"id" yaml:"id" toml:"id"`
	Name         string     `json:"name" yaml:"name" toml:"name"`
	Offset       *int       `json:"offset,omitempty" yaml:"offset,omitempty" toml:"offset,omitempty"`
	Length       int        `json:"length" yaml:"length" toml:"length"`
	Type         FieldType  `json:"type" yaml:"type" toml:"type"`
	Endianness   Endianness `json:"endianness" yaml:"endianness" toml:"endianness"`
	Algorithm    Algorithm  `json:"algorithm" yaml:"algorithm" toml:"algorithm"`
	EnumID       string     `json:"enumId,omitempty" yaml:"enumId,omitempty" toml:"enumId,omitempty"`
	CountFieldID string     `json:"countFieldId,omitempty" yaml:"countFieldId,omitempty" toml:"countFieldId,omitempty"`
	Description  string     `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// IsArray reports whether f repeats a fixed-width element.
func (f *Field) IsArray() bool {
	return f.Type == TypeArray
}

// Protocol is an ordered list of fields describing one binary layout.
type Protocol struct {
	ID          string  `json:"id" yaml:"id" toml:"id"`
	Name        string  `json:"name" yaml:"name" toml:"name"`
	Type        string  `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Fields      []Field `json:"fields" yaml:"fields" toml:"fields"`
	SampleHex   string  `json:"sampleHex,omitempty" yaml:"sampleHex,omitempty" toml:"sampleHex,omitempty"`
}

// Field returns the field with the given id.
func (p *Protocol) Field(id string) (*Field, bool) {
	for i := range p.Fields {
		if p.Fields[i].ID == id {
			return &p.Fields[i], true
		}
	}
	return nil, false
}

// MatchRangeType selects how a match range obtains its byte window.
type MatchRangeType string

const (
	RangeField  MatchRangeType = "field"
	RangeCustom MatchRangeType = "custom"
)

// MatchRange is one feature window used to fingerprint a template.
//
// A field range takes its window from the schema layout and its expected value
// from the template's own encoding. A custom range carries them verbatim.
type MatchRange struct {
	Type    MatchRangeType `json:"type" yaml:"type" toml:"type"`
	FieldID string         `json:"fieldId,omitempty" yaml:"fieldId,omitempty" toml:"fieldId,omitempty"`
	Offset  int            `json:"offset,omitempty" yaml:"offset,omitempty" toml:"offset,omitempty"`
	Length  int            `json:"length,omitempty" yaml:"length,omitempty" toml:"length,omitempty"`
	Value   string         `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
}

// Template is a protocol plus a concrete value map: one recognisable message.
type Template struct {
	ID          string         `json:"id" yaml:"id" toml:"id"`
	Name        string         `json:"name" yaml:"name" toml:"name"`
	ProtocolID  string         `json:"protocolId" yaml:"protocolId" toml:"protocolId"`
	Values      map[string]any `json:"values" yaml:"values" toml:"values"`
	MatchRanges []MatchRange   `json:"matchRanges,omitempty" yaml:"matchRanges,omitempty" toml:"matchRanges,omitempty"`
}

// Ranged reports whether t is matched by feature ranges rather than by full
// buffer equality.
func (t *Template) Ranged() bool {
	return len(t.MatchRanges) > 0
}

// ErrorKind labels a per-field decoding problem.
type ErrorKind string

const (
	ErrInsufficientData ErrorKind = "Insufficient data"
	ErrOverflow         ErrorKind = "Overflow"
	ErrTooShort         ErrorKind = "Too short"
	ErrLengthMismatch   ErrorKind = "Length mismatch"
	ErrParse            ErrorKind = "Parse error"
)

// DecodedField is the decoded view of one schema field, or of one element of
// a fixed-format message.
type DecodedField struct {
	FieldID        string         `json:"fieldId,omitempty"`
	Name           string         `json:"name"`
	RawHex         string         `json:"rawHex"`
	Value          any            `json:"value"`
	DisplayValue   string         `json:"displayValue"`
	FormattedValue string         `json:"formattedValue,omitempty"`
	Meaning        string         `json:"meaning,omitempty"`
	Offset         int            `json:"offset"`
	Length         int            `json:"length"`
	Error          ErrorKind      `json:"error,omitempty"`
	Children       []DecodedField `json:"children,omitempty"`
	ArrayValues    []string       `json:"arrayValues,omitempty"`
}

// Failed reports whether the field carries an error marker.
func (d *DecodedField) Failed() bool {
	return d.Error != ""
}
