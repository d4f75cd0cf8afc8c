package schema

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseInteger(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"10", 10, true},
		{" 0x0A ", 10, true},
		{"0XfF", 255, true},
		{"-0x10", -16, true},
		{"+7", 7, true},
		{"10.0", 10, true},
		{"1e3", 1000, true},
		{"10.5", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"0x", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, ok := ParseInteger(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, big.NewInt(tt.want).String(), n.String())
			}
		})
	}
}

func TestParseIntegerBoundsNotation(t *testing.T) {
	n, ok := ParseInteger("1e30")
	require.True(t, ok)
	assert.Equal(t, "1000000000000000000000000000000", n.String())

	for _, in := range []string{"1e200000000", "-1e50", "5e1000"} {
		_, ok := ParseInteger(in)
		assert.False(t, ok, in)
	}

	// plain digits are not notation and keep their full width
	n, ok = ParseInteger("340282366920938463463374607431768211456")
	require.True(t, ok)
	assert.Equal(t, 129, n.BitLen())
}

func TestToBigInt(t *testing.T) {
	n, ok := ToBigInt(uint64(18446744073709551615))
	require.True(t, ok)
	assert.Equal(t, "18446744073709551615", n.String())

	n, ok = ToBigInt(json.Number("0x0A"))
	require.True(t, ok)
	assert.Equal(t, int64(10), n.Int64())

	_, ok = ToBigInt(2.5)
	assert.False(t, ok)

	_, ok = ToBigInt(nil)
	assert.False(t, ok)
}

func TestEnumValueJSONTyping(t *testing.T) {
	var items []EnumItem
	require.NoError(t, json.Unmarshal([]byte(`[{"value":10,"label":"a"},{"value":"0x0A","label":"b"}]`), &items))

	assert.False(t, items[0].Value.IsText())
	assert.True(t, items[1].Value.IsText())
	assert.Equal(t, "0x0A", items[1].Value.String())

	out, err := json.Marshal(items)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"value":10,"label":"a"},{"value":"0x0A","label":"b"}]`, string(out))
}

func TestEnumValueYAMLTyping(t *testing.T) {
	var table EnumTable
	src := "id: e\nname: E\nitems:\n  - value: 10\n    label: a\n  - value: \"0x0A\"\n    label: b\n"
	require.NoError(t, yaml.Unmarshal([]byte(src), &table))
	require.Len(t, table.Items, 2)
	assert.False(t, table.Items[0].Value.IsText())
	assert.True(t, table.Items[1].Value.IsText())

	out, err := yaml.Marshal(&table)
	require.NoError(t, err)

	var back EnumTable
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, table.Items, back.Items)
}

func TestEnumValueTOMLTyping(t *testing.T) {
	var table EnumTable
	src := "id = \"e\"\nname = \"E\"\n\n[[items]]\nvalue = 10\nlabel = \"a\"\n\n[[items]]\nvalue = \"0x0A\"\nlabel = \"b\"\n"
	_, err := toml.Decode(src, &table)
	require.NoError(t, err)
	require.Len(t, table.Items, 2)
	assert.Equal(t, NumberValue(10), table.Items[0].Value)
	assert.Equal(t, TextValue("0x0A"), table.Items[1].Value)
}

func TestEnumValueHexNumberMarshalsAsDecimal(t *testing.T) {
	var v EnumValue
	require.NoError(t, yaml.Unmarshal([]byte("0x0A"), &v))
	assert.False(t, v.IsText())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "10", string(out))
}

func TestEnumLookupFirstWins(t *testing.T) {
	table := &EnumTable{ID: "e", Items: []EnumItem{
		{Value: TextValue("0x0A"), Label: "first"},
		{Value: NumberValue(10), Label: "second"},
	}}
	item, ok := table.Lookup(big.NewInt(10))
	require.True(t, ok)
	assert.Equal(t, "first", item.Label)

	_, ok = table.Lookup(big.NewInt(11))
	assert.False(t, ok)

	var nilTable *EnumTable
	_, ok = nilTable.Lookup(big.NewInt(10))
	assert.False(t, ok)
}

func TestProtocolValidate(t *testing.T) {
	off := -1
	p := &Protocol{ID: "p", Fields: []Field{
		{ID: "a", Type: TypeUint8, Length: 1},
		{ID: "a", Type: TypeUint8, Length: 1},
		{ID: "b", Type: "float", Length: 4},
		{ID: "c", Type: TypeUint32, Length: 2},
		{ID: "d", Type: TypeByte, Length: 0, Offset: &off},
		{ID: "e", Type: TypeArray, Length: 1, CountFieldID: "missing"},
		{ID: "f", Type: TypeUint8, Length: 1, Algorithm: "rot13"},
		{ID: "g", Type: TypeUint8, Length: 1, Endianness: "middle"},
	}}

	err := p.Validate()
	require.Error(t, err)

	var reasons []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var ve ValidationError
		require.True(t, errors.As(e, &ve))
		reasons = append(reasons, ve.FieldID+": "+ve.Reason)
	}
	assert.Contains(t, reasons, "a: duplicate field id")
	assert.Contains(t, reasons, `b: unknown type "float"`)
	assert.Contains(t, reasons, "c: length 2 is shorter than uint32")
	assert.Contains(t, reasons, "d: length must be positive, got 0")
	assert.Contains(t, reasons, "d: offset must not be negative, got -1")
	assert.Contains(t, reasons, `e: countFieldId "missing" does not reference an earlier field`)
	assert.Contains(t, reasons, `f: unknown algorithm "rot13"`)
	assert.Contains(t, reasons, `g: unknown endianness "middle"`)
}

func TestProtocolValidateCountField(t *testing.T) {
	ok := &Protocol{ID: "p", Fields: []Field{
		{ID: "n", Type: TypeUint8, Length: 1},
		{ID: "items", Type: TypeArray, Length: 2, CountFieldID: "n"},
	}}
	assert.NoError(t, ok.Validate())

	bad := &Protocol{ID: "p", Fields: []Field{
		{ID: "n", Type: TypeString, Length: 1},
		{ID: "items", Type: TypeArray, Length: 2, CountFieldID: "n"},
	}}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references non-integer field")
}

func TestProtocolValidateSizeLimits(t *testing.T) {
	far := MaxMessageSize + 1
	huge := &Protocol{ID: "p", Fields: []Field{
		{ID: "big", Type: TypeByte, Length: 1 << 62},
		{ID: "far", Type: TypeByte, Length: 1, Offset: &far},
	}}
	err := huge.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length 4611686018427387904 exceeds 65535")
	assert.Contains(t, err.Error(), "offset 65536 exceeds 65535")

	wide := &Protocol{ID: "p", Fields: []Field{
		{ID: "a", Type: TypeByte, Length: 40000},
		{ID: "b", Type: TypeByte, Length: 40000},
	}}
	err = wide.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field ends at 80000, past 65535")

	edge := &Protocol{ID: "p", Fields: []Field{{ID: "a", Type: TypeByte, Length: MaxMessageSize}}}
	assert.NoError(t, edge.Validate())
}

func TestAlgorithmNormalize(t *testing.T) {
	assert.Equal(t, AlgDefault, Algorithm("").Normalize())
	assert.Equal(t, AlgDefault, Algorithm("nope").Normalize())
	assert.Equal(t, AlgBCD, AlgBCD.Normalize())

	ft, ok := AlgUint16.NumericType()
	require.True(t, ok)
	assert.Equal(t, TypeUint16, ft)
}
