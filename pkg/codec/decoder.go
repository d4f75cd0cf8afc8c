// Package codec decodes byte buffers against a protocol schema and encodes
// value maps back into bytes. Both directions share one algorithm dispatch
// table so that a field always round-trips through the same conversion.
package codec

import (
	"math"
	"strings"

	"firestige.xyz/wirelab/pkg/hexutil"
	"firestige.xyz/wirelab/pkg/schema"
)

const (
	displayInsufficient = "Error: Insufficient data"
	displayParseError   = "Parse Error"
)

// Decoder decodes buffers against protocol schemas. The enum lookup table is
// built once; a Decoder is safe for concurrent use.
type Decoder struct {
	enums map[string]*schema.EnumTable
}

// NewDecoder returns a Decoder resolving enum labels from tables.
func NewDecoder(tables []schema.EnumTable) *Decoder {
	d := &Decoder{enums: make(map[string]*schema.EnumTable, len(tables))}
	for i := range tables {
		t := tables[i]
		if _, dup := d.enums[t.ID]; !dup {
			d.enums[t.ID] = &t
		}
	}
	return d
}

// Decode walks p over data and returns one result per field, in schema
// order. A field that does not fit in data produces an "Insufficient data"
// entry and ends the walk; any other problem is recorded on the field's own
// entry.
func (d *Decoder) Decode(data []byte, p *schema.Protocol) []schema.DecodedField {
	results := make([]schema.DecodedField, 0, len(p.Fields))
	decoded := make(map[string]any, len(p.Fields))

	running := 0
	for i := range p.Fields {
		f := &p.Fields[i]
		offset := running
		if f.Offset != nil && *f.Offset >= 0 {
			offset = *f.Offset
		}

		length := int64(max(f.Length, 0))
		count := int64(1)
		if f.IsArray() {
			count = arrayCount(f, decoded)
		}

		if !fits(offset, length, count, len(data)) {
			results = append(results, schema.DecodedField{
				FieldID:      f.ID,
				Name:         f.Name,
				DisplayValue: displayInsufficient,
				Offset:       offset,
				Length:       declaredSpan(length, count),
				Error:        schema.ErrInsufficientData,
			})
			break
		}

		end := offset + int(length*count)
		raw := data[offset:end]
		df := schema.DecodedField{
			FieldID: f.ID,
			Name:    f.Name,
			RawHex:  hexutil.ToSpacedHex(raw),
			Offset:  offset,
			Length:  len(raw),
		}
		if f.IsArray() {
			decodeArray(&df, raw, int(length), int(count), f)
		} else {
			d.decodeScalar(&df, raw, f)
		}

		results = append(results, df)
		if _, dup := decoded[f.ID]; !dup {
			decoded[f.ID] = df.Value
		}
		running = end
	}
	return results
}

// Decode is a convenience wrapper around NewDecoder(enums).Decode.
func Decode(data []byte, p *schema.Protocol, enums []schema.EnumTable) []schema.DecodedField {
	return NewDecoder(enums).Decode(data, p)
}

// arrayCount resolves the element count of an array field. Without a count
// reference the array holds one element. A missing, non-integer or negative
// count is zero; counts beyond int64 saturate.
func arrayCount(f *schema.Field, decoded map[string]any) int64 {
	if f.CountFieldID == "" {
		return 1
	}
	v, ok := decoded[f.CountFieldID]
	if !ok {
		return 0
	}
	n, ok := schema.ToBigInt(v)
	if !ok || n.Sign() < 0 {
		return 0
	}
	if !n.IsInt64() {
		return math.MaxInt64
	}
	return n.Int64()
}

// fits reports whether count elements of length bytes starting at offset lie
// within size bytes. An array of zero-length elements may hold at most size
// of them.
func fits(offset int, length, count int64, size int) bool {
	if offset < 0 || offset > size {
		return false
	}
	if count == 0 {
		return true
	}
	if length == 0 {
		return count == 1 || count <= int64(size)
	}
	return length <= int64(size-offset)/count
}

// declaredSpan is length*count, saturated at math.MaxInt.
func declaredSpan(length, count int64) int {
	if count != 0 && length > int64(math.MaxInt)/count {
		return math.MaxInt
	}
	return int(length * count)
}

func (d *Decoder) decodeScalar(df *schema.DecodedField, raw []byte, f *schema.Field) {
	value, display, err := transformFor(f).decode(raw, f)
	if err != nil {
		df.Error = schema.ErrParse
		df.DisplayValue = displayParseError
		df.FormattedValue = displayParseError
		return
	}
	df.Value = value
	df.DisplayValue = display
	df.FormattedValue = display

	if f.EnumID == "" {
		return
	}
	n, ok := schema.ToBigInt(value)
	if !ok {
		return
	}
	if item, ok := d.enums[f.EnumID].Lookup(n); ok {
		df.Meaning = item.Label
		df.DisplayValue = display + " (" + item.Label + ")"
	}
}

// decodeArray decodes count elements of length bytes each. An element the
// algorithm cannot decode is shown as hex.
func decodeArray(df *schema.DecodedField, raw []byte, length, count int, f *schema.Field) {
	tr := transformFor(f)
	values := make([]any, 0, count)
	displays := make([]string, 0, count)
	for i := 0; i < count; i++ {
		elem := raw[i*length : (i+1)*length]
		v, s, err := tr.decode(elem, f)
		if err != nil {
			v, s, _ = decodeHex(elem, f)
		}
		values = append(values, v)
		displays = append(displays, s)
	}
	df.Value = values
	df.ArrayValues = displays
	df.DisplayValue = "[" + strings.Join(displays, ", ") + "]"
	df.FormattedValue = df.DisplayValue
}
