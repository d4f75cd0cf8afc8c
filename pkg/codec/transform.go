package codec

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"firestige.xyz/wirelab/pkg/hexutil"
	"firestige.xyz/wirelab/pkg/schema"
)

// transform converts between a field's raw bytes and its value. decode gets
// exactly the bytes of the field (or array element); encode writes into a
// zeroed span of the same width and never grows it.
type transform struct {
	name   string
	decode func(raw []byte, f *schema.Field) (value any, display string, err error)
	encode func(v any, dst []byte, f *schema.Field) error
}

var algorithms = map[schema.Algorithm]transform{
	schema.AlgLongToIP: {name: "longToIp", decode: decodeIPv4, encode: encodeIPv4},
	schema.AlgBCD:      {name: "bcd", decode: decodeBCD, encode: encodeBCD},
	schema.AlgUTF8:     {name: "utf8", decode: decodeText, encode: encodeText},
	schema.AlgCString:  {name: "c_string", decode: decodeCString, encode: encodeText},
	schema.AlgHexStr:   {name: "hexStr", decode: decodeHex, encode: encodeHex},
}

var (
	textTransform = transform{name: "string", decode: decodeText, encode: encodeText}
	byteTransform = transform{name: "byte", decode: decodeByte, encode: encodeByte}
	rawTransform  = transform{name: "raw", decode: decodeHex, encode: encodeRaw}
)

// transformFor picks the conversion for f. The algorithm tag wins over the
// storage type; array fields without a recognised algorithm fall back to raw
// hex per element.
func transformFor(f *schema.Field) transform {
	alg := f.Algorithm.Normalize()
	if t, ok := algorithms[alg]; ok {
		return t
	}
	if t, ok := alg.NumericType(); ok {
		return numeric(t)
	}
	switch {
	case f.IsArray():
		return rawTransform
	case f.Type.IsInteger():
		return numeric(f.Type)
	case f.Type == schema.TypeString:
		return textTransform
	case f.Type == schema.TypeByte:
		return byteTransform
	}
	return rawTransform
}

// numeric reads and writes an integer of type t in the leading bytes of the
// span. Spans shorter than the type width hold a narrower integer.
func numeric(t schema.FieldType) transform {
	width := func(n int) int {
		if w := t.Width(); w < n {
			return w
		}
		return n
	}
	return transform{
		name: string(t),
		decode: func(raw []byte, f *schema.Field) (any, string, error) {
			w := width(len(raw))
			if w == 0 {
				return nil, "", ErrShortSpan
			}
			u := readUint(raw[:w], f.Endianness.IsLittle())
			if t.Signed() {
				shift := uint(64 - 8*w)
				n := int64(u<<shift) >> shift
				return n, strconv.FormatInt(n, 10), nil
			}
			return u, strconv.FormatUint(u, 10), nil
		},
		encode: func(v any, dst []byte, f *schema.Field) error {
			n, ok := schema.ToBigInt(v)
			if !ok {
				return fmt.Errorf("%w: %q", ErrNotNumeric, textOf(v))
			}
			w := width(len(dst))
			putUint(dst[:w], wrap(n, w), f.Endianness.IsLittle())
			return nil
		},
	}
}

func decodeIPv4(raw []byte, f *schema.Field) (any, string, error) {
	if len(raw) < 4 {
		return nil, "", ErrShortSpan
	}
	n := f.Endianness.ByteOrder().Uint32(raw[:4])
	ip := netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	return uint64(n), ip.String(), nil
}

func encodeIPv4(v any, dst []byte, f *schema.Field) error {
	if len(dst) < 4 {
		return ErrShortSpan
	}
	var n uint32
	if ip, err := netip.ParseAddr(strings.TrimSpace(textOf(v))); err == nil {
		if !ip.Is4() {
			return fmt.Errorf("%w: %s", ErrNotIPv4, ip)
		}
		b := ip.As4()
		n = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	} else {
		i, ok := schema.ToBigInt(v)
		if !ok || i.Sign() < 0 || i.BitLen() > 32 {
			return fmt.Errorf("%w: %q", ErrNotIPv4, textOf(v))
		}
		n = uint32(i.Uint64())
	}
	f.Endianness.ByteOrder().PutUint32(dst[:4], n)
	return nil
}

// decodeBCD concatenates the decimal nibbles; nibbles above 9 are skipped.
func decodeBCD(raw []byte, _ *schema.Field) (any, string, error) {
	var sb strings.Builder
	for _, b := range raw {
		for _, d := range [2]byte{b >> 4, b & 0x0f} {
			if d <= 9 {
				sb.WriteByte('0' + d)
			}
		}
	}
	s := sb.String()
	return s, s, nil
}

// encodeBCD keeps the decimal digits of v, left-pads them with zeros to two
// digits per byte and drops the excess from the right.
func encodeBCD(v any, dst []byte, _ *schema.Field) error {
	digits := make([]byte, 0, 2*len(dst))
	for _, c := range []byte(textOf(v)) {
		if c >= '0' && c <= '9' {
			digits = append(digits, c-'0')
		}
	}
	if pad := 2*len(dst) - len(digits); pad > 0 {
		digits = append(make([]byte, pad), digits...)
	}
	for i := range dst {
		dst[i] = digits[2*i]<<4 | digits[2*i+1]
	}
	return nil
}

func decodeText(raw []byte, _ *schema.Field) (any, string, error) {
	s := strings.ToValidUTF8(string(raw), "\uFFFD")
	return s, s, nil
}

func decodeCString(raw []byte, f *schema.Field) (any, string, error) {
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}
	return decodeText(raw, f)
}

func encodeText(v any, dst []byte, _ *schema.Field) error {
	copy(dst, textOf(v))
	return nil
}

func decodeHex(raw []byte, _ *schema.Field) (any, string, error) {
	s := hexutil.ToSpacedHex(raw)
	return s, s, nil
}

func encodeHex(v any, dst []byte, _ *schema.Field) error {
	if b, ok := v.([]byte); ok {
		copy(dst, b)
		return nil
	}
	b, err := hexutil.ToBuffer(textOf(v))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// encodeRaw writes hex text verbatim and numbers as unsigned integers of
// the span width.
func encodeRaw(v any, dst []byte, f *schema.Field) error {
	switch v.(type) {
	case string, []byte:
		return encodeHex(v, dst, f)
	}
	n, ok := schema.ToBigInt(v)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
	w := min(len(dst), 8)
	putUint(dst[:w], wrap(n, w), f.Endianness.IsLittle())
	return nil
}

// decodeByte shows a single byte as a number and longer spans as hex.
func decodeByte(raw []byte, f *schema.Field) (any, string, error) {
	if len(raw) == 1 {
		return uint64(raw[0]), strconv.FormatUint(uint64(raw[0]), 10), nil
	}
	return decodeHex(raw, f)
}

// encodeByte accepts a decimal or 0x number for a single byte and hex text
// otherwise.
func encodeByte(v any, dst []byte, f *schema.Field) error {
	if s, ok := v.(string); ok {
		if len(dst) == 1 {
			if n, ok := schema.ParseInteger(s); ok {
				dst[0] = byte(wrap(n, 1))
				return nil
			}
		}
		return encodeHex(s, dst, f)
	}
	return encodeRaw(v, dst, f)
}
