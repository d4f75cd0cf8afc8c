package schema

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"
)

// maxNotationBits bounds integers written in float notation ("1e30").
const maxNotationBits = 128

// ParseInteger parses decimal or "0x"-prefixed hex text into an integer.
// Integral decimal notations such as "10.0" or "1e3" are accepted up to 128
// bits; fractional values are not.
func ParseInteger(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}

	neg := false
	body := s
	switch body[0] {
	case '-':
		neg = true
		body = body[1:]
	case '+':
		body = body[1:]
	}

	n := new(big.Int)
	if len(body) > 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		if _, ok := n.SetString(body[2:], 16); !ok {
			return nil, false
		}
	} else if _, ok := n.SetString(body, 10); !ok {
		f, _, err := big.ParseFloat(body, 10, 256, big.ToNearestEven)
		if err != nil || !f.IsInt() || f.MantExp(nil) > maxNotationBits {
			return nil, false
		}
		f.Int(n)
	}

	if neg {
		n.Neg(n)
	}
	return n, true
}

// ToBigInt coerces a decoded or configured value to an integer. Strings are
// parsed with ParseInteger; floats must be integral.
func ToBigInt(v any) (*big.Int, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case *big.Int:
		if x == nil {
			return nil, false
		}
		return new(big.Int).Set(x), true
	case int:
		return big.NewInt(int64(x)), true
	case int8:
		return big.NewInt(int64(x)), true
	case int16:
		return big.NewInt(int64(x)), true
	case int32:
		return big.NewInt(int64(x)), true
	case int64:
		return big.NewInt(x), true
	case uint:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint64:
		return new(big.Int).SetUint64(x), true
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case json.Number:
		return ParseInteger(x.String())
	case string:
		return ParseInteger(x)
	case EnumValue:
		return x.Int()
	}
	return nil, false
}

func floatToInt(f float64) (*big.Int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	n, _ := big.NewFloat(f).Int(nil)
	return n, true
}
