package codec

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"firestige.xyz/wirelab/pkg/schema"
)

// readUint reads an unsigned integer of len(b) bytes, len(b) <= 8.
func readUint(b []byte, little bool) uint64 {
	var u uint64
	if little {
		for i := len(b) - 1; i >= 0; i-- {
			u = u<<8 | uint64(b[i])
		}
		return u
	}
	for _, c := range b {
		u = u<<8 | uint64(c)
	}
	return u
}

// putUint writes the low len(b) bytes of u into b, len(b) <= 8.
func putUint(b []byte, u uint64, little bool) {
	n := len(b)
	for i := 0; i < n; i++ {
		shift := uint(8 * i)
		if little {
			b[i] = byte(u >> shift)
		} else {
			b[n-1-i] = byte(u >> shift)
		}
	}
}

// wrap reduces n to its two's complement representation in width bytes.
func wrap(n *big.Int, width int) uint64 {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(8*width))
	return new(big.Int).Mod(n, mod).Uint64()
}

// textOf renders a configured value as the text the user typed.
func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// isEmpty reports whether v leaves its field zero-filled.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

// elements splits an array field value into its elements. Text is split on
// ';', slices are taken element by element and any other value is a single
// element.
func elements(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		var out []any
		for _, part := range strings.Split(x, ";") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case []any:
		return x
	case schema.EnumValue, json.Number:
		return []any{x}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}
