// Package hexutil converts between hex text and byte buffers.
//
// Input hex is case-insensitive and may carry "0x" prefixes, spaces or line
// breaks. Output is always lowercase, two digits per byte.
package hexutil

import (
	"encoding/hex"
	"errors"
	"strings"
)

// DefaultBlockWidth is the number of bytes per line used by FormatBlock.
const DefaultBlockWidth = 16

// ErrMalformedHex is returned when cleaned hex text has an odd digit count.
var ErrMalformedHex = errors.New("hexutil: malformed hex")

// Clean strips "0x" prefixes and every character outside [0-9a-fA-F].
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '0' && i+1 < len(text) && (text[i+1] == 'x' || text[i+1] == 'X') {
			i++
			continue
		}
		if isHexDigit(c) {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ToBuffer cleans text and pairs the digits into bytes.
func ToBuffer(text string) ([]byte, error) {
	cleaned := Clean(text)
	if len(cleaned)%2 != 0 {
		return nil, ErrMalformedHex
	}
	buf, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, ErrMalformedHex
	}
	return buf, nil
}

// ToHex renders b as unseparated lowercase hex.
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// ToSpacedHex renders b as lowercase hex with one space between bytes.
func ToSpacedHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(hex.EncodeToString([]byte{c}))
	}
	return sb.String()
}

// FormatBlock re-chunks cleaned hex into lines of width bytes, bytes
// separated by single spaces. A non-positive width selects DefaultBlockWidth.
// A trailing odd digit is kept on the last line.
func FormatBlock(text string, width int) string {
	if width <= 0 {
		width = DefaultBlockWidth
	}
	cleaned := strings.ToLower(Clean(text))
	if cleaned == "" {
		return ""
	}

	var lines []string
	var line []string
	for i := 0; i < len(cleaned); i += 2 {
		end := i + 2
		if end > len(cleaned) {
			end = len(cleaned)
		}
		line = append(line, cleaned[i:end])
		if len(line) == width {
			lines = append(lines, strings.Join(line, " "))
			line = line[:0]
		}
	}
	if len(line) > 0 {
		lines = append(lines, strings.Join(line, " "))
	}
	return strings.Join(lines, "\n")
}

// EqualFold reports whether two hex texts denote the same digits, ignoring
// case and separators.
func EqualFold(a, b string) bool {
	return strings.EqualFold(Clean(a), Clean(b))
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
