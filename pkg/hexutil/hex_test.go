package hexutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0x0A 0x0b", "0A0b"},
		{"de:ad be-ef", "deadbeef"},
		{"12 34\n56", "123456"},
		{"0X1f", "1f"},
		{"zz", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestToBuffer(t *testing.T) {
	buf, err := ToBuffer("0A 14 1e FF")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x14, 0x1e, 0xff}, buf)

	buf, err = ToBuffer("")
	require.NoError(t, err)
	assert.Empty(t, buf)
}

func TestToBufferOddLength(t *testing.T) {
	_, err := ToBuffer("abc")
	if !errors.Is(err, ErrMalformedHex) {
		t.Fatalf("expected ErrMalformedHex, got %v", err)
	}
}

func TestToHex(t *testing.T) {
	assert.Equal(t, "0a14ff", ToHex([]byte{0x0a, 0x14, 0xff}))
	assert.Equal(t, "0a 14 ff", ToSpacedHex([]byte{0x0a, 0x14, 0xff}))
	assert.Equal(t, "", ToSpacedHex(nil))
}

func TestFormatBlock(t *testing.T) {
	in := "000102030405060708090a0b0c0d0e0f1011"
	want := "00 01 02 03 04 05 06 07 08 09 0a 0b 0c 0d 0e 0f\n10 11"
	assert.Equal(t, want, FormatBlock(in, 0))

	assert.Equal(t, "aa bb\ncc", FormatBlock("AA BB CC", 2))
	assert.Equal(t, "", FormatBlock("  ", 4))
}

func TestEqualFold(t *testing.T) {
	assert.True(t, EqualFold("0xAB cd", "abCD"))
	assert.False(t, EqualFold("ab", "abcd"))
}
