package codec

import (
	"errors"
	"fmt"
)

var (
	ErrNotNumeric  = errors.New("codec: value is not an integer")
	ErrNotIPv4     = errors.New("codec: value is not an IPv4 address")
	ErrShortSpan   = errors.New("codec: field span is too short for its algorithm")
	ErrUnsupported = errors.New("codec: unsupported value type")
	ErrTooLarge    = errors.New("codec: message exceeds the maximum size")
)

// FieldError reports a field, or one array element of it, that the encoder
// had to leave zero-filled.
type FieldError struct {
	FieldID string
	Index   int // element index for array fields, -1 otherwise
	Err     error
}

func (e *FieldError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("field %s[%d]: %v", e.FieldID, e.Index, e.Err)
	}
	return fmt.Sprintf("field %s: %v", e.FieldID, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }
