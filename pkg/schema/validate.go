package schema

import (
	"errors"
	"fmt"
)

// MaxMessageSize bounds every field offset, field length and encoded message.
const MaxMessageSize = 65535

// ValidationError describes one problem found in a protocol definition.
type ValidationError struct {
	ProtocolID string
	FieldID    string
	Reason     string
}

func (e ValidationError) Error() string {
	if e.FieldID == "" {
		return fmt.Sprintf("schema: protocol=%s: %s", e.ProtocolID, e.Reason)
	}
	return fmt.Sprintf("schema: protocol=%s field=%s: %s", e.ProtocolID, e.FieldID, e.Reason)
}

// Validate checks field-level invariants of p and returns every problem found
// joined into one error. Enum references are checked by the caller, which owns
// the enum tables.
func (p *Protocol) Validate() error {
	var errs []error
	fail := func(fieldID, format string, args ...any) {
		errs = append(errs, ValidationError{ProtocolID: p.ID, FieldID: fieldID, Reason: fmt.Sprintf(format, args...)})
	}

	if p.ID == "" {
		fail("", "missing id")
	}

	seen := make(map[string]*Field, len(p.Fields))
	end := 0
	for i := range p.Fields {
		f := &p.Fields[i]
		if f.ID == "" {
			fail(f.Name, "field #%d has no id", i)
		} else if _, dup := seen[f.ID]; dup {
			fail(f.ID, "duplicate field id")
		}
		if !f.Type.Valid() {
			fail(f.ID, "unknown type %q", f.Type)
		}
		if !f.Algorithm.Known() {
			fail(f.ID, "unknown algorithm %q", f.Algorithm)
		}
		if !f.Endianness.Valid() {
			fail(f.ID, "unknown endianness %q", f.Endianness)
		}
		if f.Length <= 0 {
			fail(f.ID, "length must be positive, got %d", f.Length)
		}
		if f.Offset != nil && *f.Offset < 0 {
			fail(f.ID, "offset must not be negative, got %d", *f.Offset)
		}
		if w := f.Type.Width(); w > 0 && f.Length > 0 && f.Length < w {
			fail(f.ID, "length %d is shorter than %s", f.Length, f.Type)
		}
		if f.Length > MaxMessageSize {
			fail(f.ID, "length %d exceeds %d", f.Length, MaxMessageSize)
		}
		if f.Offset != nil && *f.Offset > MaxMessageSize {
			fail(f.ID, "offset %d exceeds %d", *f.Offset, MaxMessageSize)
		}
		if f.Length > 0 && f.Length <= MaxMessageSize && end <= MaxMessageSize {
			start := end
			if f.Offset != nil && *f.Offset >= 0 && *f.Offset <= MaxMessageSize {
				start = *f.Offset
			}
			// arrays are counted with one element here
			end = start + f.Length
			if end > MaxMessageSize {
				fail(f.ID, "field ends at %d, past %d", end, MaxMessageSize)
			}
		}

		if f.CountFieldID != "" {
			if !f.IsArray() {
				fail(f.ID, "countFieldId is only valid on array fields")
			}
			ref, ok := seen[f.CountFieldID]
			switch {
			case !ok:
				fail(f.ID, "countFieldId %q does not reference an earlier field", f.CountFieldID)
			case !ref.Type.IsInteger():
				fail(f.ID, "countFieldId %q references non-integer field", f.CountFieldID)
			}
		}

		if f.ID != "" {
			if _, dup := seen[f.ID]; !dup {
				seen[f.ID] = f
			}
		}
	}

	return errors.Join(errs...)
}
