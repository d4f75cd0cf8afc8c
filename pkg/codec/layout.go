package codec

import (
	"fmt"

	"firestige.xyz/wirelab/pkg/schema"
)

// Span is the byte window one field occupies in an encoded message.
type Span struct {
	FieldID string
	Offset  int
	Length  int
}

// End returns the offset just past the span.
func (s Span) End() int { return s.Offset + s.Length }

// Layout is the encoded position of every field of a protocol, in field
// order, plus the total message size.
type Layout struct {
	Spans []Span
	Size  int
}

// Span returns the span of the field with the given id.
func (l Layout) Span(fieldID string) (Span, bool) {
	for _, s := range l.Spans {
		if s.FieldID == fieldID {
			return s, true
		}
	}
	return Span{}, false
}

// Plan computes the layout Encode produces for values without encoding
// anything. A field starts at its explicit offset or where the previous field
// ended. Array fields are as wide as their element count in values; all
// other fields are exactly Length bytes whether or not a value is present.
// A layout reaching past schema.MaxMessageSize fails with ErrTooLarge.
func Plan(p *schema.Protocol, values map[string]any) (Layout, error) {
	l := Layout{Spans: make([]Span, 0, len(p.Fields))}
	running := 0
	for i := range p.Fields {
		f := &p.Fields[i]
		offset := running
		if f.Offset != nil && *f.Offset >= 0 {
			offset = *f.Offset
		}
		if offset > schema.MaxMessageSize {
			return Layout{}, fmt.Errorf("%w: field %s starts at %d", ErrTooLarge, f.ID, offset)
		}

		width, n := max(f.Length, 0), 1
		if f.IsArray() {
			n = len(elements(values[f.ID]))
		}
		if n > 0 && width > (schema.MaxMessageSize-offset)/n {
			return Layout{}, fmt.Errorf("%w: field %s needs %d x %d bytes at %d", ErrTooLarge, f.ID, n, width, offset)
		}
		width *= n

		s := Span{FieldID: f.ID, Offset: offset, Length: width}
		l.Spans = append(l.Spans, s)
		running = s.End()
		l.Size = max(l.Size, running)
	}
	return l, nil
}
