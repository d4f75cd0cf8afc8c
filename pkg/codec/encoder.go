package codec

import (
	"errors"

	"firestige.xyz/wirelab/pkg/schema"
)

// Encode builds the message described by p from values, keyed by field id.
//
// The result is always Plan(p, values).Size bytes long. Fields without a
// value stay zero-filled, text and hex input is truncated to the field width,
// and a value that cannot be converted leaves its field (or array element)
// zero-filled and is reported in the returned error. The bytes are valid
// even when the error is not nil, except for ErrTooLarge, which returns none.
func Encode(p *schema.Protocol, values map[string]any) ([]byte, error) {
	layout, err := Plan(p, values)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, layout.Size)

	var errs []error
	for i := range p.Fields {
		f := &p.Fields[i]
		v := values[f.ID]
		span := layout.Spans[i]
		if isEmpty(v) || span.Length == 0 {
			continue
		}
		dst := buf[span.Offset:span.End()]
		tr := transformFor(f)

		if !f.IsArray() {
			if err := tr.encode(v, dst, f); err != nil {
				clear(dst)
				errs = append(errs, &FieldError{FieldID: f.ID, Index: -1, Err: err})
			}
			continue
		}

		for j, e := range elements(v) {
			elem := dst[j*f.Length : (j+1)*f.Length]
			if err := tr.encode(e, elem, f); err != nil {
				clear(elem)
				errs = append(errs, &FieldError{FieldID: f.ID, Index: j, Err: err})
			}
		}
	}
	return buf, errors.Join(errs...)
}
