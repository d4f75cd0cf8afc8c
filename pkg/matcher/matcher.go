// Package matcher identifies which packet template an unlabeled buffer is an
// instance of.
package matcher

import (
	"bytes"
	"errors"
	"fmt"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/pkg/codec"
	"firestige.xyz/wirelab/pkg/hexutil"
	"firestige.xyz/wirelab/pkg/schema"
)

var (
	ErrUnknownProtocol = errors.New("matcher: template references unknown protocol")
	ErrUnknownField    = errors.New("matcher: match range references unknown field")
	ErrEmptyRange      = errors.New("matcher: match range has no expected bytes")
)

// Result is a matched template together with its protocol.
type Result struct {
	Template *schema.Template
	Protocol *schema.Protocol
}

// check is one byte window the input must carry.
type check struct {
	offset   int
	length   int
	expected []byte
}

type candidate struct {
	template *schema.Template
	protocol *schema.Protocol
	checks   []check
	full     []byte // set when the template has no match ranges
	err      error  // set when the template can never match
}

// Matcher holds the expected bytes of every template, computed once. It is
// immutable after New and safe for concurrent use.
type Matcher struct {
	candidates []candidate
}

// New prepares templates for matching. Templates keep their order; the first
// one that matches an input wins.
func New(protocols []schema.Protocol, templates []schema.Template) *Matcher {
	byID := make(map[string]*schema.Protocol, len(protocols))
	for i := range protocols {
		if _, dup := byID[protocols[i].ID]; !dup {
			byID[protocols[i].ID] = &protocols[i]
		}
	}

	m := &Matcher{candidates: make([]candidate, 0, len(templates))}
	for i := range templates {
		c := prepare(&templates[i], byID[templates[i].ProtocolID])
		if c.err != nil {
			log.GetLogger().WithField("template", templates[i].ID).WithError(c.err).Debug("template will not match")
		}
		m.candidates = append(m.candidates, c)
	}
	return m
}

func prepare(t *schema.Template, p *schema.Protocol) candidate {
	c := candidate{template: t, protocol: p}
	if p == nil {
		c.err = fmt.Errorf("%w: %s", ErrUnknownProtocol, t.ProtocolID)
		return c
	}

	encoded, err := codec.Encode(p, t.Values)
	if err != nil {
		c.err = err
		return c
	}
	if !t.Ranged() {
		c.full = encoded
		return c
	}

	layout, err := codec.Plan(p, t.Values)
	if err != nil {
		c.err = err
		return c
	}
	for _, r := range t.MatchRanges {
		ck, err := resolveRange(r, layout, encoded)
		if err != nil {
			c.err = err
			return c
		}
		c.checks = append(c.checks, ck)
	}
	return c
}

// resolveRange turns a match range into an offset and the bytes expected
// there. Field ranges take both from the template's own encoding. Custom
// ranges carry them, and borrow the template's bytes when no value is set.
func resolveRange(r schema.MatchRange, layout codec.Layout, encoded []byte) (check, error) {
	var offset, length int
	var expected []byte

	switch r.Type {
	case schema.RangeField:
		span, ok := layout.Span(r.FieldID)
		if !ok {
			return check{}, fmt.Errorf("%w: %s", ErrUnknownField, r.FieldID)
		}
		offset, length = span.Offset, span.Length
	default:
		offset, length = r.Offset, r.Length
		if length <= 0 {
			length = 1
		}
		if r.Value != "" {
			b, err := hexutil.ToBuffer(r.Value)
			if err != nil {
				return check{}, fmt.Errorf("custom range at %d: %w", r.Offset, err)
			}
			expected = b
		}
	}

	if expected == nil && inBounds(offset, length, len(encoded)) {
		expected = encoded[offset : offset+length]
	}
	if len(expected) == 0 {
		return check{}, ErrEmptyRange
	}
	return check{offset: offset, length: length, expected: expected}, nil
}

// Match returns the first template the input satisfies.
func (m *Matcher) Match(input []byte) (Result, bool) {
	for i := range m.candidates {
		c := &m.candidates[i]
		if c.matches(input) {
			return Result{Template: c.template, Protocol: c.protocol}, true
		}
	}
	return Result{}, false
}

func (c *candidate) matches(input []byte) bool {
	if c.err != nil {
		return false
	}
	if c.checks == nil {
		return bytes.Equal(input, c.full)
	}
	for _, ck := range c.checks {
		// a value shorter or longer than the range never matches
		if !inBounds(ck.offset, ck.length, len(input)) ||
			!bytes.Equal(input[ck.offset:ck.offset+ck.length], ck.expected) {
			return false
		}
	}
	return true
}

// inBounds reports whether [offset, offset+length) lies within size bytes.
func inBounds(offset, length, size int) bool {
	return offset >= 0 && length >= 0 && offset <= size && length <= size-offset
}

// Match is a one-shot New(protocols, templates).Match(input).
func Match(input []byte, templates []schema.Template, protocols []schema.Protocol) (Result, bool) {
	return New(protocols, templates).Match(input)
}
