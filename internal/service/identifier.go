// Package service ties the codec, the template matcher and the fixed-format
// parsers into the identification flow shared by the replay, listen and serve
// commands.
package service

import (
	"fmt"
	"time"

	"firestige.xyz/wirelab/internal/metrics"
	"firestige.xyz/wirelab/internal/store"
	"firestige.xyz/wirelab/pkg/codec"
	"firestige.xyz/wirelab/pkg/matcher"
	"firestige.xyz/wirelab/pkg/models"
	"firestige.xyz/wirelab/pkg/plugin"
	"firestige.xyz/wirelab/pkg/schema"
)

// Result is the outcome of identifying one payload. Protocol and Template
// are set for a template match, Parser for a fixed-format match.
type Result struct {
	Protocol *schema.Protocol
	Template *schema.Template
	Parser   string
	Fields   []schema.DecodedField
}

// Matched reports whether anything recognised the payload.
func (r Result) Matched() bool {
	return r.Template != nil || r.Parser != ""
}

// ProtocolName returns the protocol id or the parser name.
func (r Result) ProtocolName() string {
	if r.Protocol != nil {
		return r.Protocol.ID
	}
	return r.Parser
}

// TemplateName returns the template id or "".
func (r Result) TemplateName() string {
	if r.Template != nil {
		return r.Template.ID
	}
	return ""
}

// Identifier recognises payloads. Templates are tried first in declaration
// order, then the fixed-format parsers in registration order. It is immutable
// after construction and safe for concurrent use.
type Identifier struct {
	matcher *matcher.Matcher
	decoder *codec.Decoder
	parsers []plugin.Parser
}

// NewIdentifier builds an Identifier over a workspace snapshot.
func NewIdentifier(ws *store.Workspace, parsers []plugin.Parser) *Identifier {
	return &Identifier{
		matcher: matcher.New(ws.Protocols, ws.Templates),
		decoder: codec.NewDecoder(ws.Enums),
		parsers: parsers,
	}
}

// NewParsers instantiates the named fixed-format parsers from the registry.
func NewParsers(names []string) ([]plugin.Parser, error) {
	out := make([]plugin.Parser, 0, len(names))
	for _, name := range names {
		factory, err := plugin.GetParserFactory(name)
		if err != nil {
			return nil, err
		}
		p := factory()
		if err := p.Init(nil); err != nil {
			return nil, fmt.Errorf("init parser %s: %w", name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Identify recognises payload and decodes it with whatever matched.
func (id *Identifier) Identify(payload []byte) Result {
	start := time.Now()
	res := id.identify(payload)
	metrics.IdentifyLatencySeconds.Observe(time.Since(start).Seconds())

	metrics.IdentifiedTotal.WithLabelValues(res.ProtocolName(), res.TemplateName(), res.Parser).Inc()
	countErrors(res.ProtocolName(), res.Fields)
	return res
}

func (id *Identifier) identify(payload []byte) Result {
	if m, ok := id.matcher.Match(payload); ok {
		return Result{
			Protocol: m.Protocol,
			Template: m.Template,
			Fields:   id.decoder.Decode(payload, m.Protocol),
		}
	}
	for _, p := range id.parsers {
		if !p.CanHandle(payload) {
			continue
		}
		fields, err := p.Handle(payload)
		if err != nil {
			continue
		}
		return Result{Parser: p.Name(), Fields: fields}
	}
	return Result{}
}

// Decode decodes payload against one protocol without identification.
func (id *Identifier) Decode(payload []byte, p *schema.Protocol) []schema.DecodedField {
	fields := id.decoder.Decode(payload, p)
	countErrors(p.ID, fields)
	return fields
}

// Annotate identifies evt.Payload and records the outcome on evt.
func (id *Identifier) Annotate(evt *models.Event) Result {
	res := id.Identify(evt.Payload)
	evt.Protocol = res.ProtocolName()
	evt.Template = res.TemplateName()
	evt.Parser = res.Parser
	evt.Fields = res.Fields
	return res
}

func countErrors(protocol string, fields []schema.DecodedField) {
	for i := range fields {
		if fields[i].Failed() {
			metrics.DecodeErrorsTotal.WithLabelValues(protocol, string(fields[i].Error)).Inc()
		}
		countErrors(protocol, fields[i].Children)
	}
}
