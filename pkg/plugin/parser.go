package plugin

import "firestige.xyz/wirelab/pkg/schema"

// Parser decodes one well-known fixed-format protocol without a schema.
type Parser interface {
	Plugin
	// CanHandle is a cheap heuristic check on the payload.
	CanHandle(payload []byte) bool
	// Handle decodes the payload. Problems are reported on the returned
	// fields; an error means the payload is not this protocol at all.
	Handle(payload []byte) ([]schema.DecodedField, error)
}
