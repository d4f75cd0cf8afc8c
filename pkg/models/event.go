// Package models holds the types shared between the identification service
// and reporter plugins.
package models

import (
	"encoding/hex"
	"encoding/json"
	"net/netip"
	"time"

	"firestige.xyz/wirelab/pkg/schema"
)

// Direction tells whether a datagram was received or sent.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Event is one identified datagram, ready for reporting.
type Event struct {
	Time      time.Time      `json:"time"`
	Direction Direction      `json:"direction"`
	Source    netip.AddrPort `json:"source"`
	Dest      netip.AddrPort `json:"dest"`
	Payload   []byte         `json:"-"`

	// Protocol is the matched schema id or the name of the fixed-format
	// parser that recognised the payload. Empty when nothing matched.
	Protocol string                `json:"protocol,omitempty"`
	Template string                `json:"template,omitempty"`
	Parser   string                `json:"parser,omitempty"`
	Fields   []schema.DecodedField `json:"fields,omitempty"`
	Labels   map[string]string     `json:"labels,omitempty"`
}

// Identified reports whether a template or parser recognised the payload.
func (e *Event) Identified() bool {
	return e.Protocol != ""
}

// MarshalJSON adds the payload as unspaced lowercase hex.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		Payload string `json:"payload"`
	}{plain(e), hex.EncodeToString(e.Payload)})
}

// Key identifies the conversation an event belongs to.
func (e *Event) Key() string {
	return e.Source.String() + "-" + e.Dest.String()
}
