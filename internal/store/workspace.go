// Package store loads and saves the workspace: protocol schemas, enum tables,
// packet templates and auto-reply rules.
package store

import (
	"errors"
	"fmt"

	"firestige.xyz/wirelab/pkg/schema"
)

var (
	ErrProtocolNotFound = errors.New("store: protocol not found")
	ErrTemplateNotFound = errors.New("store: template not found")
	ErrUnsupportedFile  = errors.New("store: unsupported file extension")
)

// ReplyAction sends one template after Delay milliseconds.
type ReplyAction struct {
	TemplateID string `json:"templateId" yaml:"templateId" toml:"templateId"`
	Delay      int    `json:"delay" yaml:"delay" toml:"delay"`
}

// ReplyRule answers datagrams whose decoded field equals MatchValue.
type ReplyRule struct {
	ID              string        `json:"id" yaml:"id" toml:"id"`
	Name            string        `json:"name" yaml:"name" toml:"name"`
	IsActive        bool          `json:"isActive" yaml:"isActive" toml:"isActive"`
	MatchProtocolID string        `json:"matchProtocolId" yaml:"matchProtocolId" toml:"matchProtocolId"`
	MatchFieldID    string        `json:"matchFieldId" yaml:"matchFieldId" toml:"matchFieldId"`
	MatchValue      string        `json:"matchValue" yaml:"matchValue" toml:"matchValue"`
	Actions         []ReplyAction `json:"actions" yaml:"actions" toml:"actions"`

	// Legacy single-template form, folded into Actions on load.
	ResponseTemplateID string `json:"responseTemplateId,omitempty" yaml:"responseTemplateId,omitempty" toml:"responseTemplateId,omitempty"`
}

// Normalize converts the legacy responseTemplateId into a zero-delay action.
func (r *ReplyRule) Normalize() {
	if len(r.Actions) == 0 && r.ResponseTemplateID != "" {
		r.Actions = []ReplyAction{{TemplateID: r.ResponseTemplateID}}
	}
	r.ResponseTemplateID = ""
	if r.Actions == nil {
		r.Actions = []ReplyAction{}
	}
}

// Workspace is everything a user has configured. The key names match the
// export format of the desktop tool, where protocols are called rules.
type Workspace struct {
	Protocols  []schema.Protocol  `json:"rules" yaml:"rules" toml:"rules"`
	Enums      []schema.EnumTable `json:"enums" yaml:"enums" toml:"enums"`
	Templates  []schema.Template  `json:"templates" yaml:"templates" toml:"templates"`
	ReplyRules []ReplyRule        `json:"replyRules" yaml:"replyRules" toml:"replyRules"`
}

// normalize replaces nil lists with empty ones and folds legacy rule fields.
func (ws *Workspace) normalize() {
	if ws.Protocols == nil {
		ws.Protocols = []schema.Protocol{}
	}
	if ws.Enums == nil {
		ws.Enums = []schema.EnumTable{}
	}
	if ws.Templates == nil {
		ws.Templates = []schema.Template{}
	}
	if ws.ReplyRules == nil {
		ws.ReplyRules = []ReplyRule{}
	}
	for i := range ws.ReplyRules {
		ws.ReplyRules[i].Normalize()
	}
}

// Protocol returns the protocol with the given id.
func (ws *Workspace) Protocol(id string) (*schema.Protocol, error) {
	for i := range ws.Protocols {
		if ws.Protocols[i].ID == id {
			return &ws.Protocols[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProtocolNotFound, id)
}

// Template returns the template with the given id.
func (ws *Workspace) Template(id string) (*schema.Template, error) {
	for i := range ws.Templates {
		if ws.Templates[i].ID == id {
			return &ws.Templates[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
}

// Enum returns the enum table with the given id, or nil.
func (ws *Workspace) Enum(id string) *schema.EnumTable {
	for i := range ws.Enums {
		if ws.Enums[i].ID == id {
			return &ws.Enums[i]
		}
	}
	return nil
}
