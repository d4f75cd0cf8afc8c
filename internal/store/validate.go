package store

import (
	"errors"
	"fmt"

	"firestige.xyz/wirelab/pkg/schema"
)

// ReferenceError reports an id that points at nothing.
type ReferenceError struct {
	Owner string // e.g. "template=t1"
	Ref   string // e.g. "protocolId"
	ID    string
}

func (e ReferenceError) Error() string {
	return fmt.Sprintf("store: %s: %s %q not found", e.Owner, e.Ref, e.ID)
}

// Validate checks every protocol and every cross reference in ws and returns
// all problems joined into one error.
func (ws *Workspace) Validate() error {
	var errs []error
	missing := func(owner, ref, id string) {
		errs = append(errs, ReferenceError{Owner: owner, Ref: ref, ID: id})
	}

	protocols := make(map[string]*schema.Protocol, len(ws.Protocols))
	for i := range ws.Protocols {
		p := &ws.Protocols[i]
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, dup := protocols[p.ID]; dup && p.ID != "" {
			errs = append(errs, fmt.Errorf("store: duplicate protocol id %q", p.ID))
		}
		protocols[p.ID] = p

		for _, f := range p.Fields {
			if f.EnumID != "" && ws.Enum(f.EnumID) == nil {
				missing(fmt.Sprintf("protocol=%s field=%s", p.ID, f.ID), "enumId", f.EnumID)
			}
		}
	}

	enums := make(map[string]struct{}, len(ws.Enums))
	for _, e := range ws.Enums {
		if _, dup := enums[e.ID]; dup {
			errs = append(errs, fmt.Errorf("store: duplicate enum id %q", e.ID))
		}
		enums[e.ID] = struct{}{}
		for _, item := range e.Items {
			if _, ok := item.Value.Int(); !ok {
				errs = append(errs, fmt.Errorf("store: enum=%s: value %q is not an integer", e.ID, item.Value.String()))
			}
		}
	}

	templates := make(map[string]struct{}, len(ws.Templates))
	for _, t := range ws.Templates {
		owner := "template=" + t.ID
		if _, dup := templates[t.ID]; dup {
			errs = append(errs, fmt.Errorf("store: duplicate template id %q", t.ID))
		}
		templates[t.ID] = struct{}{}

		p, ok := protocols[t.ProtocolID]
		if !ok {
			missing(owner, "protocolId", t.ProtocolID)
			continue
		}
		for _, r := range t.MatchRanges {
			switch r.Type {
			case schema.RangeField:
				if _, ok := p.Field(r.FieldID); !ok {
					missing(owner, "matchRanges.fieldId", r.FieldID)
				}
			case schema.RangeCustom:
				if r.Offset < 0 || r.Length < 0 {
					errs = append(errs, fmt.Errorf("store: %s: custom range has negative offset or length", owner))
				}
			default:
				errs = append(errs, fmt.Errorf("store: %s: unknown match range type %q", owner, r.Type))
			}
		}
	}

	for _, r := range ws.ReplyRules {
		owner := "replyRule=" + r.ID
		p, ok := protocols[r.MatchProtocolID]
		if !ok {
			missing(owner, "matchProtocolId", r.MatchProtocolID)
		} else if _, ok := p.Field(r.MatchFieldID); !ok {
			missing(owner, "matchFieldId", r.MatchFieldID)
		}
		for _, a := range r.Actions {
			if _, ok := templates[a.TemplateID]; !ok {
				missing(owner, "actions.templateId", a.TemplateID)
			}
			if a.Delay < 0 {
				errs = append(errs, fmt.Errorf("store: %s: negative delay %d", owner, a.Delay))
			}
		}
	}

	return errors.Join(errs...)
}
