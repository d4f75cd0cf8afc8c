// Package responder evaluates auto-reply rules against inbound datagrams.
package responder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/metrics"
	"firestige.xyz/wirelab/internal/store"
	"firestige.xyz/wirelab/pkg/codec"
	"firestige.xyz/wirelab/pkg/schema"
)

// Reply is one datagram to send back after Delay.
type Reply struct {
	RuleID     string
	TemplateID string
	Payload    []byte
	Delay      time.Duration
}

// Responder holds the rules of one workspace snapshot. It is safe for
// concurrent use.
type Responder struct {
	ws      *store.Workspace
	decoder *codec.Decoder
}

// New returns a Responder for ws. ws must not be modified afterwards.
func New(ws *store.Workspace) *Responder {
	return &Responder{ws: ws, decoder: codec.NewDecoder(ws.Enums)}
}

// Evaluate returns the replies of the first active rule matching data, in
// action order, together with that rule. A rule whose protocol, field or
// templates cannot be resolved is skipped.
func (r *Responder) Evaluate(data []byte) ([]Reply, *store.ReplyRule) {
	for i := range r.ws.ReplyRules {
		rule := &r.ws.ReplyRules[i]
		if !rule.IsActive {
			continue
		}
		ok, err := r.matches(rule, data)
		if err != nil {
			log.GetLogger().WithField("rule", rule.ID).Debugf("reply rule skipped: %v", err)
			continue
		}
		if !ok {
			continue
		}
		replies, err := r.replies(rule)
		if err != nil {
			log.GetLogger().WithField("rule", rule.ID).Warnf("reply rule skipped: %v", err)
			continue
		}
		return replies, rule
	}
	return nil, nil
}

func (r *Responder) matches(rule *store.ReplyRule, data []byte) (bool, error) {
	p, err := r.ws.Protocol(rule.MatchProtocolID)
	if err != nil {
		return false, err
	}
	if _, ok := p.Field(rule.MatchFieldID); !ok {
		return false, fmt.Errorf("field %q not in protocol %s", rule.MatchFieldID, p.ID)
	}

	for _, df := range r.decoder.Decode(data, p) {
		if df.FieldID != rule.MatchFieldID {
			continue
		}
		if df.Failed() {
			return false, nil
		}
		return valueMatches(df, rule.MatchValue), nil
	}
	// The walk stopped before reaching the field.
	return false, nil
}

// valueMatches compares the decoded value with the configured text. Integers
// compare numerically, so "0x0A" matches a decoded 10.
func valueMatches(df schema.DecodedField, want string) bool {
	want = strings.TrimSpace(want)
	got := fmt.Sprint(df.Value)
	if got == want || df.FormattedValue == want || df.DisplayValue == want {
		return true
	}
	a, okA := schema.ToBigInt(df.Value)
	b, okB := schema.ParseInteger(want)
	return okA && okB && a.Cmp(b) == 0
}

func (r *Responder) replies(rule *store.ReplyRule) ([]Reply, error) {
	out := make([]Reply, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		tmpl, err := r.ws.Template(a.TemplateID)
		if err != nil {
			return nil, err
		}
		p, err := r.ws.Protocol(tmpl.ProtocolID)
		if err != nil {
			return nil, err
		}
		payload, err := codec.Encode(p, tmpl.Values)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", tmpl.ID, err)
		}
		out = append(out, Reply{
			RuleID:     rule.ID,
			TemplateID: tmpl.ID,
			Payload:    payload,
			Delay:      time.Duration(max(a.Delay, 0)) * time.Millisecond,
		})
	}
	return out, nil
}

// Sender delivers one reply payload.
type Sender func(ctx context.Context, payload []byte) error

// Dispatch sends every reply after its own delay, measured from the call.
// It returns once all replies are sent or ctx is done; replies still waiting
// when ctx ends are dropped.
func Dispatch(ctx context.Context, replies []Reply, send Sender) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	for _, rp := range replies {
		wg.Add(1)
		go func(rp Reply) {
			defer wg.Done()
			if rp.Delay > 0 {
				timer := time.NewTimer(rp.Delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					metrics.AutoRepliesTotal.WithLabelValues(rp.RuleID, "dropped").Inc()
					return
				case <-timer.C:
				}
			}
			if err := send(ctx, rp.Payload); err != nil {
				metrics.AutoRepliesTotal.WithLabelValues(rp.RuleID, "failed").Inc()
				log.GetLogger().WithFields(map[string]interface{}{
					"rule":     rp.RuleID,
					"template": rp.TemplateID,
				}).Warnf("auto-reply send failed: %v", err)
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
				return
			}
			metrics.AutoRepliesTotal.WithLabelValues(rp.RuleID, "sent").Inc()
		}(rp)
	}
	wg.Wait()
	if first != nil {
		return first
	}
	return ctx.Err()
}
