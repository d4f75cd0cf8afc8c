package service

import (
	"firestige.xyz/wirelab/internal/metrics"
	"firestige.xyz/wirelab/internal/responder"
	"firestige.xyz/wirelab/internal/store"
	"firestige.xyz/wirelab/pkg/models"
)

// Service processes datagrams from one source: it identifies every event,
// hands it to the dispatcher and, for inbound events, evaluates auto-reply
// rules.
type Service struct {
	Source     string // metrics label, e.g. "listen" or "replay"
	Identifier *Identifier
	Responder  *responder.Responder // nil disables auto-reply
	Dispatcher *Dispatcher          // nil disables reporting
}

// Process annotates evt in place and returns the replies to send, if any.
func (s *Service) Process(evt *models.Event) []responder.Reply {
	metrics.DatagramsTotal.WithLabelValues(s.Source, string(evt.Direction)).Inc()

	s.Identifier.Annotate(evt)

	var replies []responder.Reply
	if s.Responder != nil && evt.Direction == models.Inbound {
		var rule *store.ReplyRule
		replies, rule = s.Responder.Evaluate(evt.Payload)
		if rule != nil {
			if evt.Labels == nil {
				evt.Labels = make(map[string]string)
			}
			evt.Labels["reply_rule"] = rule.ID
		}
	}

	// evt belongs to the reporters from here on.
	if s.Dispatcher != nil {
		s.Dispatcher.Send(evt)
	}
	return replies
}
