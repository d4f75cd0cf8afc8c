package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"firestige.xyz/wirelab/pkg/models"
)

type fakeConn struct {
	msgs    []*nats.Msg
	flushed time.Duration
	drained bool
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *fakeConn) FlushTimeout(timeout time.Duration) error {
	c.flushed = timeout
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestNATSReporter_Init(t *testing.T) {
	r := NewNATSReporter().(*NATSReporter)
	if err := r.Init(nil); err != nil {
		t.Fatalf("Init(nil) error = %v", err)
	}
	if r.config.URL != nats.DefaultURL || r.config.SubjectPrefix != "wirelab.events" {
		t.Errorf("unexpected defaults %+v", r.config)
	}

	if err := r.Init(map[string]any{"subject_prefix": "lab.udp.", "flush_timeout": "5s"}); err != nil {
		t.Fatal(err)
	}
	if r.config.SubjectPrefix != "lab.udp" || r.config.FlushTimeout != 5*time.Second {
		t.Errorf("unexpected config %+v", r.config)
	}

	if err := r.Init(map[string]any{"subject_prefix": "."}); err == nil {
		t.Error("expected error for empty prefix")
	}
}

func TestNATSReporter_Report(t *testing.T) {
	conn := &fakeConn{}
	r := NewNATSReporter().(*NATSReporter)
	if err := r.Init(nil); err != nil {
		t.Fatal(err)
	}
	r.conn = conn

	evts := []*models.Event{
		{Direction: models.Inbound, Protocol: "my.proto", Template: "hello"},
		{Direction: models.Outbound},
	}
	for _, evt := range evts {
		if err := r.Report(context.Background(), evt); err != nil {
			t.Fatalf("Report() error = %v", err)
		}
	}

	if len(conn.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conn.msgs))
	}
	if got := conn.msgs[0].Subject; got != "wirelab.events.my_proto" {
		t.Errorf("subject = %s", got)
	}
	if got := conn.msgs[0].Header.Get("Wirelab-Template"); got != "hello" {
		t.Errorf("template header = %q", got)
	}
	if got := conn.msgs[1].Subject; got != "wirelab.events.unidentified" {
		t.Errorf("subject = %s", got)
	}

	var body map[string]any
	if err := json.Unmarshal(conn.msgs[0].Data, &body); err != nil {
		t.Fatal(err)
	}
	if body["direction"] != "in" {
		t.Errorf("direction = %v", body["direction"])
	}

	if err := r.Flush(context.Background()); err != nil || conn.flushed != defaultFlushTimeout {
		t.Errorf("Flush() err = %v, timeout = %v", err, conn.flushed)
	}
	if err := r.Stop(context.Background()); err != nil || !conn.drained {
		t.Errorf("Stop() err = %v, drained = %v", err, conn.drained)
	}
}

func TestNATSReporter_ReportBeforeStart(t *testing.T) {
	r := NewNATSReporter()
	if err := r.Report(context.Background(), &models.Event{}); err == nil {
		t.Error("expected error before Start")
	}
}
