package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"firestige.xyz/wirelab/pkg/models"
	"firestige.xyz/wirelab/pkg/plugin"
)

type mockReporter struct {
	name       string
	flushed    atomic.Bool
	reported   []*models.Event
	mu         sync.Mutex
	reportHook func(ctx context.Context, evt *models.Event) error
}

func (m *mockReporter) Name() string { return m.name }

func (m *mockReporter) Init(_ map[string]any) error { return nil }

func (m *mockReporter) Start(_ context.Context) error { return nil }

func (m *mockReporter) Stop(_ context.Context) error { return nil }

func (m *mockReporter) Flush(_ context.Context) error {
	m.flushed.Store(true)
	return nil
}

func (m *mockReporter) Report(ctx context.Context, evt *models.Event) error {
	if m.reportHook != nil {
		return m.reportHook(ctx, evt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reported = append(m.reported, evt)
	return nil
}

func (m *mockReporter) events() []*models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*models.Event, len(m.reported))
	copy(cp, m.reported)
	return cp
}

// mockBatchReporter implements both Reporter and BatchReporter.
type mockBatchReporter struct {
	mockReporter
	batchCalls []int
	batchMu    sync.Mutex
	batchErr   error
}

func (m *mockBatchReporter) ReportBatch(ctx context.Context, evts []*models.Event) error {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	m.batchCalls = append(m.batchCalls, len(evts))
	if m.batchErr != nil {
		return m.batchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reported = append(m.reported, evts...)
	return nil
}

func (m *mockBatchReporter) getBatchCalls() []int {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	cp := make([]int, len(m.batchCalls))
	copy(cp, m.batchCalls)
	return cp
}

var _ plugin.BatchReporter = (*mockBatchReporter)(nil)

func TestDispatcher_BatchesBySize(t *testing.T) {
	br := &mockBatchReporter{mockReporter: mockReporter{name: "batch-test"}}
	d := NewDispatcher(DispatcherConfig{
		Reporters:    []plugin.Reporter{br},
		BatchSize:    5,
		BatchTimeout: time.Second,
	})
	d.Start(context.Background())

	for i := 0; i < 10; i++ {
		d.Send(&models.Event{Payload: []byte{byte(i)}})
	}
	d.Close()

	total := 0
	for _, n := range br.getBatchCalls() {
		total += n
	}
	if total != 10 {
		t.Errorf("expected 10 events across batches, got %d", total)
	}
	if !br.flushed.Load() {
		t.Error("expected reporter Flush on Close")
	}
}

func TestDispatcher_BatchesByTimeout(t *testing.T) {
	br := &mockBatchReporter{mockReporter: mockReporter{name: "timeout-test"}}
	d := NewDispatcher(DispatcherConfig{
		Reporters:    []plugin.Reporter{br},
		BatchSize:    1000,
		BatchTimeout: 20 * time.Millisecond,
	})
	d.Start(context.Background())
	defer d.Close()

	for i := 0; i < 3; i++ {
		d.Send(&models.Event{})
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(br.events()) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(br.events()); got != 3 {
		t.Errorf("expected 3 events flushed by timeout, got %d", got)
	}
}

func TestDispatcher_FallbackOnPrimaryFailure(t *testing.T) {
	primary := &mockBatchReporter{
		mockReporter: mockReporter{name: "primary"},
		batchErr:     fmt.Errorf("kafka unavailable"),
	}
	fallback := &mockReporter{name: "fallback"}

	d := NewDispatcher(DispatcherConfig{
		Reporters:    []plugin.Reporter{primary},
		Fallback:     fallback,
		BatchSize:    5,
		BatchTimeout: time.Second,
	})
	d.Start(context.Background())

	for i := 0; i < 5; i++ {
		d.Send(&models.Event{})
	}
	d.Close()

	if len(primary.getBatchCalls()) == 0 {
		t.Error("expected primary ReportBatch to be called")
	}
	if got := len(primary.events()); got != 0 {
		t.Errorf("expected 0 events in primary, got %d", got)
	}
	if got := len(fallback.events()); got != 5 {
		t.Errorf("expected 5 events in fallback, got %d", got)
	}
}

func TestDispatcher_FansOutAndFlushesOnClose(t *testing.T) {
	var received atomic.Int32
	a := &mockReporter{name: "a", reportHook: func(context.Context, *models.Event) error {
		received.Add(1)
		return nil
	}}
	b := &mockReporter{name: "b"}

	d := NewDispatcher(DispatcherConfig{
		Reporters:    []plugin.Reporter{a, b},
		BatchSize:    1000,
		BatchTimeout: time.Hour,
	})
	d.Start(context.Background())
	for i := 0; i < 7; i++ {
		d.Send(&models.Event{})
	}
	d.Close()

	if received.Load() != 7 {
		t.Errorf("reporter a: expected 7 events, got %d", received.Load())
	}
	if got := len(b.events()); got != 7 {
		t.Errorf("reporter b: expected 7 events, got %d", got)
	}
}
