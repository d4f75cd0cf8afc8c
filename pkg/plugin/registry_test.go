package plugin

import (
	"context"
	"testing"

	"firestige.xyz/wirelab/pkg/models"
	"firestige.xyz/wirelab/pkg/schema"
)

type mockPlugin struct {
	name string
}

func (m *mockPlugin) Name() string { return m.name }

func (m *mockPlugin) Init(cfg map[string]any) error { return nil }

func (m *mockPlugin) Start(ctx context.Context) error { return nil }

func (m *mockPlugin) Stop(ctx context.Context) error { return nil }

type mockParser struct {
	mockPlugin
}

func (m *mockParser) CanHandle(payload []byte) bool { return len(payload) > 0 }
func (m *mockParser) Handle(payload []byte) ([]schema.DecodedField, error) {
	return []schema.DecodedField{{Name: "len", Value: len(payload)}}, nil
}

type mockReporter struct {
	mockPlugin
	events []*models.Event
}

func (m *mockReporter) Report(ctx context.Context, evt *models.Event) error {
	m.events = append(m.events, evt)
	return nil
}
func (m *mockReporter) Flush(ctx context.Context) error { return nil }

func TestRegisterAndGetParser(t *testing.T) {
	parserReg.Reset()
	defer parserReg.Reset()

	RegisterParser("test_parser", func() Parser {
		return &mockParser{mockPlugin{name: "test_parser"}}
	})

	factory, err := GetParserFactory("test_parser")
	if err != nil {
		t.Fatalf("GetParserFactory failed: %v", err)
	}
	instance := factory()
	if instance.Name() != "test_parser" {
		t.Errorf("Expected name 'test_parser', got %s", instance.Name())
	}
	if !instance.CanHandle([]byte{1}) {
		t.Error("expected CanHandle to return true")
	}
}

func TestRegisterAndGetReporter(t *testing.T) {
	reporterReg.Reset()
	defer reporterReg.Reset()

	RegisterReporter("b", func() Reporter { return &mockReporter{mockPlugin: mockPlugin{name: "b"}} })
	RegisterReporter("a", func() Reporter { return &mockReporter{mockPlugin: mockPlugin{name: "a"}} })

	names := ReporterNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected names %v", names)
	}

	factory, err := GetReporterFactory("a")
	if err != nil {
		t.Fatalf("GetReporterFactory failed: %v", err)
	}
	r := factory()
	if err := r.Report(context.Background(), &models.Event{Protocol: "p"}); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if got := len(r.(*mockReporter).events); got != 1 {
		t.Errorf("expected 1 event, got %d", got)
	}
}

func TestGetUnknown(t *testing.T) {
	parserReg.Reset()
	if _, err := GetParserFactory("nope"); err == nil {
		t.Error("expected error for unknown parser")
	}
	if _, err := GetReporterFactory("nope"); err == nil {
		t.Error("expected error for unknown reporter")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	parserReg.Reset()
	defer parserReg.Reset()

	RegisterParser("dup", func() Parser { return &mockParser{} })
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	RegisterParser("dup", func() Parser { return &mockParser{} })
}
