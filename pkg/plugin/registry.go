package plugin

import (
	"fmt"
	"sort"
	"sync"
)

type (
	ParserFactory   func() Parser
	ReporterFactory func() Reporter
)

type registry[F any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]F
}

func newRegistry[F any](kind string) *registry[F] {
	return &registry[F]{kind: kind, factories: make(map[string]F)}
}

func (r *registry[F]) register(name string, f F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("plugin: %s %q registered twice", r.kind, name))
	}
	r.factories[name] = f
}

func (r *registry[F]) get(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("plugin: unknown %s %q", r.kind, name)
	}
	return f, nil
}

func (r *registry[F]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reset drops every registration. Tests only.
func (r *registry[F]) Reset() {
	r.mu.Lock()
	r.factories = make(map[string]F)
	r.mu.Unlock()
}

var (
	parserReg   = newRegistry[ParserFactory]("parser")
	reporterReg = newRegistry[ReporterFactory]("reporter")
)

// RegisterParser makes a parser available by name. It panics on duplicates.
func RegisterParser(name string, f ParserFactory) { parserReg.register(name, f) }

func GetParserFactory(name string) (ParserFactory, error) { return parserReg.get(name) }

// ParserNames lists registered parsers in name order.
func ParserNames() []string { return parserReg.names() }

// RegisterReporter makes a reporter available by name. It panics on duplicates.
func RegisterReporter(name string, f ReporterFactory) { reporterReg.register(name, f) }

func GetReporterFactory(name string) (ReporterFactory, error) { return reporterReg.get(name) }

// ReporterNames lists registered reporters in name order.
func ReporterNames() []string { return reporterReg.names() }
