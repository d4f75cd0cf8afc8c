package cmd

import (
	"context"
	"fmt"

	"firestige.xyz/wirelab/internal/config"
	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/metrics"
	"firestige.xyz/wirelab/internal/responder"
	"firestige.xyz/wirelab/internal/service"
	"firestige.xyz/wirelab/internal/store"
	"firestige.xyz/wirelab/pkg/plugin"
)

// pipeline is a running identification service with its reporters and the
// optional metrics endpoint.
type pipeline struct {
	svc       *service.Service
	reporters []plugin.Reporter
	metrics   *metrics.Server
}

// startPipeline builds the service for source. withReplies enables the
// auto-reply responder.
func startPipeline(ctx context.Context, cfg *config.GlobalConfig, ws *store.Workspace, source string, withReplies bool) (*pipeline, error) {
	parsers, err := service.NewParsers(cfg.Parsers)
	if err != nil {
		return nil, err
	}

	names := cfg.Reporters.Enabled
	if cfg.Reporters.Fallback != "" {
		names = append(append([]string(nil), names...), cfg.Reporters.Fallback)
	}
	reporters, err := service.StartReporters(ctx, names, cfg.Reporters.Options)
	if err != nil {
		return nil, err
	}
	p := &pipeline{reporters: reporters}

	dcfg := service.DispatcherConfig{
		Reporters:    reporters,
		BatchSize:    cfg.Reporters.BatchSize,
		BatchTimeout: cfg.Reporters.BatchTimeout,
	}
	if cfg.Reporters.Fallback != "" {
		dcfg.Reporters = reporters[:len(reporters)-1]
		dcfg.Fallback = reporters[len(reporters)-1]
	}
	dispatcher := service.NewDispatcher(dcfg)
	dispatcher.Start(ctx)

	p.svc = &service.Service{
		Source:     source,
		Identifier: service.NewIdentifier(ws, parsers),
		Dispatcher: dispatcher,
	}
	if withReplies {
		p.svc.Responder = responder.New(ws)
	}

	if cfg.Metrics.Enabled {
		p.metrics = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := p.metrics.Start(ctx); err != nil {
			p.stop(ctx)
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"source":    source,
		"templates": len(ws.Templates),
		"parsers":   len(parsers),
		"reporters": len(reporters),
	}).Info("pipeline started")
	return p, nil
}

// stop flushes pending events and stops every component.
func (p *pipeline) stop(ctx context.Context) {
	if p.svc != nil && p.svc.Dispatcher != nil {
		p.svc.Dispatcher.Close()
	}
	service.StopReporters(ctx, p.reporters)
	if p.metrics != nil {
		if err := p.metrics.Stop(ctx); err != nil {
			log.GetLogger().WithError(err).Warn("metrics server stop failed")
		}
	}
}
