package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/metrics"
	"firestige.xyz/wirelab/pkg/models"
	"firestige.xyz/wirelab/pkg/plugin"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 50 * time.Millisecond
	defaultChanCap      = 10000
)

// batcher wraps one Reporter with batching and optional fallback:
//
//	Dispatcher.Send() → batcher.batchCh → batchLoop → Reporter.ReportBatch()/Report()
//	                                                └→ fallback Reporter (on primary failure)
type batcher struct {
	primary  plugin.Reporter
	fallback plugin.Reporter

	batchSize    int
	batchTimeout time.Duration

	batchCh chan *models.Event
	doneCh  chan struct{}
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Reporters    []plugin.Reporter
	Fallback     plugin.Reporter // nil if no fallback
	BatchSize    int
	BatchTimeout time.Duration
}

// Dispatcher fans events out to every configured reporter, each through its
// own batch loop.
type Dispatcher struct {
	batchers []*batcher
}

// NewDispatcher creates a Dispatcher. Reporters are not started.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	d := &Dispatcher{}
	for _, r := range cfg.Reporters {
		d.batchers = append(d.batchers, &batcher{
			primary:      r,
			fallback:     cfg.Fallback,
			batchSize:    batchSize,
			batchTimeout: batchTimeout,
			batchCh:      make(chan *models.Event, defaultChanCap),
			doneCh:       make(chan struct{}),
		})
	}
	return d
}

// Start starts one batch loop per reporter.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, b := range d.batchers {
		go b.batchLoop(ctx)
	}
}

// Send enqueues evt for every reporter. It blocks only when a reporter's
// buffer is full.
func (d *Dispatcher) Send(evt *models.Event) {
	for _, b := range d.batchers {
		b.batchCh <- evt
	}
}

// Close stops accepting events and waits until every pending batch is
// flushed.
func (d *Dispatcher) Close() {
	for _, b := range d.batchers {
		close(b.batchCh)
	}
	for _, b := range d.batchers {
		<-b.doneCh
	}
}

// batchLoop collects events into batches and flushes on size or timeout.
func (b *batcher) batchLoop(ctx context.Context) {
	defer close(b.doneCh)

	batch := make([]*models.Event, 0, b.batchSize)
	ticker := time.NewTicker(b.batchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := b.sendBatch(ctx, batch); err != nil {
			log.GetLogger().WithFields(map[string]interface{}{
				"reporter":   b.primary.Name(),
				"batch_size": len(batch),
			}).Warnf("primary reporter batch failed: %v", err)
			if b.fallback != nil {
				for _, evt := range batch {
					if fbErr := b.fallback.Report(ctx, evt); fbErr != nil {
						metrics.ReporterErrorsTotal.WithLabelValues(b.fallback.Name(), "fallback").Inc()
						log.GetLogger().WithField("reporter", b.fallback.Name()).Warnf("fallback reporter also failed: %v", fbErr)
					}
				}
			}
		}
		batch = make([]*models.Event, 0, b.batchSize)
	}

	for {
		select {
		case evt, ok := <-b.batchCh:
			if !ok {
				flush()
				if err := b.primary.Flush(ctx); err != nil {
					log.GetLogger().WithField("reporter", b.primary.Name()).Warnf("reporter flush failed: %v", err)
				}
				return
			}
			batch = append(batch, evt)
			if len(batch) >= b.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// sendBatch prefers BatchReporter and otherwise calls Report one event at a
// time.
func (b *batcher) sendBatch(ctx context.Context, batch []*models.Event) error {
	name := b.primary.Name()
	metrics.ReporterBatchSize.WithLabelValues(name).Observe(float64(len(batch)))

	if br, ok := b.primary.(plugin.BatchReporter); ok {
		if err := br.ReportBatch(ctx, batch); err != nil {
			metrics.ReporterErrorsTotal.WithLabelValues(name, "batch").Inc()
			return err
		}
		return nil
	}

	var errs []error
	for _, evt := range batch {
		if err := b.primary.Report(ctx, evt); err != nil {
			metrics.ReporterErrorsTotal.WithLabelValues(name, "report").Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartReporters instantiates, initializes and starts reporters by name.
// configs holds each reporter's options keyed by name and may be nil.
func StartReporters(ctx context.Context, names []string, configs map[string]map[string]any) ([]plugin.Reporter, error) {
	var started []plugin.Reporter
	for _, name := range names {
		factory, err := plugin.GetReporterFactory(name)
		if err != nil {
			StopReporters(ctx, started)
			return nil, err
		}
		r := factory()
		if err := r.Init(configs[name]); err != nil {
			StopReporters(ctx, started)
			return nil, fmt.Errorf("init reporter %s: %w", name, err)
		}
		if err := r.Start(ctx); err != nil {
			StopReporters(ctx, started)
			return nil, fmt.Errorf("start reporter %s: %w", name, err)
		}
		started = append(started, r)
	}
	return started, nil
}

// StopReporters stops reporters in reverse start order.
func StopReporters(ctx context.Context, reporters []plugin.Reporter) {
	for i := len(reporters) - 1; i >= 0; i-- {
		if err := reporters[i].Stop(ctx); err != nil {
			log.GetLogger().WithField("reporter", reporters[i].Name()).Warnf("reporter stop failed: %v", err)
		}
	}
}
