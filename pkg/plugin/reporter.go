package plugin

import (
	"context"

	"firestige.xyz/wirelab/pkg/models"
)

// Reporter sends identified events to an external system.
type Reporter interface {
	Plugin
	Report(ctx context.Context, evt *models.Event) error
	Flush(ctx context.Context) error
}

// BatchReporter is an optional interface for reporters that can write a
// batch of events in one call.
type BatchReporter interface {
	Reporter
	ReportBatch(ctx context.Context, evts []*models.Event) error
}
