package main

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"repogauge/internal/analyzer"
	"repogauge/internal/models"
	"repogauge/pkg/telemetry"
)

// spanObserver decorates another observer with one span per repository
// analysis, parented to the active run span. Events may arrive from
// concurrent workers, so the open-span table is mutex guarded.
type spanObserver struct {
	analyzer.Observer
	tp *telemetry.TracerProvider

	mu   sync.Mutex
	base context.Context
	open map[string]context.Context
}

func newSpanObserver(tp *telemetry.TracerProvider, inner analyzer.Observer) *spanObserver {
	return &spanObserver{
		Observer: inner,
		tp:       tp,
		base:     context.Background(),
		open:     make(map[string]context.Context),
	}
}

// beginRun parents subsequent repository spans to the run span in ctx.
func (o *spanObserver) beginRun(ctx context.Context) {
	o.mu.Lock()
	o.base = ctx
	o.mu.Unlock()
}

func (o *spanObserver) RepoStarted(fullName string) {
	o.mu.Lock()
	spanCtx, _ := o.tp.StartRepo(o.base, fullName)
	o.open[fullName] = spanCtx
	o.mu.Unlock()
	o.Observer.RepoStarted(fullName)
}

func (o *spanObserver) RepoCompleted(stats *models.RepositoryStatistics) {
	if spanCtx := o.take(stats.FullName); spanCtx != nil {
		telemetry.AddSpanAttributes(spanCtx,
			attribute.Int("repo.total_loc", stats.TotalLOC),
			attribute.Int("repo.total_files", stats.TotalFiles),
			attribute.Float64("repo.maintenance_score", stats.MaintenanceScore),
			attribute.Bool("repo.is_empty", stats.IsEmpty),
		)
		trace.SpanFromContext(spanCtx).End()
	}
	o.Observer.RepoCompleted(stats)
}

func (o *spanObserver) RepoFailed(fullName string, err error) {
	if spanCtx := o.take(fullName); spanCtx != nil {
		telemetry.RecordError(spanCtx, err)
		trace.SpanFromContext(spanCtx).End()
	}
	o.Observer.RepoFailed(fullName, err)
}

func (o *spanObserver) take(fullName string) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	spanCtx, ok := o.open[fullName]
	if !ok {
		return nil
	}
	delete(o.open, fullName)
	return spanCtx
}

func (o *spanObserver) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.open)
}
