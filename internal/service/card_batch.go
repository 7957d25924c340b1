package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/noah-isme/staff-card-api/pkg/cardpdf"
)

// CardRenderer lays out one card document.
type CardRenderer interface {
	Render(ctx context.Context, rec cardpdf.Record) (*cardpdf.RenderedCard, error)
}

// BatchResult is the outcome for one record of a batch: either Card or Err is set.
type BatchResult struct {
	RecordID int64
	Card     *cardpdf.RenderedCard
	Err      error
}

// OK reports whether the record rendered.
func (r BatchResult) OK() bool {
	return r.Err == nil && r.Card != nil
}

// BatchOrchestrator fans card rendering out over a bounded pool of goroutines.
type BatchOrchestrator struct {
	renderer    CardRenderer
	maxInFlight int
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewBatchOrchestrator constructs an orchestrator running at most maxInFlight renders at once.
func NewBatchOrchestrator(renderer CardRenderer, maxInFlight int, metrics *MetricsService, logger *zap.Logger) *BatchOrchestrator {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchOrchestrator{renderer: renderer, maxInFlight: maxInFlight, metrics: metrics, logger: logger}
}

// Run renders every record and streams one BatchResult per record in completion order.
// The channel is closed once all scheduled renders have settled. After ctx is cancelled no new
// render is scheduled and results of renders still running are discarded.
func (o *BatchOrchestrator) Run(ctx context.Context, records []cardpdf.Record) <-chan BatchResult {
	out := make(chan BatchResult, o.maxInFlight)

	go func() {
		defer close(out)

		p := pool.New().WithMaxGoroutines(o.maxInFlight)
		for _, rec := range records {
			if ctx.Err() != nil {
				o.logger.Info("card batch cancelled before scheduling all records", zap.Int64("next_record_id", rec.ID))
				break
			}
			rec := rec
			p.Go(func() {
				result := o.renderOne(ctx, rec)
				select {
				case out <- result:
				case <-ctx.Done():
				}
			})
		}
		p.Wait()
	}()

	return out
}

func (o *BatchOrchestrator) renderOne(ctx context.Context, rec cardpdf.Record) (result BatchResult) {
	start := time.Now()
	o.metrics.RenderStarted()
	defer func() {
		if p := recover(); p != nil {
			result = BatchResult{RecordID: rec.ID, Err: &cardpdf.RenderError{RecordID: rec.ID, Err: fmt.Errorf("panic: %v", p)}}
		}
		o.metrics.RenderFinished(result.OK(), time.Since(start))
		if result.Err != nil {
			o.logger.Warn("card render failed", zap.Int64("record_id", rec.ID), zap.Error(result.Err))
		}
	}()

	card, err := o.renderer.Render(ctx, rec)
	if err != nil {
		return BatchResult{RecordID: rec.ID, Err: err}
	}
	if card == nil {
		return BatchResult{RecordID: rec.ID, Err: &cardpdf.RenderError{RecordID: rec.ID, Err: fmt.Errorf("renderer returned no document")}}
	}
	return BatchResult{RecordID: rec.ID, Card: card}
}
