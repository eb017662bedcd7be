package trace_store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Avi18971911/TraceView/internal/db/cache"
	"github.com/Avi18971911/TraceView/internal/metrics"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	"github.com/Avi18971911/TraceView/internal/pipeline/event_bus"
	"github.com/Avi18971911/TraceView/internal/pipeline/tree/service"
	"go.uber.org/zap"
)

var ErrTraceNotFound = errors.New("trace not found")

// TraceStore is the process wide set of assembled traces. Readers get snapshots; the
// contents are only ever replaced or extended as a whole.
type TraceStore interface {
	Traces() []model.Trace
	Trace(id string) (model.Trace, error)
	Rebuild(batch model.SpanBatch) error
	Append(traces []model.Trace)
}

type TraceStoreImpl struct {
	mu              sync.Mutex
	traces          []model.Trace
	treeConstructor service.TreeConstructor
	lookupCache     cache.LookupCache[model.Trace]
	eventBus        event_bus.TraceEventBus[any, event_bus.TracesRebuilt]
	metrics         *metrics.Metrics
	logger          *zap.Logger
}

func NewTraceStoreImpl(
	treeConstructor service.TreeConstructor,
	lookupCache cache.LookupCache[model.Trace],
	eventBus event_bus.TraceEventBus[any, event_bus.TracesRebuilt],
	metrics *metrics.Metrics,
	logger *zap.Logger,
) *TraceStoreImpl {
	return &TraceStoreImpl{
		traces:          []model.Trace{},
		treeConstructor: treeConstructor,
		lookupCache:     lookupCache,
		eventBus:        eventBus,
		metrics:         metrics,
		logger:          logger,
	}
}

// Traces returns a snapshot of the current traces. The returned slice is never mutated by
// the store.
func (ts *TraceStoreImpl) Traces() []model.Trace {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	snapshot := make([]model.Trace, len(ts.traces))
	copy(snapshot, ts.traces)
	return snapshot
}

func (ts *TraceStoreImpl) Trace(id string) (model.Trace, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	trace, err := ts.lookupCache.Get(id)
	if err == nil {
		return trace, nil
	}
	for _, trace := range ts.traces {
		if trace.Id != id {
			continue
		}
		if err := ts.lookupCache.Put(id, trace, int64(len(trace.Spans))); err != nil {
			ts.logger.Debug("Failed to cache trace", zap.String("trace_id", id), zap.Error(err))
		}
		return trace, nil
	}
	return model.Trace{}, fmt.Errorf("%w: %s", ErrTraceNotFound, id)
}

// Rebuild assembles every stored span together with the batch and replaces the stored
// traces with the result. On failure the store is left as it was.
func (ts *TraceStoreImpl) Rebuild(batch model.SpanBatch) error {
	startTime := time.Now()
	ts.mu.Lock()
	allSpans := ts.flattenLocked()
	allSpans = append(allSpans, batch.Spans...)
	traces, err := ts.buildTraces(allSpans)
	if err != nil {
		ts.mu.Unlock()
		ts.metrics.RebuildFailures.Inc()
		return fmt.Errorf("failed to rebuild traces for batch %s: %w", batch.Id, err)
	}
	ts.traces = traces
	ts.lookupCache.Clear()
	event := ts.rebuiltEventLocked(batch.Id, len(allSpans))
	ts.mu.Unlock()

	ts.metrics.RebuildDuration.Observe(time.Since(startTime).Seconds())
	ts.publish(event)
	return nil
}

// Append adds already assembled traces without rebuilding the existing ones.
func (ts *TraceStoreImpl) Append(traces []model.Trace) {
	ts.mu.Lock()
	ts.traces = append(ts.traces, traces...)
	ts.lookupCache.Clear()
	event := ts.rebuiltEventLocked("", 0)
	ts.mu.Unlock()

	ts.publish(event)
}

func (ts *TraceStoreImpl) flattenLocked() []model.Span {
	var spans []model.Span
	for _, trace := range ts.traces {
		spans = append(spans, trace.Spans...)
	}
	return spans
}

func (ts *TraceStoreImpl) buildTraces(spans []model.Span) (traces []model.Trace, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while building traces: %v", r)
		}
	}()
	return ts.treeConstructor.BuildTraces(spans), nil
}

func (ts *TraceStoreImpl) rebuiltEventLocked(batchId string, inputSpans int) event_bus.TracesRebuilt {
	spanCount := 0
	for _, trace := range ts.traces {
		spanCount += len(trace.Spans)
	}
	dropped := 0
	if inputSpans > spanCount {
		dropped = inputSpans - spanCount
	}
	return event_bus.TracesRebuilt{
		BatchId:      batchId,
		TraceCount:   len(ts.traces),
		SpanCount:    spanCount,
		DroppedSpans: dropped,
	}
}

func (ts *TraceStoreImpl) publish(event event_bus.TracesRebuilt) {
	ts.logger.Info(
		"Trace store updated",
		zap.String("batch_id", event.BatchId),
		zap.Int("trace_count", event.TraceCount),
		zap.Int("span_count", event.SpanCount),
		zap.Int("dropped_spans", event.DroppedSpans),
	)
	err := ts.eventBus.Publish(event_bus.TracesRebuiltTopic, event)
	if err != nil {
		ts.logger.Error("Failed to publish rebuild event", zap.Error(err))
	}
}
