package service

import (
	"sort"

	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	"go.uber.org/zap"
)

type TreeConstructor interface {
	BuildTraces(spans []model.Span) []model.Trace
}

type TreeConstructorService struct {
	logger *zap.Logger
}

func NewTreeConstructorService(logger *zap.Logger) *TreeConstructorService {
	return &TreeConstructorService{
		logger: logger,
	}
}

// BuildTraces partitions spans into roots and descendants and assembles one Trace per
// root, in the order the roots were given. Descendants whose trace has no root, or whose
// parent cannot be reached from the root, are left out.
func (tcs *TreeConstructorService) BuildTraces(spans []model.Span) []model.Trace {
	var roots []model.Span
	descendantsByTraceId := make(map[string][]model.Span)
	for _, span := range spans {
		if span.IsRoot() {
			roots = append(roots, span)
			continue
		}
		descendantsByTraceId[span.TraceID] = append(descendantsByTraceId[span.TraceID], span)
	}

	traces := make([]model.Trace, 0, len(roots))
	for _, root := range roots {
		traces = append(traces, tcs.ConstructTrace(root, descendantsByTraceId[root.TraceID]))
	}
	return traces
}

// ConstructTrace lays out root and its descendants in pre-order. Siblings are ordered by
// start time, then by span id.
func (tcs *TreeConstructorService) ConstructTrace(root model.Span, descendants []model.Span) model.Trace {
	root.Level = 0
	root.OffsetMicros = 0

	spansById := make(map[string]model.Span, len(descendants))
	for _, span := range descendants {
		span.OffsetMicros = span.StartTime.Sub(root.StartTime).Microseconds()
		spansById[span.SpanID] = span
	}
	childrenByParentId := make(map[string][]model.Span)
	for _, span := range spansById {
		childrenByParentId[span.ParentSpanID] = append(childrenByParentId[span.ParentSpanID], span)
	}
	for _, children := range childrenByParentId {
		sortSiblings(children)
	}

	ordered := []model.Span{root}
	visited := map[string]bool{root.SpanID: true}
	var visit func(parentId string, level int)
	visit = func(parentId string, level int) {
		for _, child := range childrenByParentId[parentId] {
			if visited[child.SpanID] {
				continue
			}
			visited[child.SpanID] = true
			child.Level = level + 1
			ordered = append(ordered, child)
			visit(child.SpanID, child.Level)
		}
	}
	visit(root.SpanID, 0)

	if dropped := len(descendants) - (len(ordered) - 1); dropped > 0 {
		tcs.logUnreachable(root, descendants, visited, dropped)
	}

	return model.Trace{
		Id:          root.TraceID,
		Spans:       ordered,
		Connections: connectionsOf(ordered),
	}
}

func (tcs *TreeConstructorService) logUnreachable(
	root model.Span,
	descendants []model.Span,
	visited map[string]bool,
	dropped int,
) {
	var unreachable []string
	for _, span := range descendants {
		if !visited[span.SpanID] {
			unreachable = append(unreachable, span.SpanID)
		}
	}
	tcs.logger.Warn(
		"Dropped spans that could not be reached from the trace root",
		zap.String("trace_id", root.TraceID),
		zap.String("root_span_id", root.SpanID),
		zap.Int("dropped", dropped),
		zap.Strings("span_ids", unreachable),
	)
}

func sortSiblings(spans []model.Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if !spans[i].StartTime.Equal(spans[j].StartTime) {
			return spans[i].StartTime.Before(spans[j].StartTime)
		}
		return spans[i].SpanID < spans[j].SpanID
	})
}

func connectionsOf(spans []model.Span) map[string][]int {
	connections := make(map[string][]int, len(spans))
	for i, span := range spans {
		connections[span.SpanID] = append(connections[span.SpanID], i)
	}
	return connections
}
