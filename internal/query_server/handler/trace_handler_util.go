package handler

import "github.com/Avi18971911/TraceView/internal/otel_server/trace/model"

func mapTracesToListDTO(traces []model.Trace) TraceListResponseDTO {
	summaries := make([]TraceSummaryDTO, len(traces))
	for i, trace := range traces {
		root := trace.Root()
		summaries[i] = TraceSummaryDTO{
			Id:             trace.Id,
			RootName:       root.Name,
			Start:          root.StartTime,
			DurationMicros: root.DurationMicros,
			SpanCount:      len(trace.Spans),
		}
	}
	return TraceListResponseDTO{Traces: summaries}
}

func mapTraceToDTO(trace model.Trace) TraceResponseDTO {
	spans := make([]SpanDTO, len(trace.Spans))
	for i, span := range trace.Spans {
		spans[i] = SpanDTO{
			SpanId:         span.SpanID,
			ParentSpanId:   span.ParentSpanID,
			Name:           span.Name,
			Start:          span.StartTime,
			DurationMicros: span.DurationMicros,
			OffsetMicros:   span.OffsetMicros,
			Level:          span.Level,
			Attributes:     span.Attributes,
			Metadata:       span.Metadata,
		}
	}
	return TraceResponseDTO{
		Id:    trace.Id,
		Spans: spans,
	}
}
