package server

import (
	"context"
	"fmt"

	"github.com/Avi18971911/TraceView/internal/metrics"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/decoder"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
)

const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// SpanSink receives decoded batches. Submit blocks until the batch is accepted or ctx is
// done.
type SpanSink interface {
	Submit(ctx context.Context, batch model.SpanBatch) error
}

// TraceExporter is the transport independent part of an export request: decode, hand off
// the accepted spans and build the partial success acknowledgment.
type TraceExporter struct {
	decoder *decoder.TraceDecoder
	sink    SpanSink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewTraceExporter(
	sink SpanSink,
	metrics *metrics.Metrics,
	logger *zap.Logger,
) *TraceExporter {
	return &TraceExporter{
		decoder: decoder.NewTraceDecoder(logger),
		sink:    sink,
		metrics: metrics,
		logger:  logger,
	}
}

func (te *TraceExporter) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
	protocol string,
) (*protoTrace.ExportTraceServiceResponse, error) {
	result := te.decoder.Decode(req)
	te.metrics.RejectedSpans.WithLabelValues(protocol).Add(float64(result.RejectedSpans))

	if len(result.Spans) > 0 {
		batch := model.NewSpanBatch(result.Spans)
		te.logger.Debug(
			"Handing off decoded spans",
			zap.String("batch_id", batch.Id),
			zap.Int("span_count", len(batch.Spans)),
			zap.String("protocol", protocol),
		)
		if err := te.sink.Submit(ctx, batch); err != nil {
			te.metrics.ExportRequests.WithLabelValues(protocol, "failed").Inc()
			return nil, fmt.Errorf("failed to submit batch %s: %w", batch.Id, err)
		}
		te.metrics.AcceptedSpans.WithLabelValues(protocol).Add(float64(len(batch.Spans)))
	}

	outcome := "ok"
	if result.RejectedSpans > 0 {
		outcome = "partial"
	}
	te.metrics.ExportRequests.WithLabelValues(protocol, outcome).Inc()
	return &protoTrace.ExportTraceServiceResponse{
		PartialSuccess: &protoTrace.ExportTracePartialSuccess{
			RejectedSpans: result.RejectedSpans,
			ErrorMessage:  result.ErrorMessage,
		},
	}, nil
}
