package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Avi18971911/TraceView/internal/otel_server/trace/helper"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
)

const (
	spanIdLength  = 8
	traceIdLength = 16
)

var (
	ErrInvalidSpanID       = errors.New("span_id must be 8 bytes")
	ErrInvalidParentSpanID = errors.New("parent_span_id must be empty or 8 bytes")
	ErrInvalidTraceID      = errors.New("trace_id must be 16 bytes")
	ErrInvalidTimestamp    = errors.New("timestamp out of range")
)

// DecodeResult holds the spans that decoded cleanly along with the partial success
// accounting for the ones that did not.
type DecodeResult struct {
	Spans         []model.Span
	RejectedSpans int64
	ErrorMessage  string
}

type TraceDecoder struct {
	logger *zap.Logger
}

func NewTraceDecoder(logger *zap.Logger) *TraceDecoder {
	return &TraceDecoder{
		logger: logger,
	}
}

// Decode converts every span of the request. A span that fails to decode is counted and
// described in the result but never aborts the rest of the request.
func (td *TraceDecoder) Decode(req *protoTrace.ExportTraceServiceRequest) DecodeResult {
	var result DecodeResult
	var errorMessages []string
	for _, resourceSpan := range req.GetResourceSpans() {
		resourceMetadata := helper.MapAttributes(resourceSpan.GetResource().GetAttributes())
		for _, scopeSpan := range resourceSpan.GetScopeSpans() {
			scopeMetadata := helper.MapAttributes(scopeSpan.GetScope().GetAttributes())
			metadata := helper.MergeAttributes(resourceMetadata, scopeMetadata)
			for _, span := range scopeSpan.GetSpans() {
				typedSpan, err := getTypedSpan(span, metadata)
				if err != nil {
					td.logger.Debug(
						"Rejected span during decoding",
						zap.String("name", span.GetName()),
						zap.Error(err),
					)
					result.RejectedSpans++
					errorMessages = append(errorMessages, fmt.Sprintf("span %q: %v", span.GetName(), err))
					continue
				}
				result.Spans = append(result.Spans, typedSpan)
			}
		}
	}
	if result.RejectedSpans > 0 {
		td.logger.Warn(
			"Some spans in the export request were rejected",
			zap.Int64("rejected_spans", result.RejectedSpans),
			zap.Int("accepted_spans", len(result.Spans)),
		)
	}
	result.ErrorMessage = strings.Join(errorMessages, "\n")
	return result
}

func getTypedSpan(span *v1.Span, metadata map[string]string) (model.Span, error) {
	spanId, err := SpanIdFromBytes(span.GetSpanId())
	if err != nil {
		return model.Span{}, err
	}
	traceId, err := TraceIdFromBytes(span.GetTraceId())
	if err != nil {
		return model.Span{}, err
	}
	parentSpanId, err := parentSpanIdFromBytes(span.GetParentSpanId())
	if err != nil {
		return model.Span{}, err
	}
	startTime, err := timeFromUnixNano(span.GetStartTimeUnixNano())
	if err != nil {
		return model.Span{}, fmt.Errorf("invalid start time: %w", err)
	}
	endTime, err := timeFromUnixNano(span.GetEndTimeUnixNano())
	if err != nil {
		return model.Span{}, fmt.Errorf("invalid end time: %w", err)
	}

	return model.Span{
		SpanID:         spanId,
		Name:           span.GetName(),
		StartTime:      startTime,
		DurationMicros: endTime.UnixMicro() - startTime.UnixMicro(),
		TraceID:        traceId,
		ParentSpanID:   parentSpanId,
		Attributes:     helper.MapAttributes(span.GetAttributes()),
		Metadata:       helper.MergeAttributes(metadata, nil),
	}, nil
}

// SpanIdFromBytes renders an 8 byte big-endian span id as lowercase hex without leading
// zeros.
func SpanIdFromBytes(id []byte) (string, error) {
	if len(id) != spanIdLength {
		return "", fmt.Errorf("%w, got %d", ErrInvalidSpanID, len(id))
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(id), 16), nil
}

// TraceIdFromBytes renders a 16 byte big-endian trace id as lowercase hex without leading
// zeros.
func TraceIdFromBytes(id []byte) (string, error) {
	if len(id) != traceIdLength {
		return "", fmt.Errorf("%w, got %d", ErrInvalidTraceID, len(id))
	}
	high := binary.BigEndian.Uint64(id[:8])
	low := binary.BigEndian.Uint64(id[8:])
	if high == 0 {
		return strconv.FormatUint(low, 16), nil
	}
	return fmt.Sprintf("%x%016x", high, low), nil
}

func parentSpanIdFromBytes(id []byte) (string, error) {
	if len(id) == 0 {
		return "", nil
	}
	if len(id) != spanIdLength {
		return "", fmt.Errorf("%w, got %d", ErrInvalidParentSpanID, len(id))
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(id), 16), nil
}

// timeFromUnixNano rejects values that do not fit a signed nanosecond count, the range
// time.Time can round-trip through UnixNano.
func timeFromUnixNano(nanos uint64) (time.Time, error) {
	if nanos > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidTimestamp, nanos)
	}
	return time.Unix(0, int64(nanos)).UTC(), nil
}
