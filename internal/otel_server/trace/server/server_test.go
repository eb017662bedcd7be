package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Avi18971911/TraceView/internal/metrics"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var logger = zap.NewNop()

type recordingSink struct {
	mu      sync.Mutex
	batches []model.SpanBatch
	err     error
}

func (rs *recordingSink) Submit(ctx context.Context, batch model.SpanBatch) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.err != nil {
		return rs.err
	}
	rs.batches = append(rs.batches, batch)
	return nil
}

func (rs *recordingSink) spanCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	count := 0
	for _, batch := range rs.batches {
		count += len(batch.Spans)
	}
	return count
}

func validSpan(last byte) *v1.Span {
	traceId := make([]byte, 16)
	traceId[15] = 1
	return &v1.Span{
		TraceId:           traceId,
		SpanId:            []byte{0, 0, 0, 0, 0, 0, 0, last},
		Name:              "operation",
		StartTimeUnixNano: 1_700_000_000_000_000_000,
		EndTimeUnixNano:   1_700_000_000_500_000_000,
	}
}

// threeSpanRequest holds two valid spans and one with a 7 byte span id.
func threeSpanRequest() *protoTrace.ExportTraceServiceRequest {
	invalid := validSpan(3)
	invalid.SpanId = []byte{0, 0, 0, 0, 0, 0, 3}
	return &protoTrace.ExportTraceServiceRequest{
		ResourceSpans: []*v1.ResourceSpans{
			{
				ScopeSpans: []*v1.ScopeSpans{
					{Spans: []*v1.Span{validSpan(1), invalid, validSpan(2)}},
				},
			},
		},
	}
}

func newHandler(sink SpanSink, maxRequestBytes int64) (http.HandlerFunc, *metrics.Metrics) {
	m := metrics.NewMetrics()
	return TraceExportHandler(NewTraceExporter(sink, m, logger), maxRequestBytes, logger), m
}

func TestTraceExportHandler(t *testing.T) {
	t.Run("should report partial success for protobuf requests", func(t *testing.T) {
		sink := &recordingSink{}
		handler, m := newHandler(sink, 1<<20)
		body, err := proto.Marshal(threeSpanRequest())
		require.Nil(t, err)

		req := httptest.NewRequest(http.MethodPost, TracesPath, bytes.NewReader(body))
		req.Header.Set("Content-Type", contentTypeProtobuf)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, contentTypeProtobuf, rec.Header().Get("Content-Type"))
		res := &protoTrace.ExportTraceServiceResponse{}
		require.Nil(t, proto.Unmarshal(rec.Body.Bytes(), res))
		assert.Equal(t, int64(1), res.GetPartialSuccess().GetRejectedSpans())
		assert.Contains(t, res.GetPartialSuccess().GetErrorMessage(), "span_id must be 8 bytes")
		assert.Equal(t, 1, len(sink.batches))
		assert.Equal(t, 2, sink.spanCount())
		assert.Equal(t, float64(2), testutil.ToFloat64(m.AcceptedSpans.WithLabelValues(ProtocolHTTP)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.RejectedSpans.WithLabelValues(ProtocolHTTP)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ExportRequests.WithLabelValues(ProtocolHTTP, "partial")))
	})

	t.Run("should decode and answer json requests", func(t *testing.T) {
		sink := &recordingSink{}
		handler, _ := newHandler(sink, 1<<20)
		body, err := protojson.Marshal(&protoTrace.ExportTraceServiceRequest{
			ResourceSpans: []*v1.ResourceSpans{{ScopeSpans: []*v1.ScopeSpans{{Spans: []*v1.Span{validSpan(1)}}}}},
		})
		require.Nil(t, err)

		req := httptest.NewRequest(http.MethodPost, TracesPath, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, contentTypeJSON, rec.Header().Get("Content-Type"))
		res := &protoTrace.ExportTraceServiceResponse{}
		require.Nil(t, protojson.Unmarshal(rec.Body.Bytes(), res))
		assert.Equal(t, int64(0), res.GetPartialSuccess().GetRejectedSpans())
		assert.Equal(t, "", res.GetPartialSuccess().GetErrorMessage())
		assert.Equal(t, 1, sink.spanCount())
	})

	t.Run("should decompress gzip bodies", func(t *testing.T) {
		sink := &recordingSink{}
		handler, _ := newHandler(sink, 1<<20)
		body, err := proto.Marshal(threeSpanRequest())
		require.Nil(t, err)
		var compressed bytes.Buffer
		gz := gzip.NewWriter(&compressed)
		_, err = gz.Write(body)
		require.Nil(t, err)
		require.Nil(t, gz.Close())

		req := httptest.NewRequest(http.MethodPost, TracesPath, &compressed)
		req.Header.Set("Content-Type", contentTypeProtobuf)
		req.Header.Set("Content-Encoding", "gzip")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, sink.spanCount())
	})

	t.Run("should not hand off a request without valid spans", func(t *testing.T) {
		sink := &recordingSink{}
		handler, _ := newHandler(sink, 1<<20)
		body, err := proto.Marshal(&protoTrace.ExportTraceServiceRequest{})
		require.Nil(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, TracesPath, bytes.NewReader(body)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, sink.batches)
	})

	t.Run("should reject malformed bodies", func(t *testing.T) {
		handler, _ := newHandler(&recordingSink{}, 1<<20)
		req := httptest.NewRequest(http.MethodPost, TracesPath, bytes.NewReader([]byte{0xff, 0xff, 0xff}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject oversized bodies", func(t *testing.T) {
		handler, _ := newHandler(&recordingSink{}, 8)
		body, err := proto.Marshal(threeSpanRequest())
		require.Nil(t, err)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, TracesPath, bytes.NewReader(body)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("should answer unavailable when the batch cannot be handed off", func(t *testing.T) {
		handler, m := newHandler(&recordingSink{err: errors.New("stopped")}, 1<<20)
		body, err := proto.Marshal(threeSpanRequest())
		require.Nil(t, err)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, TracesPath, bytes.NewReader(body)))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ExportRequests.WithLabelValues(ProtocolHTTP, "failed")))
	})
}

func startBufconnServer(t *testing.T, sink SpanSink) protoTrace.TraceServiceClient {
	listener := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	exporter := NewTraceExporter(sink, metrics.NewMetrics(), logger)
	protoTrace.RegisterTraceServiceServer(srv, NewTraceServiceServerImpl(exporter, logger))
	go func() {
		_ = srv.Serve(listener)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.Nil(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return protoTrace.NewTraceServiceClient(conn)
}

func TestTraceServiceServerImpl(t *testing.T) {
	t.Run("should export over gRPC with partial success", func(t *testing.T) {
		sink := &recordingSink{}
		client := startBufconnServer(t, sink)

		res, err := client.Export(context.Background(), threeSpanRequest())
		require.Nil(t, err)
		assert.Equal(t, int64(1), res.GetPartialSuccess().GetRejectedSpans())
		assert.Equal(t, 2, sink.spanCount())
	})

	t.Run("should return unavailable when the batch cannot be handed off", func(t *testing.T) {
		client := startBufconnServer(t, &recordingSink{err: errors.New("stopped")})

		_, err := client.Export(context.Background(), threeSpanRequest())
		assert.Equal(t, codes.Unavailable, status.Code(err))
	})
}
