package collector

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Avi18971911/TraceView/internal/db/cache"
	"github.com/Avi18971911/TraceView/internal/db/trace_store"
	"github.com/Avi18971911/TraceView/internal/metrics"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	"github.com/Avi18971911/TraceView/internal/pipeline/event_bus"
	"github.com/Avi18971911/TraceView/internal/pipeline/tree/service"
	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

var logger = zap.NewNop()

func newTestCollector(t *testing.T, options Options) (*Collector, *trace_store.TraceStoreImpl) {
	ristrettoCache, err := cache.NewRistrettoCache(1 << 10)
	require.Nil(t, err)
	m := metrics.NewMetrics()
	treeConstructor := service.NewTreeConstructorService(logger)
	store := trace_store.NewTraceStoreImpl(
		treeConstructor,
		cache.NewLookupCacheImpl[model.Trace](ristrettoCache),
		event_bus.NewTraceEventBus[any, event_bus.TracesRebuilt](EventBus.New(), logger),
		m,
		logger,
	)
	return NewCollector(store, treeConstructor, m, options, logger), store
}

func spanWithParent(last byte, parent byte, startOffset time.Duration) *v1.Span {
	traceId := make([]byte, 16)
	traceId[15] = 0xab
	start := uint64(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC).Add(startOffset).UnixNano())
	span := &v1.Span{
		TraceId:           traceId,
		SpanId:            []byte{0, 0, 0, 0, 0, 0, 0, last},
		Name:              "operation",
		StartTimeUnixNano: start,
		EndTimeUnixNano:   start + uint64(time.Millisecond),
	}
	if parent != 0 {
		span.ParentSpanId = []byte{0, 0, 0, 0, 0, 0, 0, parent}
	}
	return span
}

func exportRequest(spans ...*v1.Span) *protoTrace.ExportTraceServiceRequest {
	return &protoTrace.ExportTraceServiceRequest{
		ResourceSpans: []*v1.ResourceSpans{{ScopeSpans: []*v1.ScopeSpans{{Spans: spans}}}},
	}
}

func postExport(t *testing.T, addr net.Addr, req *protoTrace.ExportTraceServiceRequest) *protoTrace.ExportTraceServiceResponse {
	body, err := proto.Marshal(req)
	require.Nil(t, err)
	httpRes, err := http.Post("http://"+addr.String()+"/v1/traces", "application/x-protobuf", bytes.NewReader(body))
	require.Nil(t, err)
	defer httpRes.Body.Close()
	require.Equal(t, http.StatusOK, httpRes.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(httpRes.Body)
	require.Nil(t, err)
	res := &protoTrace.ExportTraceServiceResponse{}
	require.Nil(t, proto.Unmarshal(buf.Bytes(), res))
	return res
}

func TestLifecycle(t *testing.T) {
	t.Run("should refuse to stop when nothing is active", func(t *testing.T) {
		c, _ := newTestCollector(t, Options{})
		assert.True(t, errors.Is(c.Stop(), ErrNoActiveCollector))
	})

	t.Run("should refuse a second start while active", func(t *testing.T) {
		c, _ := newTestCollector(t, Options{})
		require.Nil(t, c.Start("localhost", "0"))
		defer c.Stop()
		assert.True(t, errors.Is(c.Start("localhost", "0"), ErrCollectorActive))
	})

	t.Run("should allow a restart after stopping", func(t *testing.T) {
		c, _ := newTestCollector(t, Options{})
		require.Nil(t, c.Start("127.0.0.1", "0"))
		assert.NotNil(t, c.Addr())
		require.Nil(t, c.Stop())
		assert.Nil(t, c.Addr())
		require.Nil(t, c.Start("127.0.0.1", "0"))
		assert.Nil(t, c.Stop())
	})

	t.Run("should reject invalid addresses", func(t *testing.T) {
		c, _ := newTestCollector(t, Options{})
		assert.True(t, errors.Is(c.Start("example.com", "3000"), ErrInvalidHost))
		assert.True(t, errors.Is(c.Start("127.0.0.256", "3000"), ErrInvalidHost))
		assert.True(t, errors.Is(c.Start("localhost", "65536"), ErrInvalidPort))
		assert.True(t, errors.Is(c.Start("localhost", "http"), ErrInvalidPort))
		assert.True(t, errors.Is(c.Stop(), ErrNoActiveCollector))
	})

	t.Run("should surface bind failures and stay inactive", func(t *testing.T) {
		occupied, err := net.Listen("tcp", "127.0.0.1:0")
		require.Nil(t, err)
		defer occupied.Close()
		_, port, err := net.SplitHostPort(occupied.Addr().String())
		require.Nil(t, err)

		c, _ := newTestCollector(t, Options{})
		assert.NotNil(t, c.Start("127.0.0.1", port))
		assert.True(t, errors.Is(c.Stop(), ErrNoActiveCollector))
	})
}

func TestIngestion(t *testing.T) {
	t.Run("should deliver accepted spans to the store and acknowledge rejections", func(t *testing.T) {
		c, store := newTestCollector(t, Options{})
		require.Nil(t, c.Start("localhost", "0"))
		defer c.Stop()

		invalid := spanWithParent(3, 1, 2*time.Millisecond)
		invalid.SpanId = invalid.SpanId[:7]
		res := postExport(t, c.Addr(), exportRequest(
			spanWithParent(1, 0, 0),
			invalid,
			spanWithParent(2, 1, time.Millisecond),
		))
		assert.Equal(t, int64(1), res.GetPartialSuccess().GetRejectedSpans())

		assert.Eventually(t, func() bool {
			traces := store.Traces()
			return len(traces) == 1 && len(traces[0].Spans) == 2
		}, 5*time.Second, 10*time.Millisecond)
		trace := store.Traces()[0]
		assert.Equal(t, "ab", trace.Id)
		assert.Equal(t, []string{"1", "2"}, []string{trace.Spans[0].SpanID, trace.Spans[1].SpanID})
	})

	t.Run("should merge later batches and lose descendants that arrived before their root", func(t *testing.T) {
		c, store := newTestCollector(t, Options{})
		require.Nil(t, c.Start("localhost", "0"))
		defer c.Stop()

		postExport(t, c.Addr(), exportRequest(spanWithParent(2, 1, time.Millisecond)))
		postExport(t, c.Addr(), exportRequest(spanWithParent(1, 0, 0)))
		postExport(t, c.Addr(), exportRequest(spanWithParent(3, 1, 2*time.Millisecond)))

		assert.Eventually(t, func() bool {
			traces := store.Traces()
			return len(traces) == 1 && len(traces[0].Spans) == 2
		}, 5*time.Second, 10*time.Millisecond)
		trace := store.Traces()[0]
		assert.Equal(t, []string{"1", "3"}, []string{trace.Spans[0].SpanID, trace.Spans[1].SpanID})
	})

	t.Run("should accept exports over gRPC when a gRPC port is configured", func(t *testing.T) {
		c, store := newTestCollector(t, Options{GRPCPort: "0"})
		require.Nil(t, c.Start("localhost", "0"))
		defer c.Stop()
		require.NotNil(t, c.GRPCAddr())

		conn, err := grpc.NewClient(c.GRPCAddr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
		require.Nil(t, err)
		defer conn.Close()
		res, err := protoTrace.NewTraceServiceClient(conn).Export(
			context.Background(),
			exportRequest(spanWithParent(1, 0, 0), spanWithParent(2, 1, time.Millisecond)),
		)
		require.Nil(t, err)
		assert.Equal(t, int64(0), res.GetPartialSuccess().GetRejectedSpans())

		assert.Eventually(t, func() bool {
			traces := store.Traces()
			return len(traces) == 1 && len(traces[0].Spans) == 2
		}, 5*time.Second, 10*time.Millisecond)
	})
}

func TestLoadFile(t *testing.T) {
	root := `{"Name":"root","SpanContext":{"TraceID":"abc","SpanID":"1"},"Parent":{"TraceID":"00000000000000000000000000000000","SpanID":"0000000000000000"},"StartTime":"2024-03-01T12:00:00Z","EndTime":"2024-03-01T12:00:01Z","Status":{"Code":"Ok","Description":""},"Resource":[],"InstrumentationLibrary":{"Name":"lib","Version":"","SchemaURL":""}}`
	child := `{"Name":"child","SpanContext":{"TraceID":"abc","SpanID":"2"},"Parent":{"TraceID":"abc","SpanID":"1"},"StartTime":"2024-03-01T12:00:00.5Z","EndTime":"2024-03-01T12:00:01Z","Status":{"Code":"Ok","Description":""},"Resource":[],"InstrumentationLibrary":{"Name":"lib","Version":"","SchemaURL":""}}`

	t.Run("should append the traces of a file to the store", func(t *testing.T) {
		c, store := newTestCollector(t, Options{})
		path := filepath.Join(t.TempDir(), "spans.jsonl")
		require.Nil(t, os.WriteFile(path, []byte(root+"\n"+child+"\n"), 0o600))

		require.Nil(t, c.LoadFile(path))
		traces := store.Traces()
		require.Equal(t, 1, len(traces))
		assert.Equal(t, "abc", traces[0].Id)
		assert.Equal(t, int64(500000), traces[0].Spans[1].OffsetMicros)
	})

	t.Run("should leave the store untouched when a line is malformed", func(t *testing.T) {
		c, store := newTestCollector(t, Options{})
		path := filepath.Join(t.TempDir(), "spans.jsonl")
		require.Nil(t, os.WriteFile(path, []byte(root+"\n{\n"+child+"\n"), 0o600))

		err := c.LoadFile(path)
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "unable to parse line 2")
		assert.Empty(t, store.Traces())
	})
}
