package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/Avi18971911/TraceView/internal/db/trace_store"
	"github.com/Avi18971911/TraceView/internal/metrics"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/file_loader"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/server"
	"github.com/Avi18971911/TraceView/internal/pipeline/tree/service"
	"github.com/gorilla/mux"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

const DefaultMaxRequestBytes = 16 << 20

var (
	ErrCollectorActive   = errors.New("collector already active")
	ErrNoActiveCollector = errors.New("no active collector")
)

type Options struct {
	// GRPCPort enables OTLP/gRPC on the collector host when set.
	GRPCPort        string
	MaxRequestBytes int64
}

// Collector owns the ingestion endpoints and the consumer that folds delivered batches
// into the trace store. At most one endpoint set is active at a time.
type Collector struct {
	mu              sync.Mutex
	active          *activeCollector
	store           trace_store.TraceStore
	treeConstructor service.TreeConstructor
	fileLoader      *file_loader.FileLoader
	metrics         *metrics.Metrics
	options         Options
	logger          *zap.Logger
}

type activeCollector struct {
	httpServer *http.Server
	grpcServer *grpc.Server
	httpAddr   net.Addr
	grpcAddr   net.Addr
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewCollector(
	store trace_store.TraceStore,
	treeConstructor service.TreeConstructor,
	metrics *metrics.Metrics,
	options Options,
	logger *zap.Logger,
) *Collector {
	if options.MaxRequestBytes <= 0 {
		options.MaxRequestBytes = DefaultMaxRequestBytes
	}
	return &Collector{
		store:           store,
		treeConstructor: treeConstructor,
		fileLoader:      file_loader.NewFileLoader(logger),
		metrics:         metrics,
		options:         options,
		logger:          logger,
	}
}

// Start binds the OTLP/HTTP endpoint on host:port, and the OTLP/gRPC endpoint when a gRPC
// port is configured, then starts the store consumer. Bind errors are returned to the
// caller and leave the collector inactive.
func (c *Collector) Start(host string, port string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return ErrCollectorActive
	}

	ip, err := ParseHost(host)
	if err != nil {
		return err
	}
	httpPort, err := ParsePort(port)
	if err != nil {
		return err
	}
	httpListener, err := net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(int(httpPort))))
	if err != nil {
		return fmt.Errorf("failed to listen for OTLP/HTTP: %w", err)
	}
	var grpcListener net.Listener
	if c.options.GRPCPort != "" {
		grpcPort, err := ParsePort(c.options.GRPCPort)
		if err != nil {
			_ = httpListener.Close()
			return err
		}
		grpcListener, err = net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(int(grpcPort))))
		if err != nil {
			_ = httpListener.Close()
			return fmt.Errorf("failed to listen for OTLP/gRPC: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	queue := newBatchQueue(ctx)
	exporter := server.NewTraceExporter(queue, c.metrics, c.logger)

	active := &activeCollector{
		httpServer: &http.Server{Handler: c.createRouter(exporter)},
		httpAddr:   httpListener.Addr(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go c.serveHTTP(active.httpServer, httpListener)

	if grpcListener != nil {
		active.grpcServer = grpc.NewServer()
		protoTrace.RegisterTraceServiceServer(active.grpcServer, server.NewTraceServiceServerImpl(exporter, c.logger))
		active.grpcAddr = grpcListener.Addr()
		go c.serveGRPC(active.grpcServer, grpcListener)
	}

	go func() {
		defer close(active.done)
		queue.consume(c.store, c.logger)
	}()

	c.active = active
	c.logger.Info(
		"Collector started",
		zap.String("http_addr", active.httpAddr.String()),
		zap.Bool("grpc_enabled", active.grpcServer != nil),
	)
	return nil
}

// Stop closes the endpoints without draining in-flight requests and waits for the consumer
// to exit.
func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ErrNoActiveCollector
	}
	active := c.active
	c.active = nil

	active.cancel()
	if err := active.httpServer.Close(); err != nil {
		c.logger.Warn("Error encountered when closing OTLP/HTTP server", zap.Error(err))
	}
	if active.grpcServer != nil {
		active.grpcServer.Stop()
	}
	<-active.done
	c.logger.Info("Collector stopped", zap.String("http_addr", active.httpAddr.String()))
	return nil
}

// Addr returns the bound OTLP/HTTP address, or nil when the collector is inactive.
func (c *Collector) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return c.active.httpAddr
}

// GRPCAddr returns the bound OTLP/gRPC address, or nil when gRPC is not running.
func (c *Collector) GRPCAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return c.active.grpcAddr
}

// LoadFile assembles the spans of a JSON-lines file on their own and appends the
// resulting traces to the store. Nothing is appended if any line fails to parse.
func (c *Collector) LoadFile(path string) error {
	spans, err := c.fileLoader.LoadFile(path)
	if err != nil {
		return err
	}
	c.store.Append(c.treeConstructor.BuildTraces(spans))
	return nil
}

func (c *Collector) createRouter(exporter *server.TraceExporter) http.Handler {
	r := mux.NewRouter()
	r.Handle(
		server.TracesPath, server.TraceExportHandler(
			exporter,
			c.options.MaxRequestBytes,
			c.logger,
		),
	).Methods("POST")
	return r
}

func (c *Collector) serveHTTP(httpServer *http.Server, listener net.Listener) {
	err := httpServer.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		c.logger.Error("OTLP/HTTP server exited", zap.Error(err))
	}
}

func (c *Collector) serveGRPC(grpcServer *grpc.Server, listener net.Listener) {
	if err := grpcServer.Serve(listener); err != nil {
		c.logger.Error("OTLP/gRPC server exited", zap.Error(err))
	}
}
