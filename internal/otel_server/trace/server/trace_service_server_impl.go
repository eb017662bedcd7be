package server

import (
	"context"

	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	exporter *TraceExporter
	logger   *zap.Logger
}

func NewTraceServiceServerImpl(
	exporter *TraceExporter,
	logger *zap.Logger,
) TraceServiceServerImpl {
	logger.Info("Creating new TraceServiceServerImpl")
	return TraceServiceServerImpl{
		exporter: exporter,
		logger:   logger,
	}
}

func (tss TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	res, err := tss.exporter.Export(ctx, req, ProtocolGRPC)
	if err != nil {
		tss.logger.Error("Failed to export spans over gRPC", zap.Error(err))
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return res, nil
}
