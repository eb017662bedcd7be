package server

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	TracesPath = "/v1/traces"

	contentTypeProtobuf = "application/x-protobuf"
	contentTypeJSON     = "application/json"
)

var errBodyTooLarge = errors.New("request body too large")

// TraceExportHandler serves OTLP/HTTP trace exports. The acknowledgment is written in the
// encoding of the request.
func TraceExportHandler(
	exporter *TraceExporter,
	maxRequestBytes int64,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func(Body io.ReadCloser) {
			err := Body.Close()
			if err != nil {
				logger.Error("Error encountered when closing request body", zap.Error(err))
			}
		}(r.Body)

		contentType := requestContentType(r)
		body, err := readBody(w, r, maxRequestBytes)
		if err != nil {
			logger.Warn("Error encountered when reading export request body", zap.Error(err))
			code := http.StatusBadRequest
			if errors.Is(err, errBodyTooLarge) {
				code = http.StatusRequestEntityTooLarge
			}
			writeStatus(w, contentType, code, err.Error(), logger)
			return
		}

		req := &protoTrace.ExportTraceServiceRequest{}
		if contentType == contentTypeJSON {
			err = protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(body, req)
		} else {
			err = proto.Unmarshal(body, req)
		}
		if err != nil {
			logger.Warn("Error encountered when decoding export request", zap.Error(err))
			writeStatus(w, contentType, http.StatusBadRequest, "invalid export request payload", logger)
			return
		}

		res, err := exporter.Export(r.Context(), req, ProtocolHTTP)
		if err != nil {
			logger.Error("Error encountered when exporting spans", zap.Error(err))
			writeStatus(w, contentType, http.StatusServiceUnavailable, "collector unavailable", logger)
			return
		}
		writeMessage(w, contentType, http.StatusOK, res, logger)
	}
}

func requestContentType(r *http.Request) string {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mediaType == contentTypeJSON {
		return contentTypeJSON
	}
	return contentTypeProtobuf
}

func readBody(w http.ResponseWriter, r *http.Request, maxRequestBytes int64) ([]byte, error) {
	var reader io.Reader = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	switch r.Header.Get("Content-Encoding") {
	case "", "identity":
	case "gzip":
		gzipReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, wrapReadError(err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", r.Header.Get("Content-Encoding"))
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxRequestBytes+1))
	if err != nil {
		return nil, wrapReadError(err)
	}
	if int64(len(body)) > maxRequestBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, maxRequestBytes)
	}
	return body, nil
}

func wrapReadError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, maxBytesErr.Limit)
	}
	return fmt.Errorf("failed to read request body: %w", err)
}

func writeStatus(w http.ResponseWriter, contentType string, code int, message string, logger *zap.Logger) {
	grpcCode := codes.InvalidArgument
	if code == http.StatusServiceUnavailable {
		grpcCode = codes.Unavailable
	}
	writeMessage(w, contentType, code, status.New(grpcCode, message).Proto(), logger)
}

func writeMessage(w http.ResponseWriter, contentType string, code int, message proto.Message, logger *zap.Logger) {
	var body []byte
	var err error
	if contentType == contentTypeJSON {
		body, err = protojson.Marshal(message)
	} else {
		body, err = proto.Marshal(message)
	}
	if err != nil {
		logger.Error("Error encountered when encoding response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		logger.Error("Error encountered when writing response", zap.Error(err))
	}
}
