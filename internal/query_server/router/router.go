package router

import (
	"net/http"

	"github.com/Avi18971911/TraceView/internal/db/trace_store"
	"github.com/Avi18971911/TraceView/internal/metrics"
	"github.com/Avi18971911/TraceView/internal/query_server/handler"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func CreateRouter(
	store trace_store.TraceStore,
	metrics *metrics.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle(
		"/traces", handler.TraceListHandler(
			store,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/traces/{id}", handler.TraceHandler(
			store,
			logger,
		),
	).Methods("GET")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	return r
}
