package handler

import (
	"errors"
	"net/http"

	"github.com/Avi18971911/TraceView/internal/db/trace_store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TraceListHandler creates a handler listing the traces currently held by the store.
// @Summary List assembled traces.
// @Tags traces
// @Produce json
// @Success 200 {object} TraceListResponseDTO "Summaries of every trace, in store order"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /traces [get]
func TraceListHandler(
	store trace_store.TraceStore,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug(
			"Received Trace List Handler",
			zap.String("URL Path", r.URL.Path),
			zap.String("Method", r.Method),
		)
		resDTO := mapTracesToListDTO(store.Traces())
		writeJSON(w, resDTO, logger)
	}
}

// TraceHandler creates a handler returning one trace with its spans in pre-order.
// @Summary Get a trace by id.
// @Tags traces
// @Produce json
// @Param id path string true "The trace id"
// @Success 200 {object} TraceResponseDTO "The trace"
// @Failure 404 {object} ErrorMessage "Trace not found"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /traces/{id} [get]
func TraceHandler(
	store trace_store.TraceStore,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		logger.Debug(
			"Received Trace Handler",
			zap.String("URL Path", r.URL.Path),
			zap.String("Trace Id", id),
		)
		trace, err := store.Trace(id)
		if err != nil {
			if errors.Is(err, trace_store.ErrTraceNotFound) {
				HttpError(w, "Trace not found", http.StatusNotFound, logger)
				return
			}
			logger.Error("Error encountered when getting trace", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		writeJSON(w, mapTraceToDTO(trace), logger)
	}
}

func writeJSON(w http.ResponseWriter, body interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		logger.Error("Error encountered when encoding response", zap.Error(err))
		HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
	}
}
