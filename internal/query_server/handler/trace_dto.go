package handler

import "time"

// TraceSummaryDTO is one entry of the trace listing
// @swagger:model TraceSummaryDTO
type TraceSummaryDTO struct {
	// The trace id, equal to the trace id of the root span
	Id string `json:"id"`
	// The name of the root span
	RootName string `json:"root_name"`
	// The start time of the root span
	Start time.Time `json:"start"`
	// The duration of the root span in microseconds
	DurationMicros int64 `json:"duration_micros"`
	// The number of spans in the trace
	SpanCount int `json:"span_count"`
}

// TraceListResponseDTO represents the response to a trace listing request
// @swagger:model TraceListResponseDTO
type TraceListResponseDTO struct {
	Traces []TraceSummaryDTO `json:"traces"`
}

// SpanDTO represents a span positioned within its trace
// @swagger:model SpanDTO
type SpanDTO struct {
	SpanId string `json:"span_id"`
	// Empty for the root span
	ParentSpanId   string    `json:"parent_span_id,omitempty"`
	Name           string    `json:"name"`
	Start          time.Time `json:"start"`
	DurationMicros int64     `json:"duration_micros"`
	// Offset from the start of the root span in microseconds
	OffsetMicros int64 `json:"offset_micros"`
	// Depth within the trace, 0 for the root
	Level      int               `json:"level"`
	Attributes map[string]string `json:"attributes"`
	Metadata   map[string]string `json:"metadata"`
}

// TraceResponseDTO represents a full trace with its spans in pre-order
// @swagger:model TraceResponseDTO
type TraceResponseDTO struct {
	Id    string    `json:"id"`
	Spans []SpanDTO `json:"spans"`
}
