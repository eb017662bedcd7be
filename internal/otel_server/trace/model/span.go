package model

import "time"

// Span is a single observed operation, decoded from either the OTLP wire format or a
// JSON-lines export file.
type Span struct {
	SpanID    string    `json:"span_id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	// DurationMicros is end - start and may be negative for clock-skewed producers.
	DurationMicros int64 `json:"duration_micros"`
	// OffsetMicros is the offset from the start of the owning trace's root span.
	OffsetMicros int64 `json:"offset_micros"`
	// Level is the depth within the owning Trace, 0 for the root.
	Level        int               `json:"level"`
	TraceID      string            `json:"trace_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"` // empty for a root span
	Attributes   map[string]string `json:"attributes"`
	Metadata     map[string]string `json:"metadata"`
}

func (s Span) IsRoot() bool {
	return s.ParentSpanID == ""
}

// Trace is the reconstructed tree for a single trace id. Spans are stored in pre-order,
// Spans[0] being the root.
type Trace struct {
	Id    string `json:"id"`
	Spans []Span `json:"spans"`
	// Connections maps a span id to its positions within Spans.
	Connections map[string][]int `json:"-"`
}

func (t Trace) Root() Span {
	return t.Spans[0]
}
