package event_bus

const TracesRebuiltTopic = "traces_rebuilt"

// TracesRebuilt is published every time the trace store replaces or extends its contents.
type TracesRebuilt struct {
	BatchId      string `json:"batch_id,omitempty"`
	TraceCount   int    `json:"trace_count"`
	SpanCount    int    `json:"span_count"`
	DroppedSpans int    `json:"dropped_spans"`
}
