package model

import "github.com/google/uuid"

// SpanBatch is the unit handed from the ingestion endpoint to the store consumer.
type SpanBatch struct {
	Id    string
	Spans []Span
}

func NewSpanBatch(spans []Span) SpanBatch {
	return SpanBatch{
		Id:    uuid.NewString(),
		Spans: spans,
	}
}
