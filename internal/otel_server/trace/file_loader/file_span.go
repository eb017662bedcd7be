package file_loader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	jsoniter "github.com/json-iterator/go"
)

const (
	int64AttributeType = "INT64"
	stringResourceType = "STRING"
	unsetStatusCode    = "Unset"
)

// Metadata keys populated from the status and instrumentation library of a file span.
const (
	StatusCodeKey        = "status.code"
	StatusDescriptionKey = "status.description"
	LibraryNameKey       = "library.name"
	LibraryVersionKey    = "library.version"
	LibrarySchemaURLKey  = "library.schema_url"
)

var (
	ErrMissingField    = errors.New("missing required field")
	ErrUnsupportedType = errors.New("unsupported value type")
)

// fileSpan mirrors the span records written by the OpenTelemetry stdout exporter. Pointer
// fields are required; a nil pointer after decoding means the field was absent.
type fileSpan struct {
	Name                   *string          `json:"Name"`
	SpanContext            *spanContext     `json:"SpanContext"`
	Parent                 *spanContext     `json:"Parent"`
	StartTime              *time.Time       `json:"StartTime"`
	EndTime                *time.Time       `json:"EndTime"`
	Attributes             []keyValue       `json:"Attributes"`
	Status                 *status          `json:"Status"`
	Resource               *[]keyValue      `json:"Resource"`
	InstrumentationLibrary *instrumentation `json:"InstrumentationLibrary"`
}

type spanContext struct {
	TraceID *string `json:"TraceID"`
	SpanID  *string `json:"SpanID"`
}

type status struct {
	Code        *string `json:"Code"`
	Description *string `json:"Description"`
}

type instrumentation struct {
	Name      *string `json:"Name"`
	Version   *string `json:"Version"`
	SchemaURL *string `json:"SchemaURL"`
}

type keyValue struct {
	Key   *string     `json:"Key"`
	Value *typedValue `json:"Value"`
}

type typedValue struct {
	Type  *string             `json:"Type"`
	Value jsoniter.RawMessage `json:"Value"`
}

func (s fileSpan) validate() error {
	var missing []string
	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	check("Name", s.Name != nil)
	check("SpanContext", s.SpanContext != nil)
	if s.SpanContext != nil {
		check("SpanContext.TraceID", s.SpanContext.TraceID != nil)
		check("SpanContext.SpanID", s.SpanContext.SpanID != nil)
	}
	check("Parent", s.Parent != nil)
	if s.Parent != nil {
		check("Parent.TraceID", s.Parent.TraceID != nil)
		check("Parent.SpanID", s.Parent.SpanID != nil)
	}
	check("StartTime", s.StartTime != nil)
	check("EndTime", s.EndTime != nil)
	check("Status", s.Status != nil)
	if s.Status != nil {
		check("Status.Code", s.Status.Code != nil)
		check("Status.Description", s.Status.Description != nil)
	}
	check("Resource", s.Resource != nil)
	check("InstrumentationLibrary", s.InstrumentationLibrary != nil)
	if s.InstrumentationLibrary != nil {
		check("InstrumentationLibrary.Name", s.InstrumentationLibrary.Name != nil)
		check("InstrumentationLibrary.Version", s.InstrumentationLibrary.Version != nil)
		check("InstrumentationLibrary.SchemaURL", s.InstrumentationLibrary.SchemaURL != nil)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// isRoot reports whether the parent context is the zero context the exporter writes for
// spans without a parent.
func (s fileSpan) isRoot() bool {
	return strings.Trim(*s.Parent.TraceID, "0") == ""
}

func (s fileSpan) toSpan() (model.Span, error) {
	if err := s.validate(); err != nil {
		return model.Span{}, err
	}
	attributes, err := s.attributes()
	if err != nil {
		return model.Span{}, err
	}
	metadata, err := s.metadata()
	if err != nil {
		return model.Span{}, err
	}

	var parentSpanId string
	if !s.isRoot() {
		parentSpanId = *s.Parent.SpanID
	}
	return model.Span{
		SpanID:         *s.SpanContext.SpanID,
		Name:           *s.Name,
		StartTime:      s.StartTime.UTC(),
		DurationMicros: s.EndTime.Sub(*s.StartTime).Microseconds(),
		TraceID:        *s.SpanContext.TraceID,
		ParentSpanID:   parentSpanId,
		Attributes:     attributes,
		Metadata:       metadata,
	}, nil
}

func (s fileSpan) attributes() (map[string]string, error) {
	attributes := make(map[string]string, len(s.Attributes))
	for _, attribute := range s.Attributes {
		key, valueType, err := attribute.typed("Attributes")
		if err != nil {
			return nil, err
		}
		if valueType != int64AttributeType {
			return nil, fmt.Errorf("%w: attribute %q has type %q", ErrUnsupportedType, key, valueType)
		}
		var value int64
		if err := json.Unmarshal(attribute.Value.Value, &value); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", key, err)
		}
		attributes[key] = strconv.FormatInt(value, 10)
	}
	return attributes, nil
}

func (s fileSpan) metadata() (map[string]string, error) {
	metadata := make(map[string]string, len(*s.Resource)+5)
	for _, resource := range *s.Resource {
		key, valueType, err := resource.typed("Resource")
		if err != nil {
			return nil, err
		}
		if valueType != stringResourceType {
			return nil, fmt.Errorf("%w: resource %q has type %q", ErrUnsupportedType, key, valueType)
		}
		var value string
		if err := json.Unmarshal(resource.Value.Value, &value); err != nil {
			return nil, fmt.Errorf("resource %q: %w", key, err)
		}
		metadata[key] = value
	}

	statusCode := *s.Status.Code
	if statusCode == unsetStatusCode {
		statusCode = "-"
	}
	metadata[StatusCodeKey] = statusCode
	metadata[StatusDescriptionKey] = *s.Status.Description
	metadata[LibraryNameKey] = *s.InstrumentationLibrary.Name
	metadata[LibraryVersionKey] = *s.InstrumentationLibrary.Version
	metadata[LibrarySchemaURLKey] = *s.InstrumentationLibrary.SchemaURL
	return metadata, nil
}

func (kv keyValue) typed(field string) (string, string, error) {
	if kv.Key == nil {
		return "", "", fmt.Errorf("%w: %s.Key", ErrMissingField, field)
	}
	if kv.Value == nil || kv.Value.Type == nil || kv.Value.Value == nil {
		return "", "", fmt.Errorf("%w: %s[%q].Value", ErrMissingField, field, *kv.Key)
	}
	return *kv.Key, *kv.Value.Type, nil
}
