package helper

import (
	"sort"
	"strconv"
	"strings"

	commonV1 "go.opentelemetry.io/proto/otlp/common/v1"
)

const nullValue = "null"

// AnyValueToString renders an OTLP AnyValue in its flat string form. Arrays and byte
// sequences become "[a, b]", key/value lists become "{k: v}" and unset values the empty
// string.
func AnyValueToString(value *commonV1.AnyValue) string {
	if value == nil {
		return ""
	}
	switch v := value.Value.(type) {
	case *commonV1.AnyValue_StringValue:
		return v.StringValue
	case *commonV1.AnyValue_BoolValue:
		return strconv.FormatBool(v.BoolValue)
	case *commonV1.AnyValue_IntValue:
		return strconv.FormatInt(v.IntValue, 10)
	case *commonV1.AnyValue_DoubleValue:
		return strconv.FormatFloat(v.DoubleValue, 'f', -1, 64)
	case *commonV1.AnyValue_ArrayValue:
		if v.ArrayValue == nil {
			return "[]"
		}
		values := make([]string, len(v.ArrayValue.Values))
		for i, element := range v.ArrayValue.Values {
			values[i] = AnyValueToString(element)
		}
		return "[" + strings.Join(values, ", ") + "]"
	case *commonV1.AnyValue_KvlistValue:
		if v.KvlistValue == nil {
			return "{}"
		}
		pairs := make([]string, len(v.KvlistValue.Values))
		for i, kv := range v.KvlistValue.Values {
			pairs[i] = kv.GetKey() + ": " + keyValueToString(kv.GetValue())
		}
		return "{" + strings.Join(pairs, ", ") + "}"
	case *commonV1.AnyValue_BytesValue:
		values := make([]string, len(v.BytesValue))
		for i, b := range v.BytesValue {
			values[i] = strconv.Itoa(int(b))
		}
		return "[" + strings.Join(values, ", ") + "]"
	default:
		return ""
	}
}

func keyValueToString(value *commonV1.AnyValue) string {
	if value == nil {
		return nullValue
	}
	return AnyValueToString(value)
}

// MapAttributes folds OTLP key/value pairs into a flat map. A repeated key keeps the last
// value seen.
func MapAttributes(attributes []*commonV1.KeyValue) map[string]string {
	mapped := make(map[string]string, len(attributes))
	for _, attribute := range attributes {
		if attribute == nil {
			continue
		}
		mapped[attribute.Key] = AnyValueToString(attribute.Value)
	}
	return mapped
}

// MergeAttributes returns a new map holding base overlaid by override; keys present in
// both take the value from override.
func MergeAttributes(base map[string]string, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range override {
		merged[key] = value
	}
	return merged
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
