package memkv

import (
	"encoding/json"
	"fmt"
)

var (
	_ Serializer = (*JSONSerializer)(nil)
	_ Serializer = (*StringSerializer)(nil)
)

// Serializer converts values crossing the facade boundary to and from the
// raw bytes held by the underlying store.
type Serializer interface {
	// Serialize encodes a value into bytes for storage.
	Serialize(value any) ([]byte, error)

	// Deserialize decodes bytes read from storage back into a value.
	Deserialize(data []byte) (any, error)
}

// JSONSerializer encodes values with encoding/json. Any JSON-marshalable
// value is accepted; decoded numbers come back as float64 and composite
// values as map[string]any or []any, per encoding/json rules.
type JSONSerializer struct{}

// NewJSONSerializer returns a serializer backed by encoding/json.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize encodes the value as JSON.
func (s *JSONSerializer) Serialize(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, NewError(SerializationError, fmt.Sprintf("encode value as JSON: %v", err))
	}

	return data, nil
}

// Deserialize decodes JSON bytes back into a value.
func (s *JSONSerializer) Deserialize(data []byte) (any, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, NewError(SerializationError, fmt.Sprintf("decode stored JSON: %v", err))
	}

	return value, nil
}

// StringSerializer passes strings and byte slices through as raw bytes and
// rejects every other type. Stored values always come back as string.
type StringSerializer struct{}

// NewStringSerializer returns a serializer for plain string payloads.
func NewStringSerializer() *StringSerializer {
	return &StringSerializer{}
}

// Serialize accepts string and []byte values and returns their bytes.
func (s *StringSerializer) Serialize(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, NewError(UnsupportedValueTypeError,
			fmt.Sprintf("string serialization accepts string or []byte values, got %T", value))
	}
}

// Deserialize returns the stored bytes as a string.
func (s *StringSerializer) Deserialize(data []byte) (any, error) {
	return string(data), nil
}
