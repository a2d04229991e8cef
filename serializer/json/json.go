// Package json implements the JSON serializer.
package json

import (
	"encoding/json"

	"github.com/smartmessage/sm/serializer"
)

// Serializer encodes/decodes the wire envelope as JSON.
type Serializer struct{}

// New returns a JSON serializer.
func New() *Serializer { return &Serializer{} }

// Name identifies this serializer on the wire.
func (s *Serializer) Name() string { return "JSON" }

// Encode marshals fields (including the reserved header key) to JSON.
func (s *Serializer) Encode(fields map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, &serializer.SerializationError{Err: err}
	}
	return data, nil
}

// Decode unmarshals JSON bytes back into a flat field map.
func (s *Serializer) Decode(data []byte) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &serializer.DeserializationError{Err: err}
	}
	return fields, nil
}
