// Package msgpack implements a MessagePack serializer satisfying the
// package serializer encode/decode contract, for callers that want a
// compact binary envelope instead of JSON.
package msgpack

import (
	"github.com/smartmessage/sm/serializer"
	"github.com/vmihailenco/msgpack/v5"
)

// Serializer encodes/decodes the wire envelope as MessagePack.
type Serializer struct{}

// New returns a MessagePack serializer.
func New() *Serializer { return &Serializer{} }

// Name identifies this serializer on the wire.
func (s *Serializer) Name() string { return "MessagePack" }

// Encode marshals fields (including the reserved header key) to
// MessagePack bytes.
func (s *Serializer) Encode(fields map[string]interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(fields)
	if err != nil {
		return nil, &serializer.SerializationError{Err: err}
	}
	return data, nil
}

// Decode is Encode's inverse.
func (s *Serializer) Decode(data []byte) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := msgpack.Unmarshal(data, &fields); err != nil {
		return nil, &serializer.DeserializationError{Err: err}
	}
	return fields, nil
}
