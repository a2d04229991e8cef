// Package serializer defines the wire-encoding contract. The core never
// chooses a serializer itself; a transport declares the one it uses, and
// the dispatcher's wire envelope (the reserved "_sm_header" key) is
// encoded/decoded through it.
package serializer

// Serializer is the total, deterministic encode/decode contract. Concrete
// implementations live in sibling packages (json, msgpack).
type Serializer interface {
	// Name identifies this serializer on the wire (stamped into
	// header.Header.Serializer at publish time).
	Name() string
	// Encode serializes a flat property map (including the reserved
	// header key) to bytes.
	Encode(fields map[string]interface{}) ([]byte, error)
	// Decode is Encode's inverse.
	Decode(data []byte) (map[string]interface{}, error)
}

// HeaderKey is the reserved key under which the header is nested in the
// wire envelope. Property names beginning with the reserved prefix below
// are forbidden for user-declared properties.
const HeaderKey = "_sm_header"

// ReservedPrefix marks internal property names forbidden to user code.
const ReservedPrefix = "_sm_"

// SerializationError wraps an encode failure.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string { return "serializer: encode failed: " + e.Err.Error() }
func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError wraps a decode failure.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return "serializer: decode failed: " + e.Err.Error()
}
func (e *DeserializationError) Unwrap() error { return e.Err }
