// Package transport defines the transport contract: the boundary between
// the dispatch core and whatever carries bytes between processes. The
// core never chooses a transport's wire format; the transport declares
// its serializer and the core encodes/decodes through it.
package transport

import (
	"fmt"

	"github.com/smartmessage/sm/header"
	"github.com/smartmessage/sm/serializer"
)

// Transport is any carrier of encoded message bytes. Publish must not
// block the caller beyond its own send semantics; Receive is the entry
// point a transport calls when bytes arrive from a peer and is expected
// to hand off to a dispatcher's Route.
type Transport interface {
	// Publish stamps h for publish, encodes h+fields through Serializer,
	// and hands the result to the carrier.
	Publish(h *header.Header, fields map[string]interface{}) error
	// Receive decodes payload and routes the resulting header+fields to
	// whatever dispatcher this transport was bound to at construction.
	Receive(payload []byte) error
	// Serializer is the encode/decode contract this transport declares;
	// callers never choose it independently.
	Serializer() serializer.Serializer
	// Connected reports the transport's lifecycle state. Default true for
	// transports with no real connection to establish.
	Connected() bool
	Connect() error
	Disconnect() error
}

// TransportUnavailableError is returned by Publish when the transport is
// not connected.
type TransportUnavailableError struct {
	Name string
}

func (e *TransportUnavailableError) Error() string {
	return fmt.Sprintf("transport %q is not connected", e.Name)
}
