// Package loopback provides an in-process reference Transport, exercising
// the transport contract without any real network: published bytes are
// handed straight back to Receive. The fan-out itself is the dispatcher's
// job, not the transport's.
package loopback

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/smartmessage/sm/dispatch"
	"github.com/smartmessage/sm/header"
	"github.com/smartmessage/sm/logging"
	"github.com/smartmessage/sm/serializer"
	"github.com/smartmessage/sm/transport"
)

// Transport delivers published messages to its own Receive synchronously,
// standing in for a real broker connection in tests and the demo program.
type Transport struct {
	name       string
	serializer serializer.Serializer
	dispatcher *dispatch.Dispatcher
	log        *logging.Logger

	mu        sync.Mutex
	connected bool
}

// New creates a loopback transport named name, encoding through s and
// routing decoded arrivals to d.
func New(name string, s serializer.Serializer, d *dispatch.Dispatcher, log *logging.Logger) *Transport {
	if log == nil {
		log = logging.Default()
	}
	return &Transport{name: name, serializer: s, dispatcher: d, log: log, connected: true}
}

// Serializer returns the bound serializer.
func (t *Transport) Serializer() serializer.Serializer { return t.serializer }

// Connected reports the transport's lifecycle state.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Connect marks the transport connected.
func (t *Transport) Connect() error {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Disconnect marks the transport disconnected; subsequent Publish calls
// fail until Connect is called again.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

// Publish stamps h, encodes h+fields under the reserved header key, and
// loops the bytes straight back into Receive.
func (t *Transport) Publish(h *header.Header, fields map[string]interface{}) error {
	if !t.Connected() {
		return &transport.TransportUnavailableError{Name: t.name}
	}

	h.StampForPublish(t.serializer.Name())

	headerMap, err := headerToMap(h)
	if err != nil {
		return err
	}

	wire := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		wire[k] = v
	}
	wire[serializer.HeaderKey] = headerMap

	payload, err := t.serializer.Encode(wire)
	if err != nil {
		return err
	}

	return t.Receive(payload)
}

// Receive decodes payload, splits out the reserved header key, and routes
// the result to the bound dispatcher.
func (t *Transport) Receive(payload []byte) error {
	fields, err := t.serializer.Decode(payload)
	if err != nil {
		t.log.Error("loopback: decode failed", "transport", t.name, "error", err)
		return err
	}

	rawHeader, ok := fields[serializer.HeaderKey]
	if !ok {
		err := errors.New("loopback: payload missing reserved header key")
		t.log.Error("loopback: malformed payload", "transport", t.name, "error", err)
		return err
	}
	delete(fields, serializer.HeaderKey)

	h, err := headerFromWire(rawHeader)
	if err != nil {
		t.log.Error("loopback: header decode failed", "transport", t.name, "error", err)
		return err
	}

	return t.dispatcher.Route(h, payload, fields)
}

// headerToMap and headerFromWire bridge header.Header to the
// serializer-agnostic map the wire envelope carries, via a JSON
// round-trip; every serializer's Decode already hands back
// map[string]interface{} for nested structures, so this keeps the
// conversion independent of which serializer is bound.
func headerToMap(h *header.Header) (map[string]interface{}, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, &serializer.SerializationError{Err: err}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &serializer.SerializationError{Err: err}
	}
	return m, nil
}

func headerFromWire(raw interface{}) (*header.Header, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.New("loopback: header key is not a mapping")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, &serializer.DeserializationError{Err: err}
	}
	var h header.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, &serializer.DeserializationError{Err: err}
	}
	return &h, nil
}
