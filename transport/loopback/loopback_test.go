package loopback

import (
	"testing"
	"time"

	"github.com/smartmessage/sm/dispatch"
	"github.com/smartmessage/sm/filter"
	"github.com/smartmessage/sm/header"
	jsonserializer "github.com/smartmessage/sm/serializer/json"
	"github.com/smartmessage/sm/workerpool"
)

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func noCriteria(t *testing.T) filter.Filter {
	t.Helper()
	f, err := filter.Normalize(filter.Criteria{})
	if err != nil {
		t.Fatalf("unexpected normalize error: %v", err)
	}
	return f
}

func TestPublishLoopsBackToMatchingHandler(t *testing.T) {
	d := dispatch.New(dispatch.Config{WorkerPool: workerpool.Config{MaxWorkers: 4, QueueSize: 16}}, nil)
	tr := New("loopback", jsonserializer.New(), d, nil)

	var received string
	done := make(chan struct{})
	d.SubscribeSplit("OrderMessage", noCriteria(t), func(h *header.Header, payload []byte) error {
		received = h.MessageClass
		close(done)
		return nil
	})

	h := header.New("OrderMessage", 1, "order-svc", "", "")
	if err := tr.Publish(h, map[string]interface{}{"order_id": "ORD-1"}); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	waitUntil(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})

	if received != "OrderMessage" {
		t.Fatalf("expected handler to see class OrderMessage, got %q", received)
	}
}

func TestPublishStampsHeaderBeforeEncoding(t *testing.T) {
	d := dispatch.New(dispatch.Config{WorkerPool: workerpool.Config{MaxWorkers: 4, QueueSize: 16}}, nil)
	tr := New("loopback", jsonserializer.New(), d, nil)

	var gotSerializer string
	done := make(chan struct{})
	d.SubscribeSplit("Ping", noCriteria(t), func(h *header.Header, payload []byte) error {
		gotSerializer = h.Serializer
		close(done)
		return nil
	})

	h := header.New("Ping", 1, "svc", "", "")
	if err := tr.Publish(h, nil); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	waitUntil(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})

	if gotSerializer != "JSON" {
		t.Fatalf("expected stamped serializer name JSON, got %q", gotSerializer)
	}
}

func TestPublishFailsWhenDisconnected(t *testing.T) {
	d := dispatch.New(dispatch.Config{}, nil)
	tr := New("loopback", jsonserializer.New(), d, nil)
	tr.Disconnect()

	h := header.New("Ping", 1, "svc", "", "")
	err := tr.Publish(h, nil)
	if err == nil {
		t.Fatal("expected publish to fail while disconnected")
	}
}

func TestReceiveRejectsPayloadMissingHeader(t *testing.T) {
	d := dispatch.New(dispatch.Config{}, nil)
	tr := New("loopback", jsonserializer.New(), d, nil)

	payload, err := jsonserializer.New().Encode(map[string]interface{}{"order_id": "ORD-1"})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	if err := tr.Receive(payload); err == nil {
		t.Fatal("expected an error for a payload missing the reserved header key")
	}
}
