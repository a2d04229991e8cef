// Package dedup implements the deduplication queue (DDQ): a bounded FIFO
// of recently seen message UUIDs per (message-class, handler-id) pair,
// with pluggable storage backends.
package dedup

// Queue is the storage-agnostic contract the dispatcher consults. Both the
// in-memory circular buffer (package memory) and the shared-store backend
// (package sharedstore) implement it.
type Queue interface {
	// Contains reports whether uuid has already been recorded. On a
	// transient storage error it must fail open (return false) rather
	// than suppress delivery.
	Contains(uuid string) bool
	// Add records uuid as seen, evicting the oldest entry if the queue is
	// at capacity. A non-nil error means the record may not have been
	// durably written (shared-store backends only); the caller should log
	// it and continue rather than treat it as fatal: the fail-open policy
	// accepts a possible duplicate delivery over a dropped message. The
	// in-memory backend never errors.
	Add(uuid string) error
	// Clear empties the queue.
	Clear()
	// Size returns the current number of recorded UUIDs.
	Size() int
	// Capacity returns the configured window length N.
	Capacity() int
	// Utilization returns Size/Capacity as a percentage (0-100).
	Utilization() float64
	// StorageKind names the backend ("memory", "badger", ...) for
	// introspection.
	StorageKind() string
}

// Key builds the canonical DDQ key "message_class:handler_id" used by both
// backends and by the dispatcher's ddq_stats introspection.
func Key(messageClass, handlerID string) string {
	return messageClass + ":" + handlerID
}

// Stats is a point-in-time snapshot of one DDQ instance, with the same
// fields as the per-key dispatch.DDQStat entries of Dispatcher.DDQStats.
type Stats struct {
	Size        int
	Capacity    int
	Utilization float64
	StorageKind string
}
