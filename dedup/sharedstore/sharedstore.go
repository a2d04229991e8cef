// Package sharedstore implements a shared/distributed DDQ backend on top
// of an embedded transactional KV engine (github.com/dgraph-io/badger/v4),
// for deployments where multiple dispatcher processes need to share one
// dedup window rather than each keeping its own in-memory copy.
//
// Each DDQ key (message_class:handler_id) owns:
//   - an order list: a JSON-encoded slice of UUIDs, oldest first, stored
//     under "<prefix><ddqKey>\x00order"
//   - membership keys: "<prefix><ddqKey>\x00member\x00<uuid>", whose mere
//     presence denotes membership
//
// Add is one badger transaction: append to the order list, write the
// membership key, and if the list now exceeds N, pop the oldest entries
// and delete their membership keys. TTL is refreshed on every write.
package sharedstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultSize mirrors the in-memory backend's default DDQ window length.
const DefaultSize = 100

// Config configures the shared DDQ store.
type Config struct {
	// Dir is the badger data directory backing this store.
	Dir string
	// Prefix namespaces all keys this store writes, so multiple DDQ
	// deployments (or other consumers) can share one badger instance.
	Prefix string
	// TTL is refreshed on every write to both the order-list and
	// membership keys; zero disables expiry.
	TTL time.Duration
}

// Store opens (or creates) the badger database backing one or more Queues.
// Callers share a single Store across every (message-class, handler-id)
// DDQ key via NewQueue, matching BadgerStore's one-database-many-keys
// design.
type Store struct {
	db *badger.DB
	mu sync.RWMutex
}

// Open creates the backing directory if needed and opens the database.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("sharedstore: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("sharedstore: failed to create directory: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("sharedstore: failed to open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Queue is one (message-class, handler-id) DDQ instance backed by Store.
// It satisfies dedup.Queue.
type Queue struct {
	store    *Store
	prefix   string
	ddqKey   string
	capacity int
	ttl      time.Duration
}

// NewQueue binds a DDQ key to the shared store with window length n.
func NewQueue(store *Store, cfg Config, ddqKey string, n int) *Queue {
	if n <= 0 {
		n = DefaultSize
	}
	return &Queue{store: store, prefix: cfg.Prefix, ddqKey: ddqKey, capacity: n, ttl: cfg.TTL}
}

func (q *Queue) orderKey() []byte {
	return []byte(q.prefix + q.ddqKey + "\x00order")
}

func (q *Queue) memberKey(uuid string) []byte {
	return []byte(q.prefix + q.ddqKey + "\x00member\x00" + uuid)
}

// Contains performs one membership lookup against the store. On a
// transient store error it fails open, preferring a possible re-delivery
// over a silently dropped message.
func (q *Queue) Contains(uuid string) bool {
	var found bool
	err := q.store.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(q.memberKey(uuid))
		if err == badger.ErrKeyNotFound {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false // fail-open
	}
	return found
}

// Add transactionally pushes uuid to the order list and membership set;
// if the list now exceeds capacity, it pops the oldest entries and
// removes their membership keys. Failure is logged by the caller (the
// dispatcher); the net effect of a failed Add is a possible duplicate
// delivery on retry, which is the documented fail-open policy.
func (q *Queue) Add(uuid string) error {
	return q.store.db.Update(func(txn *badger.Txn) error {
		order, err := q.readOrder(txn)
		if err != nil {
			return err
		}

		for _, existing := range order {
			if existing == uuid {
				return nil // already recorded; ring position unchanged
			}
		}

		order = append(order, uuid)

		var evicted []string
		for len(order) > q.capacity {
			evicted = append(evicted, order[0])
			order = order[1:]
		}

		if err := q.writeOrder(txn, order); err != nil {
			return err
		}

		memberEntry := badger.NewEntry(q.memberKey(uuid), []byte{1})
		if q.ttl > 0 {
			memberEntry = memberEntry.WithTTL(q.ttl)
		}
		if err := txn.SetEntry(memberEntry); err != nil {
			return err
		}

		for _, ev := range evicted {
			if err := txn.Delete(q.memberKey(ev)); err != nil {
				return err
			}
		}

		return nil
	})
}

func (q *Queue) readOrder(txn *badger.Txn) ([]string, error) {
	item, err := txn.Get(q.orderKey())
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var order []string
	err = item.Value(func(val []byte) error {
		if len(val) == 0 {
			return nil
		}
		return json.Unmarshal(val, &order)
	})
	return order, err
}

func (q *Queue) writeOrder(txn *badger.Txn, order []string) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	entry := badger.NewEntry(q.orderKey(), data)
	if q.ttl > 0 {
		entry = entry.WithTTL(q.ttl)
	}
	return txn.SetEntry(entry)
}

// Clear removes the order list and every membership key for this DDQ key.
func (q *Queue) Clear() {
	_ = q.store.db.Update(func(txn *badger.Txn) error {
		order, err := q.readOrder(txn)
		if err != nil {
			return err
		}
		for _, uuid := range order {
			if err := txn.Delete(q.memberKey(uuid)); err != nil {
				return err
			}
		}
		return txn.Delete(q.orderKey())
	})
}

// Size returns the current order-list length.
func (q *Queue) Size() int {
	var n int
	_ = q.store.db.View(func(txn *badger.Txn) error {
		order, err := q.readOrder(txn)
		if err != nil {
			return err
		}
		n = len(order)
		return nil
	})
	return n
}

// Capacity returns the configured window length N.
func (q *Queue) Capacity() int { return q.capacity }

// Utilization returns size/N as a percentage.
func (q *Queue) Utilization() float64 {
	if q.capacity == 0 {
		return 0
	}
	return float64(q.Size()) / float64(q.capacity) * 100
}

// StorageKind identifies this backend for introspection.
func (q *Queue) StorageKind() string { return "badger" }
