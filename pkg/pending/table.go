// Package pending keeps track of the queries that have been forwarded upstream and
// are waiting for a reply.
package pending

import (
	"context"
	"io"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dtime"
)

const (
	DefaultCapacity = 1024
	DefaultTimeout  = 10 * time.Second
)

// Key identifies the upstream socket that a query was sent on.
type Key int

// Query is a forwarded query. Packet is the original IPv4 packet read from the
// tunnel, and Conn is the upstream socket that the reply will arrive on.
type Query struct {
	ID      uint64
	Key     Key
	Packet  []byte
	Created time.Time
	Conn    io.Closer
}

// Table is an insertion ordered arena of pending queries. Slots are identified by a
// monotonically increasing id and looked up by Key.
//
// A Table is not safe for concurrent use.
type Table struct {
	capacity int
	timeout  time.Duration

	slots map[uint64]*Query
	byKey map[Key]uint64

	// head is the lowest id that may still be live, next is the id of the next insert.
	head uint64
	next uint64
}

// NewTable returns a Table that holds at most capacity queries and evicts queries
// older than timeout. Zero or negative values select the defaults.
func NewTable(capacity int, timeout time.Duration) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Table{
		capacity: capacity,
		timeout:  timeout,
		slots:    make(map[uint64]*Query),
		byKey:    make(map[Key]uint64),
	}
}

// Insert adds a query and then checks the oldest live query once. That query is
// evicted, and its Conn closed, when it has expired or when the table holds more
// than its capacity. At most one query is evicted per call.
func (t *Table) Insert(ctx context.Context, key Key, conn io.Closer, packet []byte) *Query {
	if id, ok := t.byKey[key]; ok {
		// The socket that the old slot referred to must have been closed for the
		// descriptor to be reused, so the slot is dropped without a close.
		dlog.Debugf(ctx, "pending query %d replaced by a new query on socket %d", id, key)
		t.remove(id)
	}
	q := &Query{
		ID:      t.next,
		Key:     key,
		Packet:  packet,
		Created: dtime.Now(),
		Conn:    conn,
	}
	t.next++
	t.slots[q.ID] = q
	t.byKey[key] = q.ID
	t.evictOldest(ctx)
	return q
}

func (t *Table) evictOldest(ctx context.Context) {
	oldest := t.oldest()
	if oldest == nil {
		return
	}
	var reason string
	switch {
	case dtime.Now().Sub(oldest.Created) > t.timeout:
		reason = "timed out"
	case len(t.slots) > t.capacity:
		reason = "table full"
	default:
		return
	}
	dlog.Debugf(ctx, "evicting pending query %d on socket %d: %s", oldest.ID, oldest.Key, reason)
	t.remove(oldest.ID)
	if oldest.Conn != nil {
		_ = oldest.Conn.Close()
	}
}

func (t *Table) oldest() *Query {
	for ; t.head < t.next; t.head++ {
		if q, ok := t.slots[t.head]; ok {
			return q
		}
	}
	return nil
}

func (t *Table) remove(id uint64) {
	if q, ok := t.slots[id]; ok {
		delete(t.byKey, q.Key)
		delete(t.slots, id)
	}
}

// Take removes and returns the query that waits on the given key.
func (t *Table) Take(key Key) (*Query, bool) {
	id, ok := t.byKey[key]
	if !ok {
		return nil, false
	}
	q := t.slots[id]
	t.remove(id)
	return q, true
}

// Keys returns the keys of all live queries in insertion order.
func (t *Table) Keys() []Key {
	keys := make([]Key, 0, len(t.slots))
	for id := t.head; id < t.next; id++ {
		if q, ok := t.slots[id]; ok {
			keys = append(keys, q.Key)
		}
	}
	return keys
}

func (t *Table) Len() int {
	return len(t.slots)
}

// CloseAll closes the Conn of every query and empties the table.
func (t *Table) CloseAll() {
	for id := t.head; id < t.next; id++ {
		if q, ok := t.slots[id]; ok && q.Conn != nil {
			_ = q.Conn.Close()
		}
	}
	t.slots = make(map[uint64]*Query)
	t.byKey = make(map[Key]uint64)
	t.head = t.next
}
