package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rickgao/fixrouter/internal/connection"
)

// DefaultSeed is the value the identity counter starts above.
const DefaultSeed = 100000

// Errors
var (
	ErrIdentityInvalid = errors.New("identity must be positive")
	ErrUnknownRole     = errors.New("unknown role")
)

// Registry maps identities to live connections and holds undelivered messages.
type Registry struct {
	mu        sync.Mutex
	next      int
	brokers   map[int]*connection.Conn
	markets   map[int]*connection.Conn
	pending   map[int][]string
	replaying map[int]*replay
}

// New creates a Registry whose first generated identity is seed+1.
func New(seed int) *Registry {
	return &Registry{
		next:      seed,
		brokers:   make(map[int]*connection.Conn),
		markets:   make(map[int]*connection.Conn),
		pending:   make(map[int][]string),
		replaying: make(map[int]*replay),
	}
}

// NextID returns a fresh identity. The counter is shared by both roles and
// skips any value currently present in either table.
func (r *Registry) NextID() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		r.next++
		_, b := r.brokers[r.next]
		_, m := r.markets[r.next]
		if !b && !m {
			return r.next
		}
	}
}

func (r *Registry) table(role connection.Role) map[int]*connection.Conn {
	switch role {
	case connection.RoleBroker:
		return r.brokers
	case connection.RoleMarket:
		return r.markets
	}
	return nil
}

// Register installs conn as the live connection for id in role's table and
// returns the connection it replaced, if any. Notifying and closing the
// replaced connection is the caller's job.
func (r *Registry) Register(role connection.Role, id int, conn *connection.Conn) (*connection.Conn, error) {
	if id <= 0 {
		return nil, fmt.Errorf("register %d: %w", id, ErrIdentityInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.table(role)
	if t == nil {
		return nil, fmt.Errorf("register %q: %w", role, ErrUnknownRole)
	}
	prev := t[id]
	t[id] = conn
	return prev, nil
}

// Lookup returns the connection registered for id in role's table.
func (r *Registry) Lookup(role connection.Role, id int) (*connection.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.table(role)
	if t == nil {
		return nil, false
	}
	c, ok := t[id]
	return c, ok
}

// Resolve returns the connection for id, checking brokers then markets.
func (r *Registry) Resolve(id int) (*connection.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.brokers[id]; ok {
		return c, true
	}
	c, ok := r.markets[id]
	return c, ok
}

// RoleOfID reports which table id is registered in.
func (r *Registry) RoleOfID(id int) connection.Role {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.brokers[id]; ok {
		return connection.RoleBroker
	}
	if _, ok := r.markets[id]; ok {
		return connection.RoleMarket
	}
	return connection.RoleUnknown
}

// RoleOf finds conn in either table and returns its role and identity. A
// connection that has been superseded is no longer found.
func (r *Registry) RoleOf(conn *connection.Conn) (connection.Role, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.brokers {
		if c == conn {
			return connection.RoleBroker, id
		}
	}
	for id, c := range r.markets {
		if c == conn {
			return connection.RoleMarket, id
		}
	}
	return connection.RoleUnknown, 0
}

// EnqueuePending appends raw to id's pending queue.
func (r *Registry) EnqueuePending(id int, raw string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = append(r.pending[id], raw)
}

// DrainPending removes and returns id's pending queue in enqueue order.
func (r *Registry) DrainPending(id int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.pending[id]
	delete(r.pending, id)
	return msgs
}

// RequeueFront puts msgs back at the head of id's pending queue, ahead of
// anything enqueued since they were drained.
func (r *Registry) RequeueFront(id int, msgs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requeueFront(id, msgs)
}

func (r *Registry) requeueFront(id int, msgs []string) {
	if len(msgs) == 0 {
		return
	}
	q := make([]string, 0, len(msgs)+len(r.pending[id]))
	q = append(q, msgs...)
	q = append(q, r.pending[id]...)
	r.pending[id] = q
}

// PendingLen returns the length of id's pending queue.
func (r *Registry) PendingLen(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[id])
}

// PendingTotal returns the number of queued messages across all identities.
func (r *Registry) PendingTotal() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, q := range r.pending {
		n += len(q)
	}
	return n
}

// replay tracks the connection that owns id's backlog delivery and the
// connection, if any, currently holding a drained batch.
type replay struct {
	owner  *connection.Conn
	holder *connection.Conn
}

// BeginReplay marks id as replaying on behalf of owner, replacing any earlier
// owner. Until owner's replay ends, QueueIfReplaying diverts new messages for
// id into its pending queue so they are delivered after the backlog.
func (r *Registry) BeginReplay(id int, owner *connection.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.replaying[id]
	if !ok {
		st = &replay{}
		r.replaying[id] = st
	}
	st.owner = owner
}

// QueueIfReplaying appends raw to id's pending queue when id is replaying.
func (r *Registry) QueueIfReplaying(id int, raw string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.replaying[id]; !ok {
		return false
	}
	r.pending[id] = append(r.pending[id], raw)
	return true
}

// Replaying reports whether id is marked replaying.
func (r *Registry) Replaying(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.replaying[id]
	return ok
}

// NextReplayBatch drains id's pending queue for owner, which must hand the
// batch back with ReturnBatch once it has been written.
//
// more is false when owner should stop: either it no longer owns the replay,
// or the queue was empty, in which case the mark is cleared in the same
// critical section. While a superseded owner still holds a batch, NextReplayBatch
// returns (nil, true) and owner should retry.
func (r *Registry) NextReplayBatch(id int, owner *connection.Conn) (batch []string, more bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.replaying[id]
	if !ok || st.owner != owner {
		return nil, false
	}
	if st.holder != nil && st.holder != owner {
		return nil, true
	}

	msgs := r.pending[id]
	delete(r.pending, id)
	if len(msgs) == 0 {
		delete(r.replaying, id)
		return nil, false
	}
	st.holder = owner
	return msgs, true
}

// ReturnBatch releases the batch holder drained with NextReplayBatch. unsent
// goes back to the head of the queue.
func (r *Registry) ReturnBatch(id int, holder *connection.Conn, unsent []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requeueFront(id, unsent)
	if st, ok := r.replaying[id]; ok && st.holder == holder {
		st.holder = nil
	}
}

// EndReplay clears the replay mark if owner still owns it. A superseded
// owner leaves the mark to its successor.
func (r *Registry) EndReplay(id int, owner *connection.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.replaying[id]; ok && st.owner == owner {
		delete(r.replaying, id)
	}
}

// Count returns the number of identities registered for role.
func (r *Registry) Count(role connection.Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table(role))
}

// Route describes one routing-table entry.
type Route struct {
	ID         int             `json:"id"`
	Role       connection.Role `json:"role"`
	Session    string          `json:"session"`
	RemoteAddr string          `json:"remote_addr"`
	Closed     bool            `json:"closed"`
	Pending    int             `json:"pending"`
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Routes []Route `json:"routes"`
	// Pending counts for identities that have no routing-table entry.
	Orphaned map[int]int `json:"orphaned_pending"`
}

// Snapshot copies the registry for inspection. Routes are sorted by identity.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{Orphaned: make(map[int]int)}
	add := func(role connection.Role, t map[int]*connection.Conn) {
		for id, c := range t {
			snap.Routes = append(snap.Routes, Route{
				ID:         id,
				Role:       role,
				Session:    c.ID().String(),
				RemoteAddr: c.RemoteAddr(),
				Closed:     c.Closed(),
				Pending:    len(r.pending[id]),
			})
		}
	}
	add(connection.RoleBroker, r.brokers)
	add(connection.RoleMarket, r.markets)

	sort.Slice(snap.Routes, func(i, j int) bool {
		if snap.Routes[i].ID != snap.Routes[j].ID {
			return snap.Routes[i].ID < snap.Routes[j].ID
		}
		return snap.Routes[i].Role < snap.Routes[j].Role
	})

	for id, q := range r.pending {
		_, b := r.brokers[id]
		_, m := r.markets[id]
		if !b && !m && len(q) > 0 {
			snap.Orphaned[id] = len(q)
		}
	}
	return snap
}

// Close closes every registered connection.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*connection.Conn, 0, len(r.brokers)+len(r.markets))
	for _, c := range r.brokers {
		conns = append(conns, c)
	}
	for _, c := range r.markets {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
