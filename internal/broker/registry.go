package broker

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/nowplaying/backend/internal/apperror"
)

// Entry is the metadata kept for one admitted connection.
type Entry struct {
	ConnectionID   string
	RemoteAddr     string
	UserAgent      string
	ConnectedAt    time.Time
	LastActivityAt time.Time
}

// Member pairs a handle with a copy of its entry.
type Member struct {
	Conn  *Conn
	Entry Entry
}

// Registry is the capped set of admitted connections. All methods are safe
// for concurrent use; admission check and insert happen under one lock.
type Registry struct {
	mu      sync.Mutex
	clock   clock.Clock
	limit   int
	members map[*Conn]*Entry
}

// NewRegistry creates a Registry admitting at most limit connections.
func NewRegistry(limit int, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Registry{
		clock:   clk,
		limit:   limit,
		members: make(map[*Conn]*Entry),
	}
}

// TryAdmit inserts conn unless the registry is full. Admitting a handle that
// is already present succeeds without changing its entry.
func (r *Registry) TryAdmit(conn *Conn, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[conn]; ok {
		return nil
	}
	if len(r.members) >= r.limit {
		return apperror.CapacityExceeded(r.limit, len(r.members))
	}

	now := r.clock.Now()
	if entry.ConnectedAt.IsZero() {
		entry.ConnectedAt = now
	}
	entry.LastActivityAt = now
	r.members[conn] = &entry
	return nil
}

// Remove deletes conn and reports whether it was present.
func (r *Registry) Remove(conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[conn]; !ok {
		return false
	}
	delete(r.members, conn)
	return true
}

// RemoveAll deletes every given handle and returns how many were present.
func (r *Registry) RemoveAll(conns []*Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, c := range conns {
		if _, ok := r.members[c]; ok {
			delete(r.members, c)
			removed++
		}
	}
	return removed
}

// Touch records activity on conn. Absent handles are ignored.
func (r *Registry) Touch(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.members[conn]; ok {
		e.LastActivityAt = r.clock.Now()
	}
}

// Lookup returns a copy of conn's entry.
func (r *Registry) Lookup(conn *Conn) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.members[conn]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns a point-in-time copy of all members, oldest first.
func (r *Registry) Snapshot() []Member {
	r.mu.Lock()
	members := make([]Member, 0, len(r.members))
	for c, e := range r.members {
		members = append(members, Member{Conn: c, Entry: *e})
	}
	r.mu.Unlock()

	slices.SortFunc(members, func(a, b Member) int {
		if c := a.Entry.ConnectedAt.Compare(b.Entry.ConnectedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Entry.ConnectionID, b.Entry.ConnectionID)
	})
	return members
}

// Size returns the current membership count.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Cap returns the admission limit.
func (r *Registry) Cap() int {
	return r.limit
}

// SweepStale removes and returns every connection idle for longer than
// threshold. The caller closes the returned handles.
func (r *Registry) SweepStale(threshold time.Duration) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-threshold)
	var stale []*Conn
	for c, e := range r.members {
		if e.LastActivityAt.Before(cutoff) {
			stale = append(stale, c)
			delete(r.members, c)
		}
	}
	return stale
}

// Drain removes and returns every connection.
func (r *Registry) Drain() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*Conn, 0, len(r.members))
	for c := range r.members {
		all = append(all, c)
	}
	clear(r.members)
	return all
}
