// Package registry holds the tracker's in-memory table of live peers.
// All operations serialize on a single mutex; nothing outside this package
// ever touches the map.
package registry

import (
	"sync"
	"time"

	"peerchat/datamodel/peer"
)

type Registry struct {
	mu    sync.Mutex
	peers map[string]*peer.Record
}

func New() *Registry {
	return &Registry{
		peers: make(map[string]*peer.Record),
	}
}

// Upsert inserts or overwrites the record for id. A re-registration is
// last-writer-wins: ip, port and both timestamps are replaced wholesale.
// Returns the number of registered peers after the operation.
func (r *Registry) Upsert(id string, ip string, port int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.peers[id] = &peer.Record{
		PeerID:        id,
		IP:            ip,
		Port:          port,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	return len(r.peers)
}

// Touch refreshes the heartbeat timestamp for id. Returns false, leaving
// the registry unchanged, when id is unknown: a swept-out peer must
// re-register instead.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.peers[id]
	if !ok {
		return false
	}
	rec.LastHeartbeat = time.Now()
	return true
}

// Remove deletes the record for id. Returns false when id is unknown.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	return true
}

// Snapshot returns a point-in-time copy of every record. The result does
// not alias the internal map; callers may keep or mutate it freely.
// Iteration order is unspecified.
func (r *Registry) Snapshot() []peer.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]peer.Record, 0, len(r.peers))
	for _, rec := range r.peers {
		out = append(out, *rec)
	}
	return out
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Sweep removes every record whose last heartbeat is older than timeout
// relative to now and returns the removed ids. Records are removed, never
// marked dead in place.
func (r *Registry) Sweep(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, rec := range r.peers {
		if now.Sub(rec.LastHeartbeat) > timeout {
			delete(r.peers, id)
			removed = append(removed, id)
		}
	}
	return removed
}
