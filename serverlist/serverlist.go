// Package serverlist is the liveness oracle the server-id RPC wrapper
// (C8) consults after a transport error: is the target still a cluster
// member, or has it been declared dead by the coordinator? Cluster
// membership itself is out of scope (spec.md §1 Non-goals); this package
// is the narrow read-only view the wrapper needs.
package serverlist

import "sync"

// ServerList reports whether a server id is still a cluster member.
type ServerList interface {
	IsServerUp(serverId uint64) bool
}

// Static is an in-memory ServerList a test or CLI can mutate directly,
// standing in for the coordinator-fed membership view a real cluster would
// maintain.
type Static struct {
	mu  sync.RWMutex
	set map[uint64]bool
}

func NewStatic(up ...uint64) *Static {
	s := &Static{set: make(map[uint64]bool, len(up))}
	for _, id := range up {
		s.set[id] = true
	}
	return s
}

func (s *Static) IsServerUp(serverId uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set[serverId]
}

// MarkDown removes a server from the live set, simulating a crash the
// coordinator has since noticed.
func (s *Static) MarkDown(serverId uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, serverId)
}

// MarkUp adds or restores a server to the live set.
func (s *Static) MarkUp(serverId uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[serverId] = true
}
