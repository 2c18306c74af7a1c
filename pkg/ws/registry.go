package ws

import (
	"fmt"
	"sort"
	"sync"
)

// Identity is who a connection claims to be after user-joined.
type Identity struct {
	UserID   uint   `json:"userId"`
	UserName string `json:"username"`
}

// DropPolicy decides what Drop does with a user entry that was taken over
// by a newer connection.
type DropPolicy string

const (
	// DropUnconditional removes the user's entry on any disconnect of one of
	// their connections, even a superseded one.
	DropUnconditional DropPolicy = "unconditional"
	// DropOwner removes the entry only while it still points at the
	// disconnecting connection.
	DropOwner DropPolicy = "owner"
)

// ParseDropPolicy maps a config value to a policy.
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch p := DropPolicy(s); p {
	case DropUnconditional, DropOwner:
		return p, nil
	case "":
		return DropUnconditional, nil
	default:
		return "", fmt.Errorf("unknown drop policy %q", s)
	}
}

// Registry maps connection ids to identities and user ids to the connection
// that last identified as them.
type Registry struct {
	mu     sync.RWMutex
	policy DropPolicy
	conns  map[string]Identity // connID -> identity
	users  map[uint]string     // userID -> connID
}

func NewRegistry(policy DropPolicy) *Registry {
	if policy == "" {
		policy = DropUnconditional
	}
	return &Registry{
		policy: policy,
		conns:  make(map[string]Identity),
		users:  make(map[uint]string),
	}
}

// Identify binds connID to id and points the user's entry at connID. The
// connection previously registered for that user, if any, is returned; it is
// not closed.
func (r *Registry) Identify(connID string, id Identity) (superseded string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 同一连接换了身份：先清掉旧的用户映射
	if prev, ok := r.conns[connID]; ok && prev.UserID != id.UserID {
		if r.users[prev.UserID] == connID {
			delete(r.users, prev.UserID)
		}
	}
	r.conns[connID] = id
	if old, ok := r.users[id.UserID]; ok && old != connID {
		superseded = old
	}
	r.users[id.UserID] = connID
	return superseded
}

// Drop forgets connID. removed reports whether the user's online entry went
// away as a result, which depends on the policy.
func (r *Registry) Drop(connID string) (id Identity, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.conns[connID]
	if !ok {
		return Identity{}, false
	}
	delete(r.conns, connID)

	current, online := r.users[id.UserID]
	if !online {
		return id, false
	}
	if r.policy == DropOwner && current != connID {
		return id, false
	}
	delete(r.users, id.UserID)
	return id, true
}

// Lookup returns the connection registered for userID.
func (r *Registry) Lookup(userID uint) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.users[userID]
	return connID, ok
}

// IdentityOf returns the identity bound to connID.
func (r *Registry) IdentityOf(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.conns[connID]
	return id, ok
}

// Online lists one identity per online user, ordered by user id.
func (r *Registry) Online() []Identity {
	r.mu.RLock()
	out := make([]Identity, 0, len(r.users))
	for _, connID := range r.users {
		if id, ok := r.conns[connID]; ok {
			out = append(out, id)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
