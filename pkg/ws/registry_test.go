package ws

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	alice = Identity{UserID: 1, UserName: "alice"}
	bob   = Identity{UserID: 2, UserName: "bob"}
)

func TestParseDropPolicy(t *testing.T) {
	p, err := ParseDropPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropUnconditional, p)

	p, err = ParseDropPolicy("owner")
	require.NoError(t, err)
	assert.Equal(t, DropOwner, p)

	_, err = ParseDropPolicy("sticky")
	assert.Error(t, err)
}

func TestRegistry_IdentifyAndLookup(t *testing.T) {
	r := NewRegistry(DropUnconditional)

	assert.Empty(t, r.Identify("c1", alice))
	assert.Empty(t, r.Identify("c2", bob))

	conn, ok := r.Lookup(alice.UserID)
	require.True(t, ok)
	assert.Equal(t, "c1", conn)

	id, ok := r.IdentityOf("c2")
	require.True(t, ok)
	assert.Equal(t, bob, id)

	assert.Equal(t, []Identity{alice, bob}, r.Online())

	_, ok = r.Lookup(99)
	assert.False(t, ok)
}

func TestRegistry_NewConnectionSupersedes(t *testing.T) {
	r := NewRegistry(DropUnconditional)
	r.Identify("c1", alice)

	assert.Equal(t, "c1", r.Identify("c2", alice))

	conn, _ := r.Lookup(alice.UserID)
	assert.Equal(t, "c2", conn)
	assert.Equal(t, []Identity{alice}, r.Online(), "one entry per user")
}

func TestRegistry_ReidentifyDifferentUser(t *testing.T) {
	r := NewRegistry(DropOwner)
	r.Identify("c1", alice)
	r.Identify("c1", bob)

	_, ok := r.Lookup(alice.UserID)
	assert.False(t, ok)
	assert.Equal(t, []Identity{bob}, r.Online())
}

func TestRegistry_DropUnconditional(t *testing.T) {
	r := NewRegistry(DropUnconditional)
	r.Identify("c1", alice)
	r.Identify("c2", alice)

	// the stale connection closing takes the live entry with it
	id, removed := r.Drop("c1")
	assert.Equal(t, alice, id)
	assert.True(t, removed)
	_, ok := r.Lookup(alice.UserID)
	assert.False(t, ok)
	assert.Empty(t, r.Online())

	id, removed = r.Drop("c2")
	assert.Equal(t, alice, id)
	assert.False(t, removed)
}

func TestRegistry_DropOwner(t *testing.T) {
	r := NewRegistry(DropOwner)
	r.Identify("c1", alice)
	r.Identify("c2", alice)

	_, removed := r.Drop("c1")
	assert.False(t, removed)
	conn, ok := r.Lookup(alice.UserID)
	require.True(t, ok)
	assert.Equal(t, "c2", conn)

	_, removed = r.Drop("c2")
	assert.True(t, removed)
	assert.Empty(t, r.Online())
}

func TestRegistry_DropUnknown(t *testing.T) {
	r := NewRegistry(DropOwner)
	id, removed := r.Drop("nope")
	assert.Zero(t, id)
	assert.False(t, removed)
}

// Every user entry must point at a connection identified as that user, under
// either policy and any interleaving of identify and drop.
func TestRegistry_EntriesPointAtOwnConnection(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := rapid.SampledFrom([]DropPolicy{DropUnconditional, DropOwner}).Draw(t, "policy")
		r := NewRegistry(policy)

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for range steps {
			conn := fmt.Sprintf("c%d", rapid.IntRange(1, 6).Draw(t, "conn"))
			if rapid.Bool().Draw(t, "identify") {
				user := rapid.UintRange(1, 4).Draw(t, "user")
				r.Identify(conn, Identity{UserID: user})
			} else {
				r.Drop(conn)
			}

			seen := make(map[uint]bool)
			for _, id := range r.Online() {
				if seen[id.UserID] {
					t.Fatalf("user %d listed twice", id.UserID)
				}
				seen[id.UserID] = true

				owner, ok := r.Lookup(id.UserID)
				if !ok {
					t.Fatalf("online user %d has no connection", id.UserID)
				}
				bound, ok := r.IdentityOf(owner)
				if !ok || bound.UserID != id.UserID {
					t.Fatalf("user %d points at %s bound to %+v", id.UserID, owner, bound)
				}
			}
		}
	})
}
