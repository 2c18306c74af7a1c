package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/testutil"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
)

func TestFriendRequestLifecycle(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	require.NoError(t, e.friends.SendRequest(ctx, alice, bob))
	assert.Len(t, e.notifier.named(EventFriendRequestReceived), 1)

	assert.ErrorIs(t, e.friends.SendRequest(ctx, alice, bob), ErrRequestExists)
	assert.ErrorIs(t, e.friends.SendRequest(ctx, bob, alice), ErrRequestIncoming)

	reqs, err := e.friends.ListRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, reqs.Received, 1)
	assert.Equal(t, alice, reqs.Received[0].ID)
	assert.Empty(t, reqs.Sent)

	friend, err := e.friends.AcceptRequest(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, alice, friend.ID)
	accepted := e.notifier.named(EventFriendRequestAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, []uint{alice}, accepted[0].UserIDs)

	for _, pair := range [][2]uint{{alice, bob}, {bob, alice}} {
		friends, err := e.friends.ListFriends(ctx, pair[0])
		require.NoError(t, err)
		require.Len(t, friends, 1)
		assert.Equal(t, pair[1], friends[0].ID)
	}
	assert.ErrorIs(t, e.friends.SendRequest(ctx, alice, bob), ErrAlreadyFriends)

	_, err = e.friends.AcceptRequest(ctx, bob, alice)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestSendRequest_Validation(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	testutil.Block(t, e.db, bob, alice)

	assert.ErrorIs(t, e.friends.SendRequest(ctx, alice, alice), ErrSelfAction)
	assert.ErrorIs(t, e.friends.SendRequest(ctx, alice, 9999), ErrUserNotFound)
	assert.ErrorIs(t, e.friends.SendRequest(ctx, alice, bob), ErrBlocked)
	assert.Empty(t, e.notifier.events)
}

func TestDeclineThenResend(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	require.NoError(t, e.friends.SendRequest(ctx, alice, bob))
	require.NoError(t, e.friends.DeclineRequest(ctx, bob, alice))
	assert.Len(t, e.notifier.named(EventFriendRequestDeclined), 1)

	sets, err := e.friends.Relations(ctx, bob)
	require.NoError(t, err)
	assert.Contains(t, sets.DeclinedFriendRequests, alice)
	assert.Empty(t, sets.ReceivedFriendRequests)

	require.NoError(t, e.friends.SendRequest(ctx, alice, bob), "a declined sender may ask again")
	sets, err = e.friends.Relations(ctx, bob)
	require.NoError(t, err)
	assert.NotContains(t, sets.DeclinedFriendRequests, alice)
	assert.Contains(t, sets.ReceivedFriendRequests, alice)

	require.NoError(t, e.friends.CancelRequest(ctx, alice, bob))
	assert.ErrorIs(t, e.friends.CancelRequest(ctx, alice, bob), ErrRequestNotFound)
	assert.Len(t, e.notifier.named(EventFriendRequestCancelled), 1)
}

func TestUnfriend(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	testutil.MakeFriends(t, e.db, alice, bob)

	require.NoError(t, e.friends.Unfriend(ctx, alice, bob))
	removed := e.notifier.named(EventFriendRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, []uint{bob}, removed[0].UserIDs)
	refresh := e.notifier.named(EventStatusFeedRefresh)
	require.Len(t, refresh, 1)
	assert.ElementsMatch(t, []uint{alice, bob}, refresh[0].UserIDs)

	assert.ErrorIs(t, e.friends.Unfriend(ctx, alice, bob), ErrNotFriends)
}

func TestBlockClearsFriendshipAndRequests(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	carol := e.user(t, "carol")
	testutil.MakeFriends(t, e.db, alice, bob)
	require.NoError(t, e.friends.SendRequest(ctx, carol, alice))

	require.NoError(t, e.friends.Block(ctx, alice, bob))
	require.NoError(t, e.friends.Block(ctx, alice, carol))
	assert.ErrorIs(t, e.friends.Block(ctx, alice, bob), ErrAlreadyBlocked)

	sets, err := e.friends.Relations(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, sets.Friends)
	assert.Empty(t, sets.ReceivedFriendRequests)
	assert.Len(t, sets.BlockedUsers, 2)

	bobSets, err := e.friends.Relations(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, bobSets.Friends)
	assert.Contains(t, bobSets.BlockedBy, alice)

	blocked, err := e.friends.ListBlocked(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, blocked, 2)

	require.NoError(t, e.friends.Unblock(ctx, alice, bob))
	assert.ErrorIs(t, e.friends.Unblock(ctx, alice, bob), ErrNotBlocked)
	assert.Len(t, e.notifier.named(EventStatusFeedRefresh), 3)

	friends, err := e.friends.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, friends, "unblocking does not restore the friendship")
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	me := e.user(t, "sam")
	friend := e.user(t, "sally")
	e.user(t, "sarah")
	blocker := e.user(t, "sasha")
	e.user(t, "tom")
	testutil.MakeFriends(t, e.db, me, friend)
	testutil.Block(t, e.db, blocker, me)

	results, err := e.friends.Search(ctx, me, "SA")
	require.NoError(t, err)

	relations := make(map[string]string)
	for _, r := range results {
		relations[r.UserName] = r.Relation
	}
	assert.Equal(t, map[string]string{"sally": "friend", "sarah": "none"}, relations)

	_, err = e.friends.Search(ctx, me, "  ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
