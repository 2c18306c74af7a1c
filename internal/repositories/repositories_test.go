package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/testutil"
)

var ctx = context.Background()

func TestUserRepository_CacheAside(t *testing.T) {
	db := testutil.NewDB(t)
	rdb, mr := testutil.NewRedis(t)
	repo := NewUserRepository(db, rdb)

	user := &models.User{UserName: "alice", Email: "alice@example.com", PasswordHash: "h"}
	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserName)
	assert.True(t, mr.Exists(cacheKey(user.ID)), "first read fills the cache")

	require.NoError(t, repo.SetPresence(ctx, user.ID, true, time.Now()))
	assert.False(t, mr.Exists(cacheKey(user.ID)), "presence update evicts the cache")

	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
}

func TestUserRepository_GetByIDs(t *testing.T) {
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	repo := NewUserRepository(db, rdb)

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	_, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)

	users, err := repo.GetByIDs(ctx, []uint{a.ID, b.ID, 999})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "b", users[b.ID].UserName)
}

func TestUserRepository_SearchByUserName(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db, nil)

	me := testutil.CreateUser(t, db, "bob")
	testutil.CreateUser(t, db, "Bobby")
	testutil.CreateUser(t, db, "bo_x")
	testutil.CreateUser(t, db, "carol")

	users, err := repo.SearchByUserName(ctx, "bo", []uint{me.ID}, 10)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = repo.SearchByUserName(ctx, "bo_", nil, 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bo_x", users[0].UserName)
}

func TestRelationRepository_RequestLifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRelationRepository(db)
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")

	require.NoError(t, repo.SendRequest(ctx, a.ID, b.ID))
	sa, err := repo.Sets(ctx, a.ID)
	require.NoError(t, err)
	sb, err := repo.Sets(ctx, b.ID)
	require.NoError(t, err)
	assert.Contains(t, sa.SentFriendRequests, b.ID)
	assert.Contains(t, sb.ReceivedFriendRequests, a.ID)

	require.NoError(t, repo.DeclineRequest(ctx, a.ID, b.ID))
	sb, err = repo.Sets(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, sb.ReceivedFriendRequests)
	assert.Contains(t, sb.DeclinedFriendRequests, a.ID)

	require.NoError(t, repo.SendRequest(ctx, a.ID, b.ID))
	sb, err = repo.Sets(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, sb.DeclinedFriendRequests, "resend clears the decline")

	require.NoError(t, repo.AcceptRequest(ctx, a.ID, b.ID))
	sa, err = repo.Sets(ctx, a.ID)
	require.NoError(t, err)
	sb, err = repo.Sets(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, sa.IsFriend(b.ID))
	assert.True(t, sb.IsFriend(a.ID))
	assert.Empty(t, sa.SentFriendRequests)

	assert.ErrorIs(t, repo.AcceptRequest(ctx, a.ID, b.ID), gorm.ErrRecordNotFound)
}

func TestRelationRepository_BlockClearsFriendship(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRelationRepository(db)
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	testutil.MakeFriends(t, db, a.ID, b.ID)
	require.NoError(t, repo.SendRequest(ctx, b.ID, a.ID))

	require.NoError(t, repo.Block(ctx, a.ID, b.ID))

	sa, err := repo.Sets(ctx, a.ID)
	require.NoError(t, err)
	sb, err := repo.Sets(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, sa.IsFriend(b.ID))
	assert.False(t, sb.IsFriend(a.ID))
	assert.Empty(t, sa.ReceivedFriendRequests)
	assert.Contains(t, sa.BlockedUsers, b.ID)
	assert.Contains(t, sb.BlockedBy, a.ID)

	require.NoError(t, repo.Unblock(ctx, a.ID, b.ID))
	assert.ErrorIs(t, repo.Unblock(ctx, a.ID, b.ID), gorm.ErrRecordNotFound)
}

func newStatus(t *testing.T, db *gorm.DB, owner uint, expires time.Time) *models.Status {
	t.Helper()
	s := &models.Status{UserID: owner, ContentType: models.ContentText, Text: "hi", IsActive: true, ExpiresAt: expires}
	require.NoError(t, NewStatusRepository(db).Create(ctx, s))
	return s
}

func TestStatusRepository_ReadsFilterExpired(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewStatusRepository(db)
	now := time.Now()
	owner := testutil.CreateUser(t, db, "o")

	live := newStatus(t, db, owner.ID, now.Add(time.Hour))
	dead := newStatus(t, db, owner.ID, now.Add(-time.Second))

	_, err := repo.GetActive(ctx, dead.ID, now)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	got, err := repo.ListActiveByUsers(ctx, []uint{owner.ID}, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, live.ID, got[0].ID)

	require.NoError(t, db.Model(live).Update("is_active", false).Error)
	_, err = repo.GetActive(ctx, live.ID, now)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStatusRepository_AddViewOnce(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewStatusRepository(db)
	now := time.Now()
	owner := testutil.CreateUser(t, db, "o")
	viewer := testutil.CreateUser(t, db, "v")
	s := newStatus(t, db, owner.ID, now.Add(time.Hour))

	inserted, err := repo.AddView(ctx, s.ID, viewer.ID, now)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.AddView(ctx, s.ID, viewer.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := repo.CountViews(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	viewed, err := repo.ViewedSet(ctx, viewer.ID, []uint{s.ID, 12345})
	require.NoError(t, err)
	assert.Equal(t, map[uint]struct{}{s.ID: {}}, viewed)

	views, err := repo.ListViewers(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].ViewedAt.Equal(now))
}

func TestStatusRepository_DeleteExpired(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewStatusRepository(db)
	now := time.Now()
	owner := testutil.CreateUser(t, db, "o")
	viewer := testutil.CreateUser(t, db, "v")

	live := newStatus(t, db, owner.ID, now.Add(time.Hour))
	dead := newStatus(t, db, owner.ID, now.Add(-time.Hour))
	_, err := repo.AddView(ctx, dead.ID, viewer.ID, now)
	require.NoError(t, err)
	_, err = repo.AddView(ctx, live.ID, viewer.ID, now)
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	var views int64
	require.NoError(t, db.Model(&models.StatusView{}).Count(&views).Error)
	assert.EqualValues(t, 1, views)

	counts, err := repo.CountViewsByStatus(ctx, []uint{live.ID, dead.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{live.ID: 1}, counts)
}

func TestGroupRepository_Membership(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewGroupRepository(db)
	admin := testutil.CreateUser(t, db, "admin")
	m := testutil.CreateUser(t, db, "m")
	now := time.Now()

	g := &models.Group{Name: "g", AdminID: admin.ID, CreatedAt: now}
	require.NoError(t, repo.Create(ctx, g, []uint{m.ID, admin.ID}))

	ids, err := repo.MemberIDs(ctx, g.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{admin.ID, m.ID}, ids)

	groups, err := repo.ListByUser(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	require.NoError(t, repo.RemoveMember(ctx, g.ID, m.ID))
	ok, err := repo.IsMember(ctx, g.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, repo.RemoveMember(ctx, g.ID, m.ID), gorm.ErrRecordNotFound)

	require.NoError(t, repo.Delete(ctx, g.ID))
	_, err = repo.GetByID(ctx, g.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMessageRepository_ListDirectPaging(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")

	for i := int64(1); i <= 5; i++ {
		from, to := a.ID, b.ID
		if i%2 == 0 {
			from, to = b.ID, a.ID
		}
		require.NoError(t, repo.Create(ctx, &models.Message{ID: i, SenderID: from, RecipientID: &to, Content: "x"}, nil))
	}

	page, err := repo.ListDirect(ctx, a.ID, b.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 5, page[0].ID)

	page, err = repo.ListDirect(ctx, b.ID, a.ID, 3, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 2, page[0].ID)
}
