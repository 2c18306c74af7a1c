package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"gorm.io/gorm"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/repositories"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
)

const searchLimit = 20

// FriendService 好友服务
type FriendService struct {
	relations *repositories.RelationRepository
	users     *repositories.UserRepository
	notifier  Notifier
	log       *logger.Logger
}

func NewFriendService(
	relations *repositories.RelationRepository,
	users *repositories.UserRepository,
	notifier Notifier,
	log *logger.Logger,
) *FriendService {
	return &FriendService{relations: relations, users: users, notifier: notifier, log: log}
}

type FriendRequests struct {
	Received []models.PublicUser `json:"received"`
	Sent     []models.PublicUser `json:"sent"`
}

type SearchResult struct {
	models.PublicUser
	Relation string `json:"relation"`
}

// SendRequest 发送好友请求. A decline the target recorded earlier for this
// sender is cleared.
func (s *FriendService) SendRequest(ctx context.Context, from, to uint) error {
	if from == to {
		return ErrSelfAction
	}
	sender, err := s.users.GetByID(ctx, from)
	if err != nil {
		return lookup(err, ErrUserNotFound)
	}
	if _, err := s.users.GetByID(ctx, to); err != nil {
		return lookup(err, ErrUserNotFound)
	}

	sets, err := s.relations.Sets(ctx, from)
	if err != nil {
		return upstream(err)
	}
	switch {
	case sets.IsBlockedEitherWay(to):
		return ErrBlocked
	case sets.IsFriend(to):
		return ErrAlreadyFriends
	case has(sets.SentFriendRequests, to):
		return ErrRequestExists
	case has(sets.ReceivedFriendRequests, to):
		return ErrRequestIncoming
	}

	if err := s.relations.SendRequest(ctx, from, to); err != nil {
		return upstream(err)
	}
	s.notifier.NotifyUsers([]uint{to}, EventFriendRequestReceived, payload{"from": sender.Public()})
	return nil
}

// AcceptRequest 接受 from 发给 me 的请求
func (s *FriendService) AcceptRequest(ctx context.Context, me, from uint) (*models.PublicUser, error) {
	if err := s.relations.AcceptRequest(ctx, from, me); err != nil {
		return nil, lookup(err, ErrRequestNotFound)
	}

	friend, err := s.users.GetByID(ctx, from)
	if err != nil {
		return nil, lookup(err, ErrUserNotFound)
	}
	if accepter, err := s.users.GetByID(ctx, me); err == nil {
		s.notifier.NotifyUsers([]uint{from}, EventFriendRequestAccepted, payload{"user": accepter.Public()})
	}
	pub := friend.Public()
	return &pub, nil
}

// DeclineRequest 拒绝好友请求
func (s *FriendService) DeclineRequest(ctx context.Context, me, from uint) error {
	if err := s.relations.DeclineRequest(ctx, from, me); err != nil {
		return lookup(err, ErrRequestNotFound)
	}
	s.notifier.NotifyUsers([]uint{from}, EventFriendRequestDeclined, payload{"user_id": me})
	return nil
}

// CancelRequest 撤回已发送的好友请求
func (s *FriendService) CancelRequest(ctx context.Context, me, to uint) error {
	if err := s.relations.CancelRequest(ctx, me, to); err != nil {
		return lookup(err, ErrRequestNotFound)
	}
	s.notifier.NotifyUsers([]uint{to}, EventFriendRequestCancelled, payload{"user_id": me})
	return nil
}

// Unfriend 删除好友
func (s *FriendService) Unfriend(ctx context.Context, me, other uint) error {
	if err := s.relations.Unfriend(ctx, me, other); err != nil {
		return lookup(err, ErrNotFriends)
	}
	s.notifier.NotifyUsers([]uint{other}, EventFriendRemoved, payload{"user_id": me})
	s.notifier.NotifyUsers([]uint{me, other}, EventStatusFeedRefresh, payload{})
	return nil
}

// Block 拉黑. Friendship and pending requests in both directions go with it.
func (s *FriendService) Block(ctx context.Context, me, other uint) error {
	if me == other {
		return ErrSelfAction
	}
	if _, err := s.users.GetByID(ctx, other); err != nil {
		return lookup(err, ErrUserNotFound)
	}
	sets, err := s.relations.Sets(ctx, me)
	if err != nil {
		return upstream(err)
	}
	if has(sets.BlockedUsers, other) {
		return ErrAlreadyBlocked
	}

	if err := s.relations.Block(ctx, me, other); err != nil {
		return upstream(err)
	}
	s.notifier.NotifyUsers([]uint{me, other}, EventStatusFeedRefresh, payload{})
	return nil
}

// Unblock 取消拉黑
func (s *FriendService) Unblock(ctx context.Context, me, other uint) error {
	if err := s.relations.Unblock(ctx, me, other); err != nil {
		return lookup(err, ErrNotBlocked)
	}
	s.notifier.NotifyUsers([]uint{me, other}, EventStatusFeedRefresh, payload{})
	return nil
}

// ListFriends 好友列表, with presence, ordered by username.
func (s *FriendService) ListFriends(ctx context.Context, me uint) ([]models.PublicUser, error) {
	sets, err := s.relations.Sets(ctx, me)
	if err != nil {
		return nil, upstream(err)
	}
	return s.publicUsers(ctx, sets.VisibleFriends())
}

func (s *FriendService) ListRequests(ctx context.Context, me uint) (*FriendRequests, error) {
	sets, err := s.relations.Sets(ctx, me)
	if err != nil {
		return nil, upstream(err)
	}
	received, err := s.publicUsers(ctx, keys(sets.ReceivedFriendRequests))
	if err != nil {
		return nil, err
	}
	sent, err := s.publicUsers(ctx, keys(sets.SentFriendRequests))
	if err != nil {
		return nil, err
	}
	return &FriendRequests{Received: received, Sent: sent}, nil
}

func (s *FriendService) ListBlocked(ctx context.Context, me uint) ([]models.PublicUser, error) {
	sets, err := s.relations.Sets(ctx, me)
	if err != nil {
		return nil, upstream(err)
	}
	return s.publicUsers(ctx, keys(sets.BlockedUsers))
}

// Search 按用户名前缀搜索. Users in a block relation with the caller are
// never returned.
func (s *FriendService) Search(ctx context.Context, me uint, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query is required")
	}
	sets, err := s.relations.Sets(ctx, me)
	if err != nil {
		return nil, upstream(err)
	}

	exclude := append([]uint{me}, keys(sets.BlockedUsers)...)
	exclude = append(exclude, keys(sets.BlockedBy)...)
	users, err := s.users.SearchByUserName(ctx, query, exclude, searchLimit)
	if err != nil {
		return nil, upstream(err)
	}

	results := make([]SearchResult, 0, len(users))
	for i := range users {
		results = append(results, SearchResult{
			PublicUser: users[i].Public(),
			Relation:   sets.RelationTo(users[i].ID),
		})
	}
	return results, nil
}

// Relations exposes the caller's relationship sets to other services.
func (s *FriendService) Relations(ctx context.Context, me uint) (*models.RelationSets, error) {
	sets, err := s.relations.Sets(ctx, me)
	if err != nil {
		return nil, upstream(err)
	}
	return sets, nil
}

func (s *FriendService) publicUsers(ctx context.Context, ids []uint) ([]models.PublicUser, error) {
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, upstream(err)
	}
	out := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	slices.SortFunc(out, func(a, b models.PublicUser) int {
		return strings.Compare(strings.ToLower(a.UserName), strings.ToLower(b.UserName))
	})
	return out, nil
}

func has(set map[uint]struct{}, id uint) bool {
	_, ok := set[id]
	return ok
}

func keys(set map[uint]struct{}) []uint {
	ids := make([]uint, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
