package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/repositories"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/testutil"
	"github.com/DarshiBhavsar/chat-app-sub000/middleware/jwt"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/media"
)

var ctx = context.Background()

type sentEvent struct {
	UserIDs []uint
	Event   string
	Payload any
}

// recordingNotifier keeps every fan-out in call order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) NotifyUsers(userIDs []uint, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{UserIDs: append([]uint(nil), userIDs...), Event: event, Payload: payload})
}

func (n *recordingNotifier) named(event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	n.events = nil
	n.mu.Unlock()
}

type deleteCall struct {
	PublicID     string
	ResourceType string
}

// fakeStore is an in-memory MediaStore.
type fakeStore struct {
	mu        sync.Mutex
	uploads   int
	deletes   []deleteCall
	uploadErr error
	deleteErr error
}

func (s *fakeStore) Upload(_ context.Context, r io.Reader, folder string) (*media.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	s.uploads++
	id := fmt.Sprintf("%s/obj-%d", folder, s.uploads)
	return &media.Object{URL: "https://cdn.example.com/" + id, PublicID: id}, nil
}

func (s *fakeStore) Delete(_ context.Context, publicID, resourceType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, deleteCall{PublicID: publicID, ResourceType: resourceType})
	return s.deleteErr
}

func (s *fakeStore) deleteCalls() []deleteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]deleteCall(nil), s.deletes...)
}

// seqIDs hands out increasing message ids.
type seqIDs struct {
	mu   sync.Mutex
	next int64
}

func (g *seqIDs) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return 1_000_000 + g.next, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	db       *gorm.DB
	notifier *recordingNotifier
	store    *fakeStore
	clock    *clock

	users  *repositories.UserRepository
	tokens *jwt.TokenManager

	statuses *StatusService
	friends  *FriendService
	messages *MessageService
	groups   *GroupService
	auth     *AuthService
	profiles *ProfileService
}

const statusTTL = 24 * time.Hour

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	log := logger.NewNop()

	e := &env{
		db:       db,
		notifier: &recordingNotifier{},
		store:    &fakeStore{},
		clock:    &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		users:    repositories.NewUserRepository(db, rdb),
		tokens:   jwt.NewTokenManager("test-secret", 1),
	}
	statusRepo := repositories.NewStatusRepository(db)
	relationRepo := repositories.NewRelationRepository(db)
	groupRepo := repositories.NewGroupRepository(db)
	messageRepo := repositories.NewMessageRepository(db)

	e.statuses = NewStatusService(statusRepo, relationRepo, e.users, e.store, e.notifier, log, statusTTL)
	e.statuses.now = e.clock.Now
	e.friends = NewFriendService(relationRepo, e.users, e.notifier, log)
	e.messages = NewMessageService(messageRepo, groupRepo, relationRepo, e.users, &seqIDs{}, e.store, e.notifier, log)
	e.messages.now = e.clock.Now
	e.groups = NewGroupService(groupRepo, e.users, e.store, e.notifier, log)
	e.groups.now = e.clock.Now
	e.auth = NewAuthService(e.users, e.tokens, log)
	e.auth.now = e.clock.Now
	e.profiles = NewProfileService(e.users, relationRepo, e.store, e.notifier, log)
	e.profiles.now = e.clock.Now
	return e
}

func (e *env) user(t *testing.T, name string) uint {
	t.Helper()
	return testutil.CreateUser(t, e.db, name).ID
}

func (e *env) textStatus(t *testing.T, owner uint, text string) *StatusItem {
	t.Helper()
	item, err := e.statuses.CreateStatus(ctx, owner, &CreateStatusRequest{
		Content: &StatusContent{Type: models.ContentText, Text: text},
	})
	require.NoError(t, err)
	return item
}

func imageFile() *FileUpload {
	return &FileUpload{Reader: strings.NewReader("png bytes"), FileName: "a.png", MIMEType: "image/png", Size: 9}
}

var errStoreDown = errors.New("object storage unavailable")
