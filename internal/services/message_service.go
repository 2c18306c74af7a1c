package services

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/repositories"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
)

const (
	defaultPageSize   = 50
	maxPageSize       = 100
	maxMessageLength  = 5000
	messageMediaDir   = "messages"
	maxEmojiByteCount = 32
)

// IDGenerator issues message ids.
type IDGenerator interface {
	NextID() (int64, error)
}

// MessageService 消息服务. Messages are durable; the notifier only pushes
// them to whoever is connected.
type MessageService struct {
	messages  *repositories.MessageRepository
	groups    *repositories.GroupRepository
	relations *repositories.RelationRepository
	users     *repositories.UserRepository
	ids       IDGenerator
	media     MediaStore
	notifier  Notifier
	log       *logger.Logger
	now       func() time.Time
}

func NewMessageService(
	messages *repositories.MessageRepository,
	groups *repositories.GroupRepository,
	relations *repositories.RelationRepository,
	users *repositories.UserRepository,
	ids IDGenerator,
	store MediaStore,
	notifier Notifier,
	log *logger.Logger,
) *MessageService {
	return &MessageService{
		messages:  messages,
		groups:    groups,
		relations: relations,
		users:     users,
		ids:       ids,
		media:     store,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Content       string         `json:"content"`
	MsgType       models.MsgType `json:"msg_type"`
	MediaURL      string         `json:"media_url"`
	ReplyToID     int64          `json:"reply_to_id,string,omitempty"`
	ForwardFromID int64          `json:"forward_from_id,string,omitempty"`
}

type ReactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type UploadedMedia struct {
	URL      string         `json:"url"`
	PublicID string         `json:"public_id"`
	MsgType  models.MsgType `json:"msg_type"`
}

// SendDirect 发送私聊消息
func (s *MessageService) SendDirect(ctx context.Context, sender, recipient uint, req *SendMessageRequest) (*models.Message, error) {
	if sender == recipient {
		return nil, ErrSelfAction
	}
	if err := validateMessage(req); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, recipient); err != nil {
		return nil, lookup(err, ErrUserNotFound)
	}
	sets, err := s.relations.Sets(ctx, sender)
	if err != nil {
		return nil, upstream(err)
	}
	if sets.IsBlockedEitherWay(recipient) {
		return nil, ErrBlocked
	}

	msg, err := s.newMessage(ctx, sender, req)
	if err != nil {
		return nil, err
	}
	msg.RecipientID = &recipient

	if err := s.messages.Create(ctx, msg, nil); err != nil {
		return nil, upstream(err)
	}
	s.notifier.NotifyUsers([]uint{recipient}, EventNewMessage, payload{"message": msg})
	return msg, nil
}

// SendGroup 发送群消息. Every other member gets a delivery receipt.
func (s *MessageService) SendGroup(ctx context.Context, sender, groupID uint, req *SendMessageRequest) (*models.Message, error) {
	if err := validateMessage(req); err != nil {
		return nil, err
	}
	members, err := s.memberIDs(ctx, groupID, sender)
	if err != nil {
		return nil, err
	}

	msg, err := s.newMessage(ctx, sender, req)
	if err != nil {
		return nil, err
	}
	msg.GroupID = &groupID

	others := without(members, sender)
	receipts := make([]models.MessageReceipt, 0, len(others))
	for _, id := range others {
		receipts = append(receipts, models.MessageReceipt{MessageID: msg.ID, UserID: id})
	}
	if err := s.messages.Create(ctx, msg, receipts); err != nil {
		return nil, upstream(err)
	}
	if err := s.groups.Touch(ctx, groupID, msg.CreatedAt); err != nil {
		s.log.WarnContext(ctx, "touch group failed", zap.Uint("group_id", groupID), zap.Error(err))
	}

	s.notifier.NotifyUsers(others, EventNewGroupMessage, payload{"group_id": groupID, "message": msg})
	return msg, nil
}

func validateMessage(req *SendMessageRequest) error {
	req.Content = strings.TrimSpace(req.Content)
	req.MediaURL = strings.TrimSpace(req.MediaURL)
	if req.MsgType == "" {
		req.MsgType = models.MsgText
	}
	if len([]rune(req.Content)) > maxMessageLength {
		return apperr.Validation("message is too long")
	}

	switch req.MsgType {
	case models.MsgText:
		if req.Content == "" && req.ForwardFromID == 0 {
			return apperr.Validation("message content is required")
		}
	case models.MsgImage, models.MsgVideo, models.MsgAudio, models.MsgFile:
		if req.MediaURL == "" && req.ForwardFromID == 0 {
			return apperr.Validation("media_url is required for media messages")
		}
	default:
		return apperr.Validation("unknown message type")
	}
	return nil
}

func (s *MessageService) newMessage(ctx context.Context, sender uint, req *SendMessageRequest) (*models.Message, error) {
	id, err := s.ids.NextID()
	if err != nil {
		return nil, apperr.Upstream("failed to allocate message id", err)
	}
	now := s.now()
	msg := &models.Message{
		ID:        id,
		SenderID:  sender,
		Content:   req.Content,
		MsgType:   req.MsgType,
		MediaURL:  req.MediaURL,
		Reactions: datatypes.JSONSlice[models.Reaction]{},
		Status:    models.DeliverySent,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if req.ReplyToID != 0 {
		snap, err := s.snapshot(ctx, sender, req.ReplyToID)
		if err != nil {
			return nil, err
		}
		msg.ReplyTo = snap
	}
	if req.ForwardFromID != 0 {
		snap, err := s.snapshot(ctx, sender, req.ForwardFromID)
		if err != nil {
			return nil, err
		}
		msg.ForwardedFrom = snap
		// 转发时沿用原消息内容
		if msg.Content == "" && msg.MediaURL == "" {
			orig := snap.Data()
			msg.Content, msg.MsgType, msg.MediaURL = orig.Content, orig.MsgType, orig.MediaURL
		}
	}
	return msg, nil
}

// snapshot copies a message the caller can see. The copy does not follow
// later edits or deletion of the original.
func (s *MessageService) snapshot(ctx context.Context, userID uint, id int64) (*datatypes.JSONType[models.MessageSnapshot], error) {
	orig, err := s.visibleMessage(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if orig.IsDeleted {
		return nil, apperr.Validation("cannot reference a deleted message")
	}
	snap := datatypes.NewJSONType(models.MessageSnapshot{
		MessageID: orig.ID,
		SenderID:  orig.SenderID,
		Content:   orig.Content,
		MsgType:   orig.MsgType,
		MediaURL:  orig.MediaURL,
	})
	return &snap, nil
}

// visibleMessage loads a message the caller took part in. Messages of other
// conversations read as missing.
func (s *MessageService) visibleMessage(ctx context.Context, userID uint, id int64) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, lookup(err, ErrMessageNotFound)
	}
	if msg.GroupID != nil {
		ok, err := s.groups.IsMember(ctx, *msg.GroupID, userID)
		if err != nil {
			return nil, upstream(err)
		}
		if !ok {
			return nil, ErrMessageNotFound
		}
		return msg, nil
	}
	if msg.SenderID != userID && (msg.RecipientID == nil || *msg.RecipientID != userID) {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

// ListDirect 获取私聊历史, newest first. Deleted messages keep their place
// with content blanked.
func (s *MessageService) ListDirect(ctx context.Context, me, other uint, before int64, limit int) ([]models.Message, error) {
	msgs, err := s.messages.ListDirect(ctx, me, other, before, pageSize(limit))
	if err != nil {
		return nil, upstream(err)
	}
	return redact(msgs), nil
}

// ListGroup 获取群聊历史 (members only)
func (s *MessageService) ListGroup(ctx context.Context, me, groupID uint, before int64, limit int) ([]models.Message, error) {
	if _, err := s.memberIDs(ctx, groupID, me); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListGroup(ctx, groupID, before, pageSize(limit))
	if err != nil {
		return nil, upstream(err)
	}
	return redact(msgs), nil
}

// Delete 撤回消息 (sender only). Deleting twice is a no-op.
func (s *MessageService) Delete(ctx context.Context, me uint, id int64) error {
	msg, err := s.visibleMessage(ctx, me, id)
	if err != nil {
		return err
	}
	if msg.SenderID != me {
		return ErrNotSender
	}
	if msg.IsDeleted {
		return nil
	}

	msg.IsDeleted = true
	msg.UpdatedAt = s.now()
	if err := s.messages.Update(ctx, msg); err != nil {
		return upstream(err)
	}
	s.notifier.NotifyUsers(s.participants(ctx, msg, me), EventMessageDeleted, payload{
		"message_id": strconv.FormatInt(msg.ID, 10),
		"group_id":   msg.GroupID,
	})
	return nil
}

// React toggles the caller's emoji on a message. A different emoji from the
// same user replaces the previous one.
func (s *MessageService) React(ctx context.Context, me uint, id int64, emoji string) (*models.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiByteCount {
		return nil, apperr.Validation("invalid emoji")
	}
	msg, err := s.visibleMessage(ctx, me, id)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, apperr.Validation("cannot react to a deleted message")
	}

	msg.Reactions = toggleReaction(msg.Reactions, me, emoji, s.now())
	msg.UpdatedAt = s.now()
	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, upstream(err)
	}
	s.notifier.NotifyUsers(s.participants(ctx, msg, 0), EventMessageReaction, payload{
		"message_id": strconv.FormatInt(msg.ID, 10),
		"group_id":   msg.GroupID,
		"reactions":  msg.Reactions,
	})
	return msg, nil
}

func toggleReaction(reactions []models.Reaction, userID uint, emoji string, at time.Time) []models.Reaction {
	i := slices.IndexFunc(reactions, func(r models.Reaction) bool { return r.UserID == userID })
	if i < 0 {
		return append(reactions, models.Reaction{UserID: userID, Emoji: emoji, CreatedAt: at})
	}
	if reactions[i].Emoji == emoji {
		return slices.Delete(reactions, i, i+1)
	}
	reactions[i] = models.Reaction{UserID: userID, Emoji: emoji, CreatedAt: at}
	return reactions
}

// MarkDelivered records delivery to the caller.
func (s *MessageService) MarkDelivered(ctx context.Context, me uint, id int64) (*models.Message, error) {
	return s.markStatus(ctx, me, id, models.DeliveryDelivered)
}

// MarkRead records that the caller read the message; read implies delivered.
func (s *MessageService) MarkRead(ctx context.Context, me uint, id int64) (*models.Message, error) {
	return s.markStatus(ctx, me, id, models.DeliveryRead)
}

func (s *MessageService) markStatus(ctx context.Context, me uint, id int64, target models.DeliveryStatus) (*models.Message, error) {
	msg, err := s.visibleMessage(ctx, me, id)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == me {
		return nil, ErrNotRecipient
	}
	now := s.now()

	if msg.GroupID == nil {
		changed := stamp(&msg.DeliveredAt, &msg.ReadAt, target, now)
		if !changed {
			return msg, nil
		}
		msg.Status = statusFrom(msg.DeliveredAt, msg.ReadAt)
		msg.UpdatedAt = now
		if err := s.messages.Update(ctx, msg); err != nil {
			return nil, upstream(err)
		}
	} else {
		receipt, err := s.messages.GetReceipt(ctx, msg.ID, me)
		if err != nil {
			return nil, lookup(err, ErrReceiptNotFound)
		}
		if !stamp(&receipt.DeliveredAt, &receipt.ReadAt, target, now) {
			return msg, nil
		}
		if err := s.messages.UpdateReceipt(ctx, receipt); err != nil {
			return nil, upstream(err)
		}
		if err := s.rollUpGroupStatus(ctx, msg, now); err != nil {
			return nil, err
		}
	}

	s.notifier.NotifyUsers([]uint{msg.SenderID}, EventMessageStatus, payload{
		"message_id": strconv.FormatInt(msg.ID, 10),
		"group_id":   msg.GroupID,
		"user_id":    me,
		"status":     target,
		"at":         now,
	})
	return msg, nil
}

// stamp sets the delivery timestamps for target and reports whether anything
// changed.
func stamp(delivered, read **time.Time, target models.DeliveryStatus, at time.Time) bool {
	changed := false
	if *delivered == nil {
		*delivered = &at
		changed = true
	}
	if target == models.DeliveryRead && *read == nil {
		*read = &at
		changed = true
	}
	return changed
}

func statusFrom(delivered, read *time.Time) models.DeliveryStatus {
	switch {
	case read != nil:
		return models.DeliveryRead
	case delivered != nil:
		return models.DeliveryDelivered
	}
	return models.DeliverySent
}

// rollUpGroupStatus advances a group message once every receipt has caught up.
func (s *MessageService) rollUpGroupStatus(ctx context.Context, msg *models.Message, now time.Time) error {
	undelivered, err := s.messages.CountPendingReceipts(ctx, msg.ID, "delivered_at")
	if err != nil {
		return upstream(err)
	}
	unread, err := s.messages.CountPendingReceipts(ctx, msg.ID, "read_at")
	if err != nil {
		return upstream(err)
	}

	next := msg.Status
	switch {
	case unread == 0:
		next = models.DeliveryRead
	case undelivered == 0:
		next = models.DeliveryDelivered
	}
	if next == msg.Status {
		return nil
	}
	msg.Status = next
	if msg.DeliveredAt == nil {
		msg.DeliveredAt = &now
	}
	if next == models.DeliveryRead {
		msg.ReadAt = &now
	}
	msg.UpdatedAt = now
	return upstream(s.messages.Update(ctx, msg))
}

// UploadMedia stores a chat attachment and reports the message type it maps to.
func (s *MessageService) UploadMedia(ctx context.Context, file *FileUpload) (*UploadedMedia, error) {
	obj, err := uploadFile(ctx, s.media, file, messageMediaDir)
	if err != nil {
		return nil, err
	}
	return &UploadedMedia{URL: obj.URL, PublicID: obj.PublicID, MsgType: msgTypeFor(file.MIMEType)}, nil
}

func msgTypeFor(mimeType string) models.MsgType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.MsgImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.MsgVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.MsgAudio
	}
	return models.MsgFile
}

// memberIDs returns the group's members after checking that userID is one.
func (s *MessageService) memberIDs(ctx context.Context, groupID, userID uint) ([]uint, error) {
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return nil, lookup(err, ErrGroupNotFound)
	}
	members, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return nil, upstream(err)
	}
	if !slices.Contains(members, userID) {
		return nil, ErrNotMember
	}
	return members, nil
}

// participants lists who should hear about a change to msg, minus skip.
func (s *MessageService) participants(ctx context.Context, msg *models.Message, skip uint) []uint {
	var ids []uint
	if msg.GroupID != nil {
		members, err := s.groups.MemberIDs(ctx, *msg.GroupID)
		if err != nil {
			s.log.WarnContext(ctx, "load group members for notification", zap.Error(err))
			return nil
		}
		ids = members
	} else {
		ids = []uint{msg.SenderID}
		if msg.RecipientID != nil {
			ids = append(ids, *msg.RecipientID)
		}
	}
	return without(ids, skip)
}

func redact(msgs []models.Message) []models.Message {
	for i := range msgs {
		if msgs[i].IsDeleted {
			msgs[i].Content = ""
			msgs[i].MediaURL = ""
			msgs[i].Reactions = datatypes.JSONSlice[models.Reaction]{}
		}
	}
	return msgs
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}

func without(ids []uint, skip uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
