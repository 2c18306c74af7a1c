package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/repositories"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/media"
)

const (
	maxGroupNameLength = 100
	maxGroupDescLength = 500
	groupMediaFolder   = "groups"
)

// GroupService 群组服务. The creator is the only admin and the only one who
// may change the group.
type GroupService struct {
	groups   *repositories.GroupRepository
	users    *repositories.UserRepository
	media    MediaStore
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

func NewGroupService(
	groups *repositories.GroupRepository,
	users *repositories.UserRepository,
	store MediaStore,
	notifier Notifier,
	log *logger.Logger,
) *GroupService {
	return &GroupService{groups: groups, users: users, media: store, notifier: notifier, log: log, now: time.Now}
}

// CreateGroupRequest 创建群组请求
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	MemberIDs   []uint `json:"member_ids"`
}

// GroupUpdate is a partial update; nil fields are left alone.
type GroupUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type AddMembersRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required"`
}

type GroupDetail struct {
	models.Group
	Members []models.PublicUser `json:"members"`
}

// Create 创建群组
func (s *GroupService) Create(ctx context.Context, adminID uint, req *CreateGroupRequest) (*GroupDetail, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len([]rune(name)) > maxGroupNameLength {
		return nil, apperr.Validation("group name must be 1-100 characters")
	}
	if len([]rune(req.Description)) > maxGroupDescLength {
		return nil, apperr.Validation("group description is too long")
	}
	memberIDs := without(dedupe(req.MemberIDs), adminID)
	if err := s.requireUsers(ctx, memberIDs); err != nil {
		return nil, err
	}

	now := s.now()
	group := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		AdminID:     adminID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.groups.Create(ctx, group, memberIDs); err != nil {
		return nil, upstream(err)
	}

	detail, err := s.detail(ctx, group)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyUsers(memberIDsOf(detail), EventGroupCreated, payload{"group": detail})
	return detail, nil
}

// List 获取用户所在的群组
func (s *GroupService) List(ctx context.Context, me uint) ([]models.Group, error) {
	groups, err := s.groups.ListByUser(ctx, me)
	if err != nil {
		return nil, upstream(err)
	}
	return groups, nil
}

// Get 获取群组详情 (members only)
func (s *GroupService) Get(ctx context.Context, me, groupID uint) (*GroupDetail, error) {
	group, err := s.memberGroup(ctx, me, groupID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, group)
}

// Update 修改群名称或简介 (admin only)
func (s *GroupService) Update(ctx context.Context, me, groupID uint, upd *GroupUpdate) (*models.Group, error) {
	if upd.Name == nil && upd.Description == nil {
		return nil, ErrEmptyUpdate
	}
	group, err := s.adminGroup(ctx, me, groupID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" || len([]rune(name)) > maxGroupNameLength {
			return nil, apperr.Validation("group name must be 1-100 characters")
		}
		group.Name = name
	}
	if upd.Description != nil {
		if len([]rune(*upd.Description)) > maxGroupDescLength {
			return nil, apperr.Validation("group description is too long")
		}
		group.Description = strings.TrimSpace(*upd.Description)
	}
	group.UpdatedAt = s.now()
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, upstream(err)
	}

	s.notifyMembers(ctx, group.ID, EventGroupUpdated, payload{"group": group})
	return group, nil
}

// UpdatePicture 更新群头像. The previous picture is released best effort.
func (s *GroupService) UpdatePicture(ctx context.Context, me, groupID uint, file *FileUpload) (*models.Group, error) {
	if !file.isImage() {
		return nil, apperr.Validation("group picture must be an image")
	}
	group, err := s.adminGroup(ctx, me, groupID)
	if err != nil {
		return nil, err
	}

	obj, err := uploadFile(ctx, s.media, file, groupMediaFolder)
	if err != nil {
		return nil, err
	}
	oldID := group.PicturePublicID
	group.PictureURL, group.PicturePublicID = obj.URL, obj.PublicID
	group.UpdatedAt = s.now()
	if err := s.groups.Update(ctx, group); err != nil {
		releaseMedia(ctx, s.log, s.media, obj.PublicID, media.ResourceImage)
		return nil, upstream(err)
	}
	releaseMedia(ctx, s.log, s.media, oldID, media.ResourceImage)

	s.notifyMembers(ctx, group.ID, EventGroupPictureUpdated, payload{
		"group_id":    group.ID,
		"picture_url": group.PictureURL,
	})
	return group, nil
}

// AddMembers 添加成员 (admin only). Any id that is already a member fails
// the whole request.
func (s *GroupService) AddMembers(ctx context.Context, me, groupID uint, userIDs []uint) (*GroupDetail, error) {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil, apperr.Validation("user_ids is required")
	}
	group, err := s.adminGroup(ctx, me, groupID)
	if err != nil {
		return nil, err
	}
	current, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return nil, upstream(err)
	}
	for _, id := range userIDs {
		if slices.Contains(current, id) {
			return nil, ErrAlreadyMember
		}
	}
	if err := s.requireUsers(ctx, userIDs); err != nil {
		return nil, err
	}

	if err := s.groups.AddMembers(ctx, groupID, userIDs, s.now()); err != nil {
		return nil, upstream(err)
	}
	detail, err := s.detail(ctx, group)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyUsers(memberIDsOf(detail), EventGroupMemberAdded, payload{
		"group":    detail,
		"user_ids": userIDs,
	})
	return detail, nil
}

// RemoveMember 移除成员 (admin only). The admin cannot be removed.
func (s *GroupService) RemoveMember(ctx context.Context, me, groupID, userID uint) error {
	group, err := s.adminGroup(ctx, me, groupID)
	if err != nil {
		return err
	}
	if userID == group.AdminID {
		return apperr.Validation("the admin cannot be removed from the group")
	}
	return s.removeMember(ctx, groupID, userID)
}

// Leave 退出群组. The admin has to delete the group instead.
func (s *GroupService) Leave(ctx context.Context, me, groupID uint) error {
	group, err := s.memberGroup(ctx, me, groupID)
	if err != nil {
		return err
	}
	if group.IsAdmin(me) {
		return apperr.Validation("the admin cannot leave; delete the group instead")
	}
	return s.removeMember(ctx, groupID, me)
}

func (s *GroupService) removeMember(ctx context.Context, groupID, userID uint) error {
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return lookup(err, ErrNotGroupMember)
	}
	remaining, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		remaining = nil
	}
	s.notifier.NotifyUsers(append(remaining, userID), EventGroupMemberRemoved, payload{
		"group_id": groupID,
		"user_id":  userID,
	})
	return nil
}

// Delete 解散群组 (admin only)
func (s *GroupService) Delete(ctx context.Context, me, groupID uint) error {
	group, err := s.adminGroup(ctx, me, groupID)
	if err != nil {
		return err
	}
	members, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return upstream(err)
	}
	if err := s.groups.Delete(ctx, groupID); err != nil {
		return upstream(err)
	}
	releaseMedia(ctx, s.log, s.media, group.PicturePublicID, media.ResourceImage)

	s.notifier.NotifyUsers(members, EventGroupDeleted, payload{"group_id": groupID})
	return nil
}

// MemberIDs serves the socket layer's group routing.
func (s *GroupService) MemberIDs(ctx context.Context, groupID uint) ([]uint, error) {
	return s.groups.MemberIDs(ctx, groupID)
}

func (s *GroupService) memberGroup(ctx context.Context, me, groupID uint) (*models.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, lookup(err, ErrGroupNotFound)
	}
	ok, err := s.groups.IsMember(ctx, groupID, me)
	if err != nil {
		return nil, upstream(err)
	}
	if !ok {
		return nil, ErrNotMember
	}
	return group, nil
}

func (s *GroupService) adminGroup(ctx context.Context, me, groupID uint) (*models.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, lookup(err, ErrGroupNotFound)
	}
	if !group.IsAdmin(me) {
		return nil, ErrNotAdmin
	}
	return group, nil
}

func (s *GroupService) detail(ctx context.Context, group *models.Group) (*GroupDetail, error) {
	members, err := s.groups.Members(ctx, group.ID)
	if err != nil {
		return nil, upstream(err)
	}
	d := &GroupDetail{Group: *group, Members: make([]models.PublicUser, 0, len(members))}
	for _, m := range members {
		if m.User != nil {
			d.Members = append(d.Members, m.User.Public())
		}
	}
	return d, nil
}

func (s *GroupService) requireUsers(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return upstream(err)
	}
	if len(users) != len(ids) {
		return apperr.NotFound("some users do not exist")
	}
	return nil
}

func (s *GroupService) notifyMembers(ctx context.Context, groupID uint, event string, body any) {
	members, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return
	}
	s.notifier.NotifyUsers(members, event, body)
}

func memberIDsOf(d *GroupDetail) []uint {
	ids := make([]uint, len(d.Members))
	for i, m := range d.Members {
		ids[i] = m.ID
	}
	return ids
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
