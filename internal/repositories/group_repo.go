package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
)

// GroupRepository 群组仓储
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository 创建群组仓储实例
func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create 创建群组并添加成员
// 开启事务，创建 Group 记录，然后把管理员和 memberIDs 写入 group_members
func (r *GroupRepository) Create(ctx context.Context, group *models.Group, memberIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(group).Error; err != nil {
			return err
		}
		return addMembers(tx, group.ID, append([]uint{group.AdminID}, memberIDs...), group.CreatedAt)
	})
}

// GetByID 根据ID获取群组
func (r *GroupRepository) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// Update 更新群组
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Omit("Members").Save(group).Error
}

// Delete 删除群组及成员关系
func (r *GroupRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, id).Error
	})
}

// ListByUser 获取用户所在的所有群组
func (r *GroupRepository) ListByUser(ctx context.Context, userID uint) ([]models.Group, error) {
	memberOf := r.db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", userID)

	var groups []models.Group
	err := r.db.WithContext(ctx).
		Where("id IN (?)", memberOf).
		Order("updated_at DESC").
		Find(&groups).Error
	return groups, err
}

// MemberIDs 获取群组成员 ID
func (r *GroupRepository) MemberIDs(ctx context.Context, groupID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("joined_at ASC").
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// Members 获取群组成员及用户信息
func (r *GroupRepository) Members(ctx context.Context, groupID uint) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Preload("User").
		Order("joined_at ASC").
		Order("user_id ASC").
		Find(&members).Error
	return members, err
}

// IsMember 检查用户是否为群组成员
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddMembers 添加群组成员
func (r *GroupRepository) AddMembers(ctx context.Context, groupID uint, userIDs []uint, at time.Time) error {
	return addMembers(r.db.WithContext(ctx), groupID, userIDs, at)
}

// RemoveMember returns gorm.ErrRecordNotFound if userID was not a member.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID uint) error {
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Touch bumps updated_at so the group sorts first in member lists.
func (r *GroupRepository) Touch(ctx context.Context, groupID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Group{}).
		Where("id = ?", groupID).
		UpdateColumn("updated_at", at).Error
}

func addMembers(tx *gorm.DB, groupID uint, userIDs []uint, at time.Time) error {
	seen := make(map[uint]struct{}, len(userIDs))
	members := make([]models.GroupMember, 0, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, models.GroupMember{GroupID: groupID, UserID: id, JoinedAt: at})
	}
	if len(members) == 0 {
		return nil
	}
	return tx.Create(&members).Error
}
