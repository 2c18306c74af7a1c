package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
)

// MessageRepository 消息仓储
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓储实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores a message together with the per-member receipts of a group
// message.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message, receipts []models.MessageReceipt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		if len(receipts) == 0 {
			return nil
		}
		return tx.Create(&receipts).Error
	})
}

// GetByID 根据ID获取消息
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// ListDirect returns the conversation between a and b, newest first. A
// positive before restricts the page to ids below it.
func (r *MessageRepository) ListDirect(ctx context.Context, a, b uint, before int64, limit int) ([]models.Message, error) {
	q := r.db.WithContext(ctx).
		Where("group_id IS NULL").
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", a, b, b, a)
	if before > 0 {
		q = q.Where("id < ?", before)
	}

	var messages []models.Message
	err := q.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// ListGroup 获取群组消息列表
func (r *MessageRepository) ListGroup(ctx context.Context, groupID uint, before int64, limit int) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if before > 0 {
		q = q.Where("id < ?", before)
	}

	var messages []models.Message
	err := q.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// Update 保存消息
func (r *MessageRepository) Update(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Save(message).Error
}

// GetReceipt 获取群消息回执
func (r *MessageRepository) GetReceipt(ctx context.Context, messageID int64, userID uint) (*models.MessageReceipt, error) {
	var receipt models.MessageReceipt
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&receipt).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *MessageRepository) UpdateReceipt(ctx context.Context, receipt *models.MessageReceipt) error {
	return r.db.WithContext(ctx).Save(receipt).Error
}

// CountPendingReceipts counts group receipts of a message still missing the
// given timestamp column ("delivered_at" or "read_at").
func (r *MessageRepository) CountPendingReceipts(ctx context.Context, messageID int64, column string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.MessageReceipt{}).
		Where("message_id = ?", messageID).
		Where(column + " IS NULL").
		Count(&n).Error
	return n, err
}
