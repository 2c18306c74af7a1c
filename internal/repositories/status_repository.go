package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
)

// StatusRepository 动态仓储. Every read takes now and only returns statuses
// that are active and not yet expired, whether or not the reaper has run.
type StatusRepository struct {
	db *gorm.DB
}

func NewStatusRepository(db *gorm.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

func (r *StatusRepository) live(ctx context.Context, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).Where("is_active = ? AND expires_at > ?", true, now)
}

// Create 创建动态
func (r *StatusRepository) Create(ctx context.Context, status *models.Status) error {
	return r.db.WithContext(ctx).Create(status).Error
}

// GetActive returns gorm.ErrRecordNotFound for missing and expired statuses alike.
func (r *StatusRepository) GetActive(ctx context.Context, id uint, now time.Time) (*models.Status, error) {
	var status models.Status
	if err := r.live(ctx, now).First(&status, id).Error; err != nil {
		return nil, err
	}
	return &status, nil
}

// ListActiveByIDs 批量获取未过期动态
func (r *StatusRepository) ListActiveByIDs(ctx context.Context, ids []uint, now time.Time) ([]models.Status, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var statuses []models.Status
	err := r.live(ctx, now).Where("id IN ?", ids).Find(&statuses).Error
	return statuses, err
}

// ListActiveByUsers returns the live statuses of the given authors, newest first.
func (r *StatusRepository) ListActiveByUsers(ctx context.Context, userIDs []uint, now time.Time) ([]models.Status, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var statuses []models.Status
	err := r.live(ctx, now).
		Where("user_id IN ?", userIDs).
		Order("created_at DESC").
		Order("id DESC").
		Find(&statuses).Error
	return statuses, err
}

// AddView inserts the (status, viewer) pair once. inserted is false when the
// viewer had already seen the status.
func (r *StatusRepository) AddView(ctx context.Context, statusID, userID uint, at time.Time) (inserted bool, err error) {
	view := models.StatusView{StatusID: statusID, UserID: userID, ViewedAt: at}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&view)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountViews 统计浏览次数
func (r *StatusRepository) CountViews(ctx context.Context, statusID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.StatusView{}).Where("status_id = ?", statusID).Count(&n).Error
	return n, err
}

// CountViewsByStatus counts views for many statuses in one query.
func (r *StatusRepository) CountViewsByStatus(ctx context.Context, statusIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(statusIDs))
	if len(statusIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		StatusID uint
		N        int64
	}
	err := r.db.WithContext(ctx).Model(&models.StatusView{}).
		Select("status_id, COUNT(*) AS n").
		Where("status_id IN ?", statusIDs).
		Group("status_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.StatusID] = row.N
	}
	return counts, nil
}

// ViewedSet returns which of statusIDs userID has viewed.
func (r *StatusRepository) ViewedSet(ctx context.Context, userID uint, statusIDs []uint) (map[uint]struct{}, error) {
	viewed := make(map[uint]struct{})
	if len(statusIDs) == 0 {
		return viewed, nil
	}

	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.StatusView{}).
		Where("user_id = ? AND status_id IN ?", userID, statusIDs).
		Pluck("status_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		viewed[id] = struct{}{}
	}
	return viewed, nil
}

// ListViewers 按浏览时间排序
func (r *StatusRepository) ListViewers(ctx context.Context, statusID uint) ([]models.StatusView, error) {
	var views []models.StatusView
	err := r.db.WithContext(ctx).
		Where("status_id = ?", statusID).
		Order("viewed_at ASC").
		Order("id ASC").
		Find(&views).Error
	return views, err
}

// Delete removes the status and its views.
func (r *StatusRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status_id = ?", id).Delete(&models.StatusView{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Status{}, id).Error
	})
}

// DeleteExpired physically removes statuses whose expiry has passed, with
// their views, and returns how many statuses went.
func (r *StatusRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := r.db.Model(&models.Status{}).Select("id").Where("expires_at <= ?", now)
		if err := tx.Where("status_id IN (?)", expired).Delete(&models.StatusView{}).Error; err != nil {
			return err
		}
		res := tx.Where("expires_at <= ?", now).Delete(&models.Status{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}

// ListExpiredWithMedia returns expired statuses that reference stored media,
// so the reaper can release it before the rows go.
func (r *StatusRepository) ListExpiredWithMedia(ctx context.Context, now time.Time) ([]models.Status, error) {
	var statuses []models.Status
	err := r.db.WithContext(ctx).
		Where("expires_at <= ? AND media_public_id <> ''", now).
		Find(&statuses).Error
	return statuses, err
}
