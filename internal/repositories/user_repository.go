package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
)

const (
	userCacheKeyPrefix = "user:info:" // Redis String, 值是 user JSON
	userCacheTTL       = 1 * time.Hour
)

type UserRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewUserRepository accepts a nil redis client, in which case every read goes
// to the database.
func NewUserRepository(db *gorm.DB, redis *redis.Client) *UserRepository {
	return &UserRepository{db: db, redis: redis}
}

func cacheKey(id uint) string {
	return fmt.Sprintf("%s%d", userCacheKeyPrefix, id)
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID 根据 ID 获取用户 (带缓存)
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, cacheKey(id)).Result()
		if err == nil {
			var user models.User
			if json.Unmarshal([]byte(val), &user) == nil {
				return &user, nil
			}
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}

	// 回填 Redis
	r.fill(ctx, &user)
	return &user, nil
}

// GetWithSecrets skips the cache, which never holds the password hash.
func (r *UserRepository) GetWithSecrets(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUserName 根据用户名获取用户
func (r *UserRepository) GetByUserName(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail 根据邮箱获取用户
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByUserName 检查用户名是否存在
func (r *UserRepository) ExistsByUserName(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// ExistsByEmail 检查邮箱是否存在
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// Update 更新用户 (同时清除缓存)
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return err
	}
	r.evict(ctx, user.ID)
	return nil
}

// SetPresence stores the online flag and last-seen time (同时清除缓存).
func (r *UserRepository) SetPresence(ctx context.Context, id uint, online bool, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]any{"is_online": online, "last_seen": at}).Error
	if err != nil {
		return err
	}
	r.evict(ctx, id)
	return nil
}

// GetByIDs 批量获取用户信息 (带缓存)
func (r *UserRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
	result := make(map[uint]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var missingIDs []uint
	if r.redis != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = cacheKey(id)
		}

		// MGet 一次性获取所有 key
		vals, err := r.redis.MGet(ctx, keys...).Result()
		if err == nil {
			for i, val := range vals {
				if s, ok := val.(string); ok {
					var user models.User
					if json.Unmarshal([]byte(s), &user) == nil {
						result[ids[i]] = &user
						continue
					}
				}
				missingIDs = append(missingIDs, ids[i])
			}
		} else {
			missingIDs = ids // Redis 失败，全部查 DB
		}
	} else {
		missingIDs = ids
	}

	if len(missingIDs) == 0 {
		return result, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", missingIDs).Find(&users).Error; err != nil {
		return result, err
	}

	var pipe redis.Pipeliner
	if r.redis != nil {
		pipe = r.redis.Pipeline()
	}
	for i := range users {
		u := &users[i]
		result[u.ID] = u
		if pipe != nil {
			if data, err := json.Marshal(u); err == nil {
				pipe.Set(ctx, cacheKey(u.ID), data, userCacheTTL)
			}
		}
	}
	if pipe != nil {
		_, _ = pipe.Exec(ctx)
	}
	return result, nil
}

// SearchByUserName matches a username prefix, case-insensitively.
func (r *UserRepository) SearchByUserName(ctx context.Context, prefix string, exclude []uint, limit int) ([]models.User, error) {
	pattern := escapeLike(strings.ToLower(prefix)) + "%"
	q := r.db.WithContext(ctx).Where("LOWER(username) LIKE ? ESCAPE '\\'", pattern)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}

	var users []models.User
	err := q.Order("username ASC").Limit(limit).Find(&users).Error
	return users, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *UserRepository) fill(ctx context.Context, user *models.User) {
	if r.redis == nil {
		return
	}
	if data, err := json.Marshal(user); err == nil {
		r.redis.Set(ctx, cacheKey(user.ID), data, userCacheTTL)
	}
}

func (r *UserRepository) evict(ctx context.Context, id uint) {
	if r.redis != nil {
		r.redis.Del(ctx, cacheKey(id))
	}
}
