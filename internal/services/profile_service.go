package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/repositories"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/utils"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/media"
)

const (
	maxBioLength       = 500
	profileMediaFolder = "avatars"
)

// ProfileService 个人资料服务
type ProfileService struct {
	users     *repositories.UserRepository
	relations *repositories.RelationRepository
	media     MediaStore
	notifier  Notifier
	log       *logger.Logger
	now       func() time.Time
}

func NewProfileService(
	users *repositories.UserRepository,
	relations *repositories.RelationRepository,
	store MediaStore,
	notifier Notifier,
	log *logger.Logger,
) *ProfileService {
	return &ProfileService{users: users, relations: relations, media: store, notifier: notifier, log: log, now: time.Now}
}

// ProfileUpdate has one optional field per attribute a user may change.
type ProfileUpdate struct {
	UserName *string `json:"username"`
	Bio      *string `json:"bio"`
}

// Empty reports whether no field is set.
func (u *ProfileUpdate) Empty() bool {
	return u.UserName == nil && u.Bio == nil
}

// Apply validates the set fields and copies them onto user.
func (u *ProfileUpdate) Apply(user *models.User) error {
	if u.Empty() {
		return ErrEmptyUpdate
	}
	if u.UserName != nil {
		name := strings.TrimSpace(*u.UserName)
		if !utils.ValidateUserName(name) {
			return apperr.Validation("username must be 3-20 letters, digits or underscores")
		}
		user.UserName = name
	}
	if u.Bio != nil {
		bio := strings.TrimSpace(*u.Bio)
		if len([]rune(bio)) > maxBioLength {
			return apperr.Validation("bio is too long")
		}
		user.Bio = bio
	}
	return nil
}

// Profile is another user's profile as seen by the caller.
type Profile struct {
	models.PublicUser
	Relation string `json:"relation"`
}

// Get 查看用户资料. Users blocked either way look like they do not exist.
func (s *ProfileService) Get(ctx context.Context, me, userID uint) (*Profile, error) {
	sets, err := s.relations.Sets(ctx, me)
	if err != nil {
		return nil, upstream(err)
	}
	if userID != me && sets.IsBlockedEitherWay(userID) {
		return nil, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, lookup(err, ErrUserNotFound)
	}
	relation := "self"
	if userID != me {
		relation = sets.RelationTo(userID)
	}
	return &Profile{PublicUser: user.Public(), Relation: relation}, nil
}

// Update 修改资料
func (s *ProfileService) Update(ctx context.Context, me uint, upd *ProfileUpdate) (*models.PublicUser, error) {
	if upd.Empty() {
		return nil, ErrEmptyUpdate
	}
	user, err := s.users.GetWithSecrets(ctx, me)
	if err != nil {
		return nil, lookup(err, ErrUserNotFound)
	}
	if upd.UserName != nil && strings.TrimSpace(*upd.UserName) != user.UserName {
		taken, err := s.users.ExistsByUserName(ctx, strings.TrimSpace(*upd.UserName))
		if err != nil {
			return nil, upstream(err)
		}
		if taken {
			return nil, ErrUserNameTaken
		}
	}
	if err := upd.Apply(user); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserNameTaken
		}
		return nil, upstream(err)
	}

	pub := user.Public()
	s.notifier.NotifyUsers(s.friendsOf(ctx, me), EventUserProfileUpdated, payload{"user": pub})
	return &pub, nil
}

// UploadPicture 上传头像. The previous avatar is released best effort.
func (s *ProfileService) UploadPicture(ctx context.Context, me uint, file *FileUpload) (*models.PublicUser, error) {
	if !file.isImage() {
		return nil, apperr.Validation("profile picture must be an image")
	}
	user, err := s.users.GetWithSecrets(ctx, me)
	if err != nil {
		return nil, lookup(err, ErrUserNotFound)
	}

	obj, err := uploadFile(ctx, s.media, file, profileMediaFolder)
	if err != nil {
		return nil, err
	}
	oldID := user.AvatarPublicID
	user.AvatarURL, user.AvatarPublicID = obj.URL, obj.PublicID
	if err := s.users.Update(ctx, user); err != nil {
		releaseMedia(ctx, s.log, s.media, obj.PublicID, media.ResourceImage)
		return nil, upstream(err)
	}
	releaseMedia(ctx, s.log, s.media, oldID, media.ResourceImage)

	s.notifyPicture(ctx, user)
	pub := user.Public()
	return &pub, nil
}

// RemovePicture 删除头像
func (s *ProfileService) RemovePicture(ctx context.Context, me uint) (*models.PublicUser, error) {
	user, err := s.users.GetWithSecrets(ctx, me)
	if err != nil {
		return nil, lookup(err, ErrUserNotFound)
	}
	if user.AvatarURL == "" {
		pub := user.Public()
		return &pub, nil
	}

	oldID := user.AvatarPublicID
	user.AvatarURL, user.AvatarPublicID = "", ""
	if err := s.users.Update(ctx, user); err != nil {
		return nil, upstream(err)
	}
	releaseMedia(ctx, s.log, s.media, oldID, media.ResourceImage)

	s.notifyPicture(ctx, user)
	pub := user.Public()
	return &pub, nil
}

func (s *ProfileService) notifyPicture(ctx context.Context, user *models.User) {
	s.notifier.NotifyUsers(s.friendsOf(ctx, user.ID), EventProfilePictureUpdated, payload{
		"user_id":    user.ID,
		"avatar_url": user.AvatarURL,
	})
}

func (s *ProfileService) friendsOf(ctx context.Context, userID uint) []uint {
	sets, err := s.relations.Sets(ctx, userID)
	if err != nil {
		return nil
	}
	return keys(sets.Friends)
}
