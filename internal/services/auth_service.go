package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/repositories"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/utils"
	"github.com/DarshiBhavsar/chat-app-sub000/middleware/jwt"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
)

// AuthService 认证服务
type AuthService struct {
	users  *repositories.UserRepository
	tokens *jwt.TokenManager
	log    *logger.Logger
	now    func() time.Time
}

// NewAuthService 创建认证服务实例
func NewAuthService(users *repositories.UserRepository, tokens *jwt.TokenManager, log *logger.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, log: log, now: time.Now}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	UserName string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest 登录请求. Identifier is a username or an email address.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UserDTO is the caller's own account, which unlike PublicUser carries the email.
type UserDTO struct {
	models.PublicUser
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	Token string   `json:"token"`
	User  *UserDTO `json:"user"`
}

func toDTO(u *models.User) *UserDTO {
	return &UserDTO{PublicUser: u.Public(), Email: u.Email, CreatedAt: u.CreatedAt}
}

// Register 注册用户
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	username := strings.TrimSpace(req.UserName)
	email := utils.NormalizeEmail(req.Email)
	if !utils.ValidateUserName(username) {
		return nil, apperr.Validation("username must be 3-20 letters, digits or underscores")
	}
	if !utils.ValidateEmail(email) {
		return nil, apperr.Validation("invalid email format")
	}
	if !utils.ValidatePassword(req.Password) {
		return nil, apperr.Validation("password must be 8-72 characters")
	}

	taken, err := s.users.ExistsByUserName(ctx, username)
	if err != nil {
		return nil, upstream(err)
	}
	if taken {
		return nil, ErrUserNameTaken
	}
	taken, err = s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, upstream(err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Upstream("failed to hash password", err)
	}
	user := &models.User{UserName: username, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("username or email already exists")
		}
		return nil, upstream(err)
	}

	return s.issue(user)
}

// Login 登录用户
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	id := strings.TrimSpace(req.Identifier)
	var (
		user *models.User
		err  error
	)
	if strings.Contains(id, "@") {
		user, err = s.users.GetByEmail(ctx, utils.NormalizeEmail(id))
	} else {
		user, err = s.users.GetByUserName(ctx, id)
	}
	if err != nil {
		return nil, lookup(err, ErrInvalidCredential)
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredential
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*AuthResponse, error) {
	token, err := s.tokens.GenerateToken(user.ID, user.UserName, user.Email)
	if err != nil {
		return nil, apperr.Upstream("failed to issue token", err)
	}
	return &AuthResponse{Token: token, User: toDTO(user)}, nil
}

// Me 当前用户信息
func (s *AuthService) Me(ctx context.Context, userID uint) (*UserDTO, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, lookup(err, ErrUserNotFound)
	}
	return toDTO(user), nil
}

// Logout 登出用户. Tokens are stateless, so only presence changes.
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	if err := s.users.SetPresence(ctx, userID, false, s.now()); err != nil {
		s.log.WarnContext(ctx, "failed to persist logout presence",
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
	}
	return nil
}

// ChangePassword 修改密码
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) error {
	if !utils.ValidatePassword(req.NewPassword) {
		return apperr.Validation("password must be 8-72 characters")
	}
	user, err := s.users.GetWithSecrets(ctx, userID)
	if err != nil {
		return lookup(err, ErrUserNotFound)
	}
	if !utils.CheckPassword(user.PasswordHash, req.OldPassword) {
		return ErrInvalidCredential
	}
	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return apperr.Upstream("failed to hash password", err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return upstream(err)
	}
	return nil
}
