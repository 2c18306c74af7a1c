package utils

import (
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	userNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	colorPattern    = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// HashPassword 使用 bcrypt 对密码进行哈希
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword 验证密码
func CheckPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// ValidateUserName 验证用户名格式（3-20个字符，字母数字下划线）
func ValidateUserName(username string) bool {
	return len(username) >= 3 && len(username) <= 20 && userNamePattern.MatchString(username)
}

// ValidatePassword 验证密码强度（至少8个字符, bcrypt 最多 72 字节）
func ValidatePassword(password string) bool {
	return len(password) >= 8 && len(password) <= 72
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeEmail lower-cases and trims an address before lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateColor accepts #rgb, #rrggbb and #rrggbbaa.
func ValidateColor(color string) bool {
	return colorPattern.MatchString(color)
}
