package service

import (
	"errors"
	"regexp"
	"strings"

	"github.com/stef44n/messaging-app/internal/auth"
	"github.com/stef44n/messaging-app/internal/models"
	"github.com/stef44n/messaging-app/internal/token"

	"gorm.io/gorm"
)

// UserService 封装账号、会话与资料相关的业务逻辑。
type UserService struct {
	db     *gorm.DB
	tokens *token.Service
}

func NewUserService(db *gorm.DB, tokens *token.Service) *UserService {
	return &UserService{db: db, tokens: tokens}
}

// Signup 创建新用户。邮箱与用户名均唯一，重复时返回对应错误。
func (s *UserService) Signup(username, email, password string) (*UserDTO, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// LoginResult 登录成功后返回的 token 对与用户数据。
type LoginResult struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	User         UserDTO `json:"user"`
}

// Login 校验邮箱密码并签发 token 对。邮箱不存在与密码错误
// 返回同一个错误，避免账号枚举。
func (s *UserService) Login(email, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	if err := auth.SaveRefreshToken(s.db, user.ID, pair.RefreshID, pair.RefreshExpiresAt); err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: toUserDTO(user)}, nil
}

// RefreshResult 旋转后的新 token 对。
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh 验证 refresh token 并旋转：吊销旧 jti、签发并登记新对。
// 已旋转或被吊销的 token 复用一律失败。
func (s *UserService) Refresh(refreshToken string) (*RefreshResult, error) {
	userID, jti, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	var result RefreshResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := auth.ValidateRefreshToken(tx, jti)
		if err != nil {
			return ErrInvalidRefresh
		}
		if rec.UserID != userID {
			return ErrInvalidRefresh
		}
		if err := auth.RevokeRefreshToken(tx, jti); err != nil {
			return err
		}
		pair, err := s.tokens.Issue(userID)
		if err != nil {
			return err
		}
		if err := auth.SaveRefreshToken(tx, userID, pair.RefreshID, pair.RefreshExpiresAt); err != nil {
			return err
		}
		result.AccessToken = pair.AccessToken
		result.RefreshToken = pair.RefreshToken
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Profile 返回用户资料。
func (s *UserService) Profile(userID uint) (*UserDTO, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// ProfileUpdate 部分更新：nil 字段保持原值。
type ProfileUpdate struct {
	Username  *string `json:"username"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
}

var avatarURLPattern = regexp.MustCompile(`(?i)^https?://.+`)

// UpdateProfile 校验并应用资料变更。
// 用户名至少 3 字符，bio 最多 300 字符，头像必须是 http(s) URL。
func (s *UserService) UpdateProfile(userID uint, upd ProfileUpdate) (*UserDTO, error) {
	updates := map[string]interface{}{}

	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if len(name) < 3 {
			return nil, &ValidationError{Field: "username", Reason: "username must be at least 3 characters long"}
		}
		if len(name) > 64 {
			return nil, &ValidationError{Field: "username", Reason: "username must be at most 64 characters long"}
		}
		var count int64
		if err := s.db.Model(&models.User{}).Where("username = ? AND id <> ?", name, userID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrUsernameTaken
		}
		updates["username"] = name
	}
	if upd.Bio != nil {
		bio := strings.TrimSpace(*upd.Bio)
		if len(bio) > 300 {
			return nil, &ValidationError{Field: "bio", Reason: "bio must be at most 300 characters"}
		}
		updates["bio"] = bio
	}
	if upd.AvatarURL != nil {
		u := strings.TrimSpace(*upd.AvatarURL)
		if !avatarURLPattern.MatchString(u) {
			return nil, &ValidationError{Field: "avatarUrl", Reason: "avatar URL must be a valid URL starting with http(s)"}
		}
		updates["avatar_url"] = u
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(updates) > 0 {
		if err := s.db.Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// Search 按用户名大小写不敏感子串匹配，最多返回 10 条。
func (s *UserService) Search(q string) ([]UserRef, error) {
	q = strings.TrimSpace(q)
	out := make([]UserRef, 0)
	if q == "" {
		return out, nil
	}
	var users []models.User
	pattern := "%" + strings.ToLower(q) + "%"
	if err := s.db.Where("LOWER(username) LIKE ?", pattern).Order("username").Limit(10).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out = append(out, toUserRef(u))
	}
	return out, nil
}
