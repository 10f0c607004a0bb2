package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/stef44n/messaging-app/internal/models"
	"github.com/stef44n/messaging-app/internal/token"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// SaveRefreshToken 登记一枚新签发的 refresh token jti。
func SaveRefreshToken(db *gorm.DB, userID uint, jti string, expiresAt time.Time) error {
	rt := models.RefreshToken{UserID: userID, TokenID: jti, ExpiresAt: expiresAt}
	return db.Create(&rt).Error
}

// ValidateRefreshToken 按 jti 查找未吊销且未过期的记录。
func ValidateRefreshToken(db *gorm.DB, jti string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	err := db.Where("token_id = ? AND revoked_at IS NULL AND expires_at > ?", jti, time.Now()).First(&rt).Error
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken 按 jti 吊销，旋转时调用。
func RevokeRefreshToken(db *gorm.DB, jti string) error {
	now := time.Now()
	return db.Model(&models.RefreshToken{}).Where("token_id = ?", jti).Update("revoked_at", &now).Error
}

// BearerToken 从 Authorization 头提取 bearer token，没有则返回空串。
func BearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}

// Middleware 校验请求携带的 access token：缺失返回 401，
// 无效/过期返回 403，通过后把用户注入 gin context。
func Middleware(tokens *token.Service, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := BearerToken(c.Request)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := tokens.VerifyAccess(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
		c.Set("userID", user.ID)
		c.Set("user", user)
		c.Next()
	}
}

func GetUserID(c *gin.Context) uint {
	if v, ok := c.Get("userID"); ok {
		if id, ok2 := v.(uint); ok2 {
			return id
		}
	}
	return 0
}

func GetUser(c *gin.Context) (models.User, bool) {
	if v, ok := c.Get("user"); ok {
		if u, ok2 := v.(models.User); ok2 {
			return u, true
		}
	}
	return models.User{}, false
}
