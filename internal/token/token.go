package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

// Service 用同一密钥签发 access/refresh 两种 JWT。
// refresh token 额外携带随机 jti，服务端据此维护旋转/吊销集合。
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewService(secret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

type Pair struct {
	AccessToken      string
	RefreshToken     string
	RefreshID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Issue 为用户签发一对 token。唯一业务 claim 是用户 ID。
func (s *Service) Issue(userID uint) (*Pair, error) {
	now := time.Now()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	at, err := s.sign(userID, now, accessExp, "")
	if err != nil {
		return nil, err
	}

	jti, err := newTokenID()
	if err != nil {
		return nil, err
	}
	rt, err := s.sign(userID, now, refreshExp, jti)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      at,
		RefreshToken:     rt,
		RefreshID:        jti,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) sign(userID uint, now, exp time.Time, jti string) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) parse(tokenStr string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccess 校验 access token。带 jti 的 refresh token 不是访问凭证。
func (s *Service) VerifyAccess(tokenStr string) (uint, error) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return 0, err
	}
	if claims.ID != "" {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

// VerifyRefresh 校验 refresh token，返回用户 ID 与 jti。
func (s *Service) VerifyRefresh(tokenStr string) (uint, string, error) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return 0, "", err
	}
	if claims.ID == "" {
		return 0, "", ErrInvalidToken
	}
	return claims.UserID, claims.ID, nil
}

// AccessTTL 暴露给需要调度刷新的调用方。
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

func newTokenID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
