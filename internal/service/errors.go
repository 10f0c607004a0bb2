package service

import "errors"

// 业务层通用错误，handler 据此映射 HTTP 状态码。
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already in use")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrEmptyBody          = errors.New("message body cannot be empty")
)

// ValidationError 携带可直接返回给客户端的校验失败说明。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }
