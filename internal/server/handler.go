package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/stef44n/messaging-app/internal/auth"
	"github.com/stef44n/messaging-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc *service.UserService
	msgSvc  *service.MessageService
}

func NewHandler(userSvc *service.UserService, msgSvc *service.MessageService) *Handler {
	return &Handler{userSvc: userSvc, msgSvc: msgSvc}
}

// Signup 处理注册请求。
func (h *Handler) Signup(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "all fields are required"})
		return
	}

	user, err := h.userSvc.Signup(req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "email already in use"})
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "username already taken"})
		default:
			log.Error().Err(err).Str("email", req.Email).Msg("signup")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
}

// Login 处理登录请求。无论邮箱是否存在都返回同一个 400。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email or password"})
		return
	}

	result, err := h.userSvc.Login(strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email or password"})
			return
		}
		log.Error().Err(err).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Refresh 处理 token 旋转请求。
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.userSvc.Refresh(req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		log.Error().Err(err).Msg("refresh")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Profile 返回当前用户资料。
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.userSvc.Profile(auth.GetUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("get profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile 部分更新当前用户资料。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req service.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	user, err := h.userSvc.UpdateProfile(auth.GetUserID(c), req)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Reason})
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "that username is already taken"})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("update profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully", "user": user})
}

// Inbox 返回按对端聚合的会话摘要列表。
func (h *Handler) Inbox(c *gin.Context) {
	conversations, err := h.msgSvc.Inbox(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("inbox")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch inbox"})
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// Conversation 返回与某个用户的完整会话，并把未读标记为已读。
func (h *Handler) Conversation(c *gin.Context) {
	otherID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	messages, err := h.msgSvc.Conversation(auth.GetUserID(c), otherID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Uint("other_id", otherID).Msg("conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage 发送一条私信。
func (h *Handler) SendMessage(c *gin.Context) {
	recipientID, ok := pathID(c, "recipientId")
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	msg, err := h.msgSvc.Send(auth.GetUserID(c), recipientID, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyBody):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message body cannot be empty"})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
		default:
			log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Uint("recipient_id", recipientID).Msg("send message")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		}
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage 软删除自己发出的消息。
func (h *Handler) DeleteMessage(c *gin.Context) {
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}
	if err := h.msgSvc.Delete(auth.GetUserID(c), messageID); err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete a message"})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		default:
			log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Uint("message_id", messageID).Msg("delete message")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Message deleted"})
}

// SearchUsers 按用户名子串搜索用户。
func (h *Handler) SearchUsers(c *gin.Context) {
	users, err := h.userSvc.Search(c.Query("q"))
	if err != nil {
		log.Error().Err(err).Msg("search users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
