package service

import (
	"time"

	"github.com/stef44n/messaging-app/internal/models"
)

// UserDTO 是对外输出的用户数据，永远不含密码哈希。
type UserDTO struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserRef 是嵌入消息/会话里的用户快照。
type UserRef struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type MessageDTO struct {
	ID          uint       `json:"id"`
	SenderID    uint       `json:"senderId"`
	RecipientID uint       `json:"recipientId"`
	Body        string     `json:"body"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReadAt      *time.Time `json:"readAt"`
	DeletedAt   *time.Time `json:"deletedAt"`
	Sender      UserRef    `json:"sender"`
	Recipient   UserRef    `json:"recipient"`
}

// ConversationDTO 按对端聚合出的会话摘要，不落库，每次查询现算。
type ConversationDTO struct {
	User          UserRef   `json:"user"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

func toUserDTO(u models.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toUserRef(u models.User) UserRef {
	return UserRef{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}
