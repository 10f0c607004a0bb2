// Package client implements the messaging API client and its session
// manager: it holds the access/refresh token pair, attaches the bearer
// token to every request, transparently refreshes on 401 with a single
// retry, and proactively refreshes before the access token expires.
package client

import "time"

// User mirrors the server's user payload. The password hash is never
// part of any payload.
type User struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID          uint       `json:"id"`
	SenderID    uint       `json:"senderId"`
	RecipientID uint       `json:"recipientId"`
	Body        string     `json:"body"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReadAt      *time.Time `json:"readAt"`
	DeletedAt   *time.Time `json:"deletedAt"`
	Sender      User       `json:"sender"`
	Recipient   User       `json:"recipient"`
}

// Conversation is one inbox entry: the counterpart, the most recent
// message and the number of unread messages addressed to the viewer.
type Conversation struct {
	User          User      `json:"user"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

// ProfileUpdate is a partial profile change; nil fields are left as-is.
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// Session is the durable client-side session state.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user,omitempty"`
}
