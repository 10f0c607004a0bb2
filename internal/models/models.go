package models

import "time"

// DeletedBody 软删除后持久化的占位正文，原文不可恢复。
const DeletedBody = "This message was deleted"

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"not null"`
	AvatarURL    string `gorm:"size:512"`
	Bio          string `gorm:"size:300"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message 除 ReadAt（一次性置位）与软删除外不可变。
// DeletedAt 置位时正文已被 DeletedBody 覆盖，转换单向不可逆。
type Message struct {
	ID          uint   `gorm:"primaryKey"`
	SenderID    uint   `gorm:"index:idx_msg_sender;not null"`
	RecipientID uint   `gorm:"index:idx_msg_recipient;not null"`
	Body        string `gorm:"type:text;not null"`
	CreatedAt   time.Time
	ReadAt      *time.Time
	DeletedAt   *time.Time
}

// RefreshToken 记录已签发 refresh token 的 jti，支持旋转与吊销。
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	TokenID   string    `gorm:"uniqueIndex;size:128;not null"`
	UserID    uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
