package service

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/stef44n/messaging-app/internal/metrics"
	"github.com/stef44n/messaging-app/internal/models"

	"gorm.io/gorm"
)

// Notifier 在新消息落库后向收件人推送一条提示。
// 推送只是提醒客户端重新拉取，投递尽力而为，不承载消息本体。
type Notifier interface {
	NotifyMessage(recipientID, senderID uint)
}

// MessageService 封装私信发送、会话读取与收件箱聚合。
type MessageService struct {
	db       *gorm.DB
	notifier Notifier
}

func NewMessageService(db *gorm.DB, notifier Notifier) *MessageService {
	return &MessageService{db: db, notifier: notifier}
}

// Send 发送一条私信。正文去除首尾空白后不得为空，收件人必须存在。
func (s *MessageService) Send(senderID, recipientID uint, body string) (*MessageDTO, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	var recipient models.User
	if err := s.db.First(&recipient, recipientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var sender models.User
	if err := s.db.First(&sender, senderID).Error; err != nil {
		return nil, err
	}

	msg := models.Message{SenderID: senderID, RecipientID: recipientID, Body: body}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}

	metrics.MessagesSentTotal.Inc()
	if s.notifier != nil {
		s.notifier.NotifyMessage(recipientID, senderID)
	}

	dto := s.toMessageDTO(msg, map[uint]models.User{senderID: sender, recipientID: recipient})
	return &dto, nil
}

// Inbox 把扁平消息历史聚合成按对端分组的会话摘要。
// 先按 (created_at, id) 显式降序排序，再单趟扫描：每个对端遇到的
// 第一条消息即为摘要；未读数只统计发给 viewer 且未读的消息。
func (s *MessageService) Inbox(viewerID uint) ([]ConversationDTO, error) {
	var msgs []models.Message
	if err := s.db.Where("sender_id = ? OR recipient_id = ?", viewerID, viewerID).Find(&msgs).Error; err != nil {
		return nil, err
	}
	// 不依赖数据库返回顺序
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})

	summaries := make(map[uint]*ConversationDTO)
	order := make([]uint, 0)
	for _, m := range msgs {
		otherID := m.SenderID
		if m.SenderID == viewerID {
			otherID = m.RecipientID
		}
		conv, ok := summaries[otherID]
		if !ok {
			body := m.Body
			if m.DeletedAt != nil {
				body = models.DeletedBody
			}
			conv = &ConversationDTO{LastMessage: body, LastMessageAt: m.CreatedAt}
			summaries[otherID] = conv
			order = append(order, otherID)
		}
		if m.RecipientID == viewerID && m.ReadAt == nil {
			conv.UnreadCount++
		}
	}

	users, err := s.resolveUsers(order)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationDTO, 0, len(order))
	for _, id := range order {
		conv := summaries[id]
		conv.User = toUserRef(users[id])
		out = append(out, *conv)
	}
	return out, nil
}

// Conversation 返回 viewer 与 other 的完整消息记录（升序），
// 并把 other 发给 viewer 的未读消息全部标记为已读。
// 标记是读取自身的副作用，重复执行无额外效果。
func (s *MessageService) Conversation(viewerID, otherID uint) ([]MessageDTO, error) {
	now := time.Now()
	if err := s.db.Model(&models.Message{}).
		Where("sender_id = ? AND recipient_id = ? AND read_at IS NULL", otherID, viewerID).
		Update("read_at", &now).Error; err != nil {
		return nil, err
	}

	var msgs []models.Message
	err := s.db.
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			viewerID, otherID, otherID, viewerID).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	users, err := s.resolveUsers([]uint{viewerID, otherID})
	if err != nil {
		return nil, err
	}

	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.toMessageDTO(m, users))
	}
	return out, nil
}

// Delete 软删除：仅发送者可删，正文覆盖为固定占位并打上删除时间戳。
// 重复删除在可观察效果上幂等。
func (s *MessageService) Delete(viewerID, messageID uint) error {
	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if msg.SenderID != viewerID {
		return ErrForbidden
	}
	if msg.DeletedAt != nil {
		return nil
	}
	now := time.Now()
	return s.db.Model(&msg).Updates(map[string]interface{}{
		"body":       models.DeletedBody,
		"deleted_at": &now,
	}).Error
}

// resolveUsers 批量加载消息涉及的用户。
func (s *MessageService) resolveUsers(ids []uint) (map[uint]models.User, error) {
	users := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	var rows []models.User
	if err := s.db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, u := range rows {
		users[u.ID] = u
	}
	return users, nil
}

func (s *MessageService) toMessageDTO(m models.Message, users map[uint]models.User) MessageDTO {
	return MessageDTO{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
		ReadAt:      m.ReadAt,
		DeletedAt:   m.DeletedAt,
		Sender:      toUserRef(users[m.SenderID]),
		Recipient:   toUserRef(users[m.RecipientID]),
	}
}
