package client

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Profile fetches the logged-in user's profile and refreshes the
// locally held user snapshot.
func (m *Manager) Profile(ctx context.Context) (*User, error) {
	var resp struct {
		User *User `json:"user"`
	}
	if err := m.do(ctx, "GET", "/profile", nil, &resp); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.sess != nil {
		m.sess.User = resp.User
	}
	m.mu.Unlock()
	return resp.User, nil
}

// UpdateProfile applies a partial profile change.
func (m *Manager) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*User, error) {
	var resp struct {
		User *User `json:"user"`
	}
	if err := m.do(ctx, "PUT", "/profile", upd, &resp); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.sess != nil {
		m.sess.User = resp.User
	}
	m.mu.Unlock()
	return resp.User, nil
}

// Inbox returns the viewer's conversation summaries.
func (m *Manager) Inbox(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := m.do(ctx, "GET", "/messages/inbox", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Conversation returns the full thread with one user. Fetching marks
// that user's unread messages to the viewer as read on the server.
func (m *Manager) Conversation(ctx context.Context, userID uint) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := m.do(ctx, "GET", fmt.Sprintf("/messages/%d", userID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage sends a direct message.
func (m *Manager) SendMessage(ctx context.Context, recipientID uint, body string) (*Message, error) {
	var out Message
	err := m.do(ctx, "POST", fmt.Sprintf("/messages/%d", recipientID), map[string]string{"body": body}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage soft-deletes one of the viewer's own messages.
func (m *Manager) DeleteMessage(ctx context.Context, messageID uint) error {
	return m.do(ctx, "DELETE", fmt.Sprintf("/messages/%d", messageID), nil, nil)
}

// SearchUsers looks up users by username substring.
func (m *Manager) SearchUsers(ctx context.Context, q string) ([]User, error) {
	var out []User
	if err := m.do(ctx, "GET", "/users/search?q="+url.QueryEscape(q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch polls the inbox on a fixed interval and hands each successful
// result to fn. Failed polls degrade to "no update"; the loop ends when
// ctx is done or the session expires.
func (m *Manager) Watch(ctx context.Context, every time.Duration, fn func([]Conversation)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			convs, err := m.Inbox(ctx)
			if err != nil {
				if err == ErrSessionExpired || err == ErrNotLoggedIn {
					return
				}
				continue
			}
			fn(convs)
		}
	}
}
