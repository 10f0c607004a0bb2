package notify

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/stef44n/messaging-app/internal/metrics"
)

// Hub 按用户管理通知子 Hub，懒加载且并发安全。
// 推送只是提醒客户端重新拉取收件箱，不承载消息本体，
// 已读回执仍然只由 REST 的会话读取产生。
type Hub struct {
	mu    sync.RWMutex
	users map[uint]*userHub
}

func NewHub() *Hub { return &Hub{users: make(map[uint]*userHub)} }

func (h *Hub) getUser(userID uint) *userHub {
	h.mu.RLock()
	uh := h.users[userID]
	h.mu.RUnlock()
	if uh != nil {
		return uh
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	uh = h.users[userID]
	if uh != nil {
		return uh
	}
	uh = newUserHub(userID)
	h.users[userID] = uh
	go uh.run()
	return uh
}

// NotifyMessage 向收件人所有在线连接推送一条新消息提示。
// 没有在线连接时直接丢弃。
func (h *Hub) NotifyMessage(recipientID, senderID uint) {
	h.mu.RLock()
	uh := h.users[recipientID]
	h.mu.RUnlock()
	if uh == nil {
		return
	}
	evt := map[string]interface{}{"type": "message", "from": senderID}
	if b, err := json.Marshal(evt); err == nil {
		select {
		case uh.notify <- b:
		default:
		}
	}
}

// Online 返回某用户当前打开的通知连接数。
func (h *Hub) Online(userID uint) int {
	h.mu.RLock()
	uh := h.users[userID]
	h.mu.RUnlock()
	if uh == nil {
		return 0
	}
	return uh.Online()
}

type userHub struct {
	userID     uint
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	notify     chan []byte
	online     int32
}

func newUserHub(userID uint) *userHub {
	return &userHub{
		userID:     userID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		notify:     make(chan []byte, 64),
	}
}

func (uh *userHub) run() {
	for {
		select {
		case c := <-uh.register:
			uh.clients[c] = true
			atomic.StoreInt32(&uh.online, int32(len(uh.clients)))
			metrics.NotifyConnections.Inc()
		case c := <-uh.unregister:
			if _, ok := uh.clients[c]; ok {
				delete(uh.clients, c)
				close(c.send)
				atomic.StoreInt32(&uh.online, int32(len(uh.clients)))
				metrics.NotifyConnections.Dec()
			}
		case msg := <-uh.notify:
			for c := range uh.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(uh.clients, c)
					atomic.StoreInt32(&uh.online, int32(len(uh.clients)))
					metrics.NotifyConnections.Dec()
				}
			}
		}
	}
}

// Online 返回当前连接数，供 Hub 复用。
func (uh *userHub) Online() int { return int(atomic.LoadInt32(&uh.online)) }
