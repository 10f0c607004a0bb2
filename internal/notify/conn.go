package notify

import (
	"net/http"
	"time"

	"github.com/stef44n/messaging-app/internal/auth"
	"github.com/stef44n/messaging-app/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Client struct {
	hub    *userHub
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 建立一条通知长连接。浏览器的 WebSocket 发不了自定义
// 请求头，所以 token 也接受 query 参数。
func Serve(h *Hub, tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := auth.BearerToken(c.Request)
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := tokens.VerifyAccess(tokenStr)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		uh := h.getUser(userID)
		client := &Client{hub: uh, conn: conn, send: make(chan []byte, 64), userID: userID}
		uh.register <- client

		go client.writePump()
		client.readPump()
	}
}

// readPump 只消费控制帧并感知断开，客户端不上行业务数据。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
