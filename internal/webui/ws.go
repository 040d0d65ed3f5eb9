package webui

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsClient is one connected browser. gorilla/websocket allows only a single
// concurrent writer per connection, so every write goes through writeMu:
// broadcasts arrive from the agent's notifier goroutine while pong replies
// come from the handler's read loop.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks browser websocket connections and pushes live agent status.
type Hub struct {
	clients    map[*wsClient]bool
	clientsMux sync.RWMutex
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]bool)}
}

// WsMessage is the envelope pushed to browsers.
type WsMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // UI is served from the same process
	},
}

func (h *Hub) addClient(client *wsClient) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	h.clients[client] = true
}

func (h *Hub) removeClient(client *wsClient) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	delete(h.clients, client)
}

// ClientCount returns the number of connected browsers.
func (h *Hub) ClientCount() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

// Broadcast pushes a message to every connected browser. Dead connections
// are dropped on write failure.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	payload, err := json.Marshal(WsMessage{Type: msgType, Timestamp: time.Now(), Data: data})
	if err != nil {
		return
	}
	for client := range h.clients {
		if err := client.write(payload); err != nil {
			go func(c *wsClient) {
				h.removeClient(c)
				c.conn.Close()
			}(client)
		}
	}
}

// handleWebSocket upgrades the connection and keeps it alive, answering
// ping frames from the page's keepalive timer.
func (h *Hub) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "websocket upgrade failed"})
		return
	}
	client := &wsClient{conn: conn}
	defer func() {
		h.removeClient(client)
		conn.Close()
	}()

	h.addClient(client)
	log.Printf("websocket client connected, total clients: %d", h.ClientCount())

	connected := WsMessage{Type: "connected", Timestamp: time.Now(), Data: map[string]string{"message": "connected"}}
	if data, err := json.Marshal(connected); err == nil {
		if err := client.write(data); err != nil {
			return
		}
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var clientMsg map[string]interface{}
		if json.Unmarshal(message, &clientMsg) == nil {
			if msgType, ok := clientMsg["type"].(string); ok && msgType == "ping" {
				pong := WsMessage{Type: "pong", Timestamp: time.Now()}
				if data, err := json.Marshal(pong); err == nil {
					if err := client.write(data); err != nil {
						return
					}
				}
			}
		}
	}

	log.Printf("websocket client disconnected, remaining clients: %d", h.ClientCount())
}
