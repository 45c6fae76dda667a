package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heartlink-backend/internal/service/signaling"
	"heartlink-backend/pkg/constants"
	"heartlink-backend/pkg/jwt"
	"heartlink-backend/pkg/logger"
)

// SignalingHub owns the live WebSocket connections and delivers outbound
// envelopes on behalf of the signaling service. It implements
// signaling.Sender.
type SignalingHub struct {
	// Registered clients keyed by connection ID
	clients map[string]*SignalingClient

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Channels
	register   chan *SignalingClient
	unregister chan *SignalingClient

	// Protocol service, bound after construction
	svc *signaling.Service

	jwtManager *jwt.JWTManager

	// Concurrency limit: maxConnections is the maximum number of concurrent WebSocket connections
	maxConnections int
	// Semaphore for limiting concurrent connections
	semaphore chan struct{}
}

// SignalingClient represents a WebSocket client for signaling
type SignalingClient struct {
	hub          *SignalingHub
	conn         *websocket.Conn
	send         chan []byte
	connectionID string
	userID       uuid.UUID
	ctx          context.Context
	cancel       context.CancelFunc
}

var signalingUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Reject empty origins - require explicit origin for security
			return false
		}

		// Check if origin is in allowed list
		allowedOrigins := GetAllowedOrigins()
		for allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}
		return false
	},
}

// GetAllowedOrigins returns allowed WebSocket origins from environment or defaults
func GetAllowedOrigins() map[string]bool {
	allowedOrigins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:8080": true,
	}

	// Add production origins from environment if set
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		// Parse comma-separated origins
		for _, origin := range strings.Split(origins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	return allowedOrigins
}

// NewSignalingHub creates a new signaling hub
func NewSignalingHub(jwtManager *jwt.JWTManager) *SignalingHub {
	// Default max connections: 10000 (configurable via environment if needed)
	maxConns := 10000
	if val := os.Getenv("WS_MAX_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			maxConns = n
		}
	}

	hub := &SignalingHub{
		clients:        make(map[string]*SignalingClient),
		register:       make(chan *SignalingClient),
		unregister:     make(chan *SignalingClient),
		jwtManager:     jwtManager,
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
	}

	go hub.run()

	return hub
}

// Bind attaches the protocol service. Must be called before ServeWS;
// the hub and service reference each other so neither constructor can
// take the other.
func (h *SignalingHub) Bind(svc *signaling.Service) {
	h.svc = svc
}

// run handles hub operations
func (h *SignalingHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connectionID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.connectionID]; ok && current == client {
				delete(h.clients, client.connectionID)
				close(client.send)
				client.cancel()
			}
			h.mu.Unlock()
		}
	}
}

// Send delivers one envelope to a connection. Returns an error when the
// connection is gone or its send buffer is full.
func (h *SignalingHub) Send(connectionID, event string, data interface{}) error {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s not registered", connectionID)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	message, err := json.Marshal(signaling.Envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	select {
	case client.send <- message:
		return nil
	default:
		return fmt.Errorf("send buffer full for connection %s", connectionID)
	}
}

// ServeWS handles WebSocket requests for signaling. The token is
// validated before the upgrade; unauthenticated sockets never reach the
// protocol service.
func (h *SignalingHub) ServeWS(c *gin.Context) {
	// Acquire semaphore to limit concurrent connections
	select {
	case h.semaphore <- struct{}{}:
		// Successfully acquired, continue
	default:
		// No available slots, reject connection
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	userID, err := h.authenticate(c)
	if err != nil {
		<-h.semaphore
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Upgrade to WebSocket
	conn, err := signalingUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	// Create cancelable context for this client
	ctx, cancel := context.WithCancel(context.Background())
	client := &SignalingClient{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, 256),
		connectionID: uuid.New().String(),
		userID:       userID,
		ctx:          ctx,
		cancel:       cancel,
	}

	h.register <- client
	h.svc.Connect(ctx, client.connectionID, userID)

	// Start goroutines for read/write
	go client.writePump()
	go client.readPump()
}

// authenticate resolves the caller identity from the token query
// parameter or the Authorization header.
func (h *SignalingHub) authenticate(c *gin.Context) (uuid.UUID, error) {
	tokenString := c.Query("token")
	if tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
	}
	if tokenString == "" {
		return uuid.Nil, fmt.Errorf("missing token")
	}

	claims, err := h.jwtManager.ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}

	return uuid.Parse(claims.UserID)
}

// readPump reads messages from WebSocket and dispatches them to the
// protocol service one at a time, preserving per-connection order.
func (c *SignalingClient) readPump() {
	defer func() {
		c.hub.svc.HandleDisconnect(c.ctx, c.connectionID)
		c.hub.unregister <- c
		c.conn.Close()
		<-c.hub.semaphore
	}()

	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		c.hub.svc.Heartbeat(c.ctx, c.connectionID)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("connection_id", c.connectionID),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		var env signaling.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			logger.Warn("Invalid message format from WebSocket",
				zap.String("connection_id", c.connectionID),
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			continue
		}

		c.hub.svc.HandleEvent(c.ctx, c.connectionID, env)
	}
}

// writePump writes messages to WebSocket
func (c *SignalingClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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
