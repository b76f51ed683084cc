package room

import (
	"bytes"
	"encoding/json"
	"expvar"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cloudvars/cloudvars-api/internal/pkg/ratelimit"
	"github.com/cloudvars/cloudvars-api/internal/pkg/response"
	"github.com/cloudvars/cloudvars-api/internal/pkg/validator"
)

// WebSocket constants
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	handshakeWait  = 10 * time.Second
	maxMessageSize = 64 * 1024 // 64KB

	// Matches the handshake validation limit
	maxRoomIDLength = 64

	// A client this far past its rate limit is disconnected
	maxRateViolations = 20
)

// Close codes of the variable protocol
const (
	closeUsernameError = 4002
	closeOverloaded    = 4003
)

var (
	wsConnectionsGauge  = expvar.NewInt("websocket_connections")
	rateLimitedOpsTotal = expvar.NewInt("rate_limited_ops_total")
)

// Client is one websocket connection attached to a room. It implements
// Sender; the room holds it as a non-owning Member reference.
type Client struct {
	id       uuid.UUID
	username string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}

	// Owned by the reader goroutine only
	limiter    *ratelimit.SlidingWindow
	violations int
}

// ID returns the stable connection identity
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Username returns the name the client joined with
func (c *Client) Username() string {
	return c.username
}

// TrySend queues data for delivery without blocking
func (c *Client) TrySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Handler handles the websocket endpoint and the read-only room API
type Handler struct {
	service    *Service
	upgrader   websocket.Upgrader
	rateLimit  int
	rateWindow time.Duration
}

// NewHandler creates a room handler
func NewHandler(service *Service, allowedOrigins []string, rateLimit int, rateWindow time.Duration) *Handler {
	return &Handler{
		service:    service,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// Allow all in development
				if len(allowedOrigins) == 0 {
					return true
				}

				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}

				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// ListRooms handles GET /api/rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	registry := h.service.Registry()

	items := make([]*RoomSummary, 0)
	for _, id := range registry.IDs() {
		rm, err := registry.Get(id)
		if err != nil {
			continue
		}
		items = append(items, &RoomSummary{
			ID:            rm.ID(),
			ClientCount:   rm.ClientCount(),
			VariableCount: len(rm.VariableNames()),
		})
	}

	response.OK(w, items)
}

// GetRoom handles GET /api/rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxRoomIDLength {
		response.BadRequest(w, "Invalid room ID")
		return
	}

	rm, err := h.service.Registry().Get(id)
	if err != nil {
		response.NotFound(w, "Room not found")
		return
	}

	response.OK(w, RoomResponseFromEntity(rm))
}

// WebSocket handles GET /ws. The first client message must be a handshake;
// everything after it is variable operations.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	req, ok := h.readHandshake(conn)
	if !ok {
		conn.Close()
		return
	}

	limiter, err := ratelimit.New(h.rateLimit, h.rateWindow)
	if err != nil {
		log.Error().Err(err).Msg("Rate limiter misconfigured")
		closeWith(conn, closeOverloaded, "server misconfigured")
		conn.Close()
		return
	}

	client := &Client{
		id:       uuid.New(),
		username: req.Username,
		conn:     conn,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		limiter:  limiter,
	}

	rm, err := h.service.Handshake(client, req.RoomID)
	if err != nil {
		closeWith(conn, closeUsernameError, err.Error())
		conn.Close()
		return
	}

	wsConnectionsGauge.Add(1)

	// Queue the current variable state before the pumps start; the send
	// buffer is far larger than the variable ceiling.
	h.service.SyncVariables(rm, client)

	go h.wsWriter(client)
	go h.wsReader(client, rm)
}

// readHandshake reads and validates the first client message
func (h *Handler) readHandshake(conn *websocket.Conn) (*handshakeRequest, bool) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(handshakeWait))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	var msg wsRequest
	if err := json.Unmarshal(data, &msg); err != nil || msg.Method != methodHandshake {
		closeWith(conn, websocket.CloseProtocolError, "handshake expected")
		return nil, false
	}

	req := &handshakeRequest{RoomID: msg.RoomID, Username: msg.Username}
	if errs := validator.Validate(req); errs != nil {
		closeWith(conn, closeUsernameError, "invalid handshake")
		return nil, false
	}

	return req, true
}

func (h *Handler) wsReader(client *Client, rm *Room) {
	defer func() {
		h.service.Leave(rm, client)
		close(client.done)
		client.conn.Close()
		wsConnectionsGauge.Add(-1)
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("username", client.username).Msg("WebSocket read error")
			}
			return
		}

		// A frame may carry several newline-separated messages
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if !h.handleMessage(client, rm, line) {
				return
			}
		}
	}
}

// handleMessage processes one client message; false means disconnect
func (h *Handler) handleMessage(client *Client, rm *Room, data []byte) bool {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		closeWith(client.conn, websocket.CloseProtocolError, "invalid message")
		return false
	}

	switch req.Method {
	case methodCreate, methodSet, methodRename, methodDelete:
		if client.limiter.CheckAndRecord() {
			rateLimitedOpsTotal.Add(1)
			client.violations++
			if client.violations > maxRateViolations {
				log.Warn().
					Str("room_id", rm.ID()).
					Str("username", client.username).
					Msg("Client disconnected for flooding")
				closeWith(client.conn, websocket.ClosePolicyViolation, "rate limit exceeded")
				return false
			}
			return true
		}
		h.handleVariableOp(client, rm, &req)
		return true

	case methodHandshake:
		// Already joined; repeated handshakes are ignored
		return true

	default:
		log.Debug().Str("method", req.Method).Msg("Unknown message method")
		return true
	}
}

func (h *Handler) handleVariableOp(client *Client, rm *Room, req *wsRequest) {
	var err error
	switch req.Method {
	case methodCreate:
		err = h.service.CreateVariable(rm, client, req.Name, string(req.Value))
	case methodSet:
		err = h.service.SetVariable(rm, client, req.Name, string(req.Value))
	case methodRename:
		err = h.service.RenameVariable(rm, client, req.Name, req.NewName)
	case methodDelete:
		err = h.service.DeleteVariable(rm, client, req.Name)
	}

	if err != nil {
		// Precondition violations are the client's problem; drop the
		// operation and keep the connection.
		log.Debug().
			Err(err).
			Str("method", req.Method).
			Str("room_id", rm.ID()).
			Str("name", req.Name).
			Msg("Variable operation rejected")
	}
}

func (h *Handler) wsWriter(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case <-client.done:
			return

		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping for heartbeat
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
