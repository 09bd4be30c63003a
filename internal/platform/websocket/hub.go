// Package websocket pushes triage events to dashboards. Clients subscribe to
// topics such as "hospital:<id>" or "government" and receive every event
// published to them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/edtriage/edtriage/internal/platform/auth"
	"github.com/edtriage/edtriage/internal/platform/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// ServerMessage acknowledges a subscription change.
type ServerMessage struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// Authorizer decides whether the connection's caller may join a topic.
type Authorizer func(ctx context.Context, topic string) bool

// TopicAuthorizer lets admins join any topic, government users the
// government and hospital topics, and hospital staff only their own
// hospital's topic.
func TopicAuthorizer(ctx context.Context, topic string) bool {
	if auth.HasRole(ctx, auth.RoleAdmin) {
		return true
	}
	isGov := auth.HasRole(ctx, auth.RoleGovernment)
	if topic == events.GovernmentTopic {
		return isGov
	}
	id, ok := strings.CutPrefix(topic, "hospital:")
	if !ok || id == "" {
		return false
	}
	if isGov {
		return true
	}
	own := auth.HospitalIDFromContext(ctx)
	return own != "" && strings.EqualFold(own, id)
}

// Client is one websocket connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
	ctx    context.Context
}

func newClient(ctx context.Context) *Client {
	return &Client{
		ID:     uuid.New().String(),
		Topics: []string{},
		Send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
	}
}

// Hub tracks clients and their topic subscriptions. It implements
// events.Publisher.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[*Client]struct{} // topic -> subscribers
	all       map[*Client]struct{}
	authorize Authorizer
	logger    zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]map[*Client]struct{}),
		all:       make(map[*Client]struct{}),
		authorize: TopicAuthorizer,
		logger:    logger.With().Str("component", "websocket").Logger(),
	}
}

// SetAuthorizer replaces the topic authorizer.
func (h *Hub) SetAuthorizer(a Authorizer) { h.authorize = a }

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes the client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Subscribe adds the authorized topics and returns the ones refused.
func (h *Hub) Subscribe(client *Client, topics []string) (denied []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		if h.authorize != nil && !h.authorize(client.ctx, topic) {
			denied = append(denied, topic)
			continue
		}
		if _, already := h.clients[topic][client]; already {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
	return denied
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
		h.removeLocked(t, client)
	}
	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := drop[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage applies a subscription change and returns the reply for
// the client, or nil for unknown actions.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) *ServerMessage {
	switch msg.Action {
	case "subscribe":
		denied := h.Subscribe(client, msg.Topics)
		if len(denied) > 0 {
			return &ServerMessage{Type: "denied", Topics: denied}
		}
		return &ServerMessage{Type: "subscribed", Topics: msg.Topics}
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
		return &ServerMessage{Type: "unsubscribed", Topics: msg.Topics}
	}
	return nil
}

func (h *Hub) Broadcast(topic string, evt events.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Msg("send buffer full, dropping event")
		}
	}
}

// Publish broadcasts the event to its topic.
func (h *Hub) Publish(_ context.Context, evt events.Event) error {
	h.Broadcast(evt.Topic, evt)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler builds the upgrade handler. An empty origins list accepts any
// origin.
func NewHandler(hub *Hub, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSpace(o)] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades the connection. Topics listed in the "topics" query
// parameter are subscribed immediately.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	// The request context ends when the handler returns; keep only the
	// identity values the authorizer reads.
	ctx := detach(c.Request().Context())
	client := newClient(ctx)
	wsh.hub.Register(client)
	if q := c.QueryParam("topics"); q != "" {
		if reply := wsh.hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: strings.Split(q, ",")}); reply != nil {
			wsh.reply(client, reply)
		}
	}
	wsh.hub.logger.Debug().Str("client_id", client.ID).Str("user_id", auth.UserIDFromContext(ctx)).Msg("client connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func detach(ctx context.Context) context.Context {
	out := context.Background()
	out = context.WithValue(out, auth.UserIDKey, auth.UserIDFromContext(ctx))
	out = context.WithValue(out, auth.UserRolesKey, auth.RolesFromContext(ctx))
	out = context.WithValue(out, auth.HospitalIDKey, auth.HospitalIDFromContext(ctx))
	return out
}

func (wsh *Handler) reply(client *Client, msg *ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()
	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if reply := wsh.hub.ProcessMessage(client, msg); reply != nil {
			wsh.reply(client, reply)
		}
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()
	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
