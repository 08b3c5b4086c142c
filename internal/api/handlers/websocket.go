// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	natsgo "github.com/nats-io/nats.go"

	apierrors "github.com/lrbcloud/taskloop/internal/api/errors"
	"github.com/lrbcloud/taskloop/internal/api/middleware"
	"github.com/lrbcloud/taskloop/internal/nats"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
)

// WebSocket configuration constants.
const (
	// WriteWait is time allowed to write a message to the peer.
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer.
	PongWait = 60 * time.Second

	// PingPeriod is period for sending pings. Must be less than PongWait.
	PingPeriod = 50 * time.Second

	// MaxMessageSize is maximum message size allowed from peer.
	MaxMessageSize = 8192

	// EventBufferSize is the per-connection queue of pending events. The
	// broker callback never blocks; a full queue drops the event instead.
	EventBufferSize = 64
)

// WebSocketUpgrader is the default upgrader for WebSocket connections.
var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return isAllowedWebSocketOrigin(r)
	},
}

// WebSocketHandler forwards broker events to connected dashboards.
type WebSocketHandler struct {
	BaseHandler
	events *nats.Client
}

// NewWebSocketHandler creates a new WebSocket handler. The events client may
// be nil, in which case connections are accepted but receive nothing.
func NewWebSocketHandler(events *nats.Client, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		BaseHandler: NewBaseHandler(log),
		events:      events,
	}
}

// Routes returns the WebSocket routes.
func (h *WebSocketHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Live event feed for the authenticated tenant (any member)
	r.Get("/events", h.Events)

	return r
}

// ============================================================================
// WebSocket message types
// ============================================================================

// WSMessage represents a WebSocket frame sent to the client.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// tenantEnvelope extracts the tenant scope from any published event.
type tenantEnvelope struct {
	TenantID string `json:"tenant_id"`
}

// ============================================================================
// Handlers
// ============================================================================

// Events streams domain events for the caller's tenant.
// GET /api/v1/ws/events
func (h *WebSocketHandler) Events(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromRequest(r)
	if claims == nil {
		h.HandleError(w, apierrors.Unauthorized(""))
		return
	}
	tenantID := claims.TenantID

	conn, err := h.upgradeConnection(w, r)
	if err != nil {
		return
	}
	defer conn.Close()

	// Context cancels when the client goes away
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	go h.pingPong(ctx, conn)

	queue := make(chan WSMessage, EventBufferSize)

	if h.events != nil {
		sub, err := h.events.SubscribeAll(func(msg *natsgo.Msg) {
			var env tenantEnvelope
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				return
			}
			if env.TenantID != tenantID {
				return
			}
			select {
			case queue <- WSMessage{Type: eventType(msg.Subject), Payload: msg.Data}:
			default:
				// Slow consumer, drop the event
			}
		})
		if err != nil {
			h.writeWSError(conn, err)
			return
		}
		defer sub.Unsubscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			if err := h.writeWSMessage(conn, msg); err != nil {
				return
			}
		}
	}
}

// eventType maps a broker subject to a client-facing frame type.
func eventType(subject string) string {
	switch subject {
	case nats.SubjectChecklistCompleted:
		return "checklist.completed"
	case nats.SubjectDelegationStatus:
		return "delegation.status"
	case nats.SubjectBadgeEarned:
		return "badge.earned"
	default:
		return "event"
	}
}

// ============================================================================
// WebSocket helpers
// ============================================================================

// upgradeConnection upgrades an HTTP connection to WebSocket.
func (h *WebSocketHandler) upgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger().Error("websocket upgrade failed", "error", err)
		return nil, err
	}

	conn.SetReadLimit(MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	return conn, nil
}

// pingPong sends periodic pings to keep the connection alive.
func (h *WebSocketHandler) pingPong(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeWSMessage writes a message to the WebSocket.
func (h *WebSocketHandler) writeWSMessage(conn *websocket.Conn, msg WSMessage) error {
	conn.SetWriteDeadline(time.Now().Add(WriteWait))

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, data)
}

// writeWSError writes an error message to the WebSocket.
func (h *WebSocketHandler) writeWSError(conn *websocket.Conn, err error) {
	msg := WSMessage{
		Type:  "error",
		Error: err.Error(),
	}

	h.writeWSMessage(conn, msg)
}
