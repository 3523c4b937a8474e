package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	wsmarshaller "github.com/signalmesh/notify-relay-service/internal/handler/marshaller/ws"
	"github.com/signalmesh/notify-relay-service/internal/metrics"
	"github.com/signalmesh/notify-relay-service/internal/service"
)

type WSHandler struct {
	logger   *slog.Logger
	delivery service.Deliverer
	tokens   service.TokenIssuer
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, delivery service.Deliverer, tokens service.TokenIssuer, m *metrics.Metrics) *WSHandler {
	return &WSHandler{
		logger:   logger.With("component", "ws"),
		delivery: delivery,
		tokens:   tokens,
		metrics:  m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. REDEEM THE SINGLE-USE CONNECT TOKEN
	userID, err := h.tokens.Consume(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer sock.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 3. REGISTER THE SESSION; this fires the reconnect replay trigger.
	conn, err := h.delivery.Subscribe(ctx, userID)
	if err != nil {
		return
	}
	defer h.delivery.Unsubscribe(userID, conn.GetID())

	h.metrics.LiveSessions.Inc()
	defer h.metrics.LiveSessions.Dec()

	h.logger.Info("ws opened", "user_id", userID, "conn_id", conn.GetID())

	ack, err := wsmarshaller.MarshalConnected(conn.GetID().String(), time.Now().UnixMilli())
	if err == nil {
		_ = sock.WriteMessage(websocket.TextMessage, ack)
	}

	// 4. READ PUMP: the client never sends application data, but reading is
	// how we learn the peer went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := sock.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 5. WRITE PUMP. The frame channel is never closed; session termination
	// arrives on Done, after which any frames still buffered are flushed.
	recvCh, doneCh := conn.Recv(), conn.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-doneCh:
			// Session replaced or hub shut down.
			for {
				select {
				case frame := <-recvCh:
					h.writeFrame(sock, frame)
				default:
					return
				}
			}
		case frame := <-recvCh:
			if err := h.writeFrame(sock, frame); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) writeFrame(sock *websocket.Conn, frame model.Frame) error {
	data, err := wsmarshaller.MarshalFrame(frame)
	if err != nil {
		h.logger.Error("failed to marshal ws frame", "error", err)
		return nil
	}
	if err := sock.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn("ws send failed", "error", err)
		return err
	}
	return nil
}
