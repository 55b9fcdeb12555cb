package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/pickleit/internal/session"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	// the session cookie already authenticated the request
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionStreamHandler pushes session changes to a signed-in client.
//
// PROTOCOL:
// The server sends JSON session.Event values and never expects anything back
// but pongs. The first message is always {"kind":"current"} for the caller,
// then every signed_in / signed_out event the bus carries for the same user.
type SessionStreamHandler struct {
	bus    session.Bus
	logger *slog.Logger
}

func NewSessionStreamHandler(bus session.Bus, logger *slog.Logger) *SessionStreamHandler {
	return &SessionStreamHandler{bus: bus, logger: logger}
}

// HandleStream upgrades to a websocket and forwards the caller's session events.
//
// HTTP: GET /api/auth/stream
// Auth: Required
func (h *SessionStreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("session stream: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	events := make(chan session.Event, 8)
	err = h.bus.Subscribe(ctx, func(ev session.Event) {
		if ev.UserID != userID {
			return
		}
		select {
		case events <- ev:
		default:
			h.logger.Warn("session stream: client too slow, dropping event",
				slog.String("userID", userID),
				slog.String("kind", string(ev.Kind)),
			)
		}
	})
	if err != nil {
		h.logger.Error("session stream: subscribe failed", slog.String("error", err.Error()))
		return
	}

	// The read side only services control frames; any read error means the
	// client is gone.
	go func() {
		defer cancel()
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(streamPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Info("session stream opened", slog.String("userID", userID))
	defer h.logger.Info("session stream closed", slog.String("userID", userID))

	if err := h.send(ws, session.Event{Kind: session.KindCurrent, UserID: userID, At: time.Now()}); err != nil {
		return
	}

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteWait))
			return
		case ev := <-events:
			if err := h.send(ws, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *SessionStreamHandler) send(ws *websocket.Conn, ev session.Event) error {
	_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := ws.WriteJSON(ev); err != nil {
		h.logger.Warn("session stream: write failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
