package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/you/courier/internal/eventbus"
	"github.com/you/courier/internal/storage"
)

const qrImageSize = 256

type liveMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	JID  string `json:"jid,omitempty"`
}

// handleLiveStatus streams lifecycle events for one session over a websocket.
// The connection is authenticated by tenant API key and rejected with close
// code 1008 when the tenant is unknown or the key is wrong. Events for other
// sessions are filtered out here; the bus broadcasts everything.
func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	apiKey := r.URL.Query().Get("apiKey")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("ws upgrade", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	tenant, err := s.store.GetTenant(r.Context(), sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		s.closeWith(conn, websocket.ClosePolicyViolation, "Tenant not found")
		return
	}
	if err != nil {
		s.log.Error("ws auth", zap.String("session_id", sessionID), zap.Error(err))
		s.closeWith(conn, websocket.CloseInternalServerErr, "Internal Server Error")
		return
	}
	if subtle.ConstantTimeCompare([]byte(tenant.APIKey), []byte(apiKey)) != 1 {
		s.closeWith(conn, websocket.ClosePolicyViolation, "Invalid API Key")
		return
	}

	s.log.Info("live status subscribed", zap.String("session_id", sessionID))

	events := make(chan eventbus.Event, 16)
	unsubscribe := s.bus.Subscribe(func(e eventbus.Event) {
		if eventSessionID(e) != sessionID {
			return
		}
		select {
		case events <- e:
		default:
			// Slow consumer; at-most-once delivery allows dropping.
		}
	})
	defer unsubscribe()

	// Starting the session must outlive this request.
	if _, ok := s.manager.GetClient(sessionID); !ok {
		if err := s.manager.Start(context.WithoutCancel(r.Context()), sessionID); err != nil {
			s.log.Error("start session", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

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

	for {
		select {
		case <-ctx.Done():
			s.log.Info("live status closed", zap.String("session_id", sessionID))
			return
		case e := <-events:
			msg, err := encodeLiveMessage(e)
			if err != nil {
				s.log.Error("encode live event", zap.String("session_id", sessionID), zap.Error(err))
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
}

func eventSessionID(e eventbus.Event) string {
	switch ev := e.(type) {
	case eventbus.QR:
		return ev.SessionID
	case eventbus.Ready:
		return ev.SessionID
	case eventbus.Closed:
		return ev.SessionID
	}
	return ""
}

func encodeLiveMessage(e eventbus.Event) (liveMessage, error) {
	switch ev := e.(type) {
	case eventbus.QR:
		png, err := qrcode.Encode(string(ev.Challenge), qrcode.Medium, qrImageSize)
		if err != nil {
			return liveMessage{}, errors.Wrap(err, "encode qr")
		}
		return liveMessage{
			Type: "qr",
			Data: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		}, nil
	case eventbus.Ready:
		return liveMessage{Type: "ready", JID: ev.JID}, nil
	case eventbus.Closed:
		return liveMessage{Type: "close"}, nil
	}
	return liveMessage{}, errors.Errorf("unknown event %T", e)
}
