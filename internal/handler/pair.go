package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/service"
	"github.com/qrauth/qr-link-server/internal/util"
	"github.com/qrauth/qr-link-server/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the session id in the path is the capability; browsers on any
	// origin may hold the channel
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PairHandler serves the viewer's notification channel. The viewer opens it
// right after generating a QR code and holds it until the pairing result
// arrives or the session dies.
type PairHandler struct {
	pairingService *service.PairingService
	hub            *ws.Hub
}

func NewPairHandler(pairingService *service.PairingService, hub *ws.Hub) *PairHandler {
	return &PairHandler{
		pairingService: pairingService,
		hub:            hub,
	}
}

// GET /pair/{sessionID}
func (h *PairHandler) Serve(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	if _, err := h.pairingService.GetSession(sessionID); err != nil {
		code := websocket.ClosePolicyViolation
		if apperrors.GetCode(err) != apperrors.ErrCodeNotFound {
			code = websocket.CloseInternalServerErr
		}
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, "unknown pairing session"),
			time.Now().Add(time.Second),
		)
		conn.Close()
		return
	}

	ch := h.hub.Open(sessionID, conn)

	// The read loop keeps the connection alive and drives the pong handler.
	// Client text frames are echoed back; everything of substance is pushed
	// by the hub when the session is redeemed.
	for {
		messageType, payload, err := ch.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().
					Err(err).
					Str("sessionId", util.MaskSessionID(sessionID)).
					Msg("notification channel read failed")
			}
			h.hub.Release(ch)
			return
		}

		if messageType == websocket.TextMessage {
			if err := ch.WriteText("Echo: " + string(payload)); err != nil {
				h.hub.Release(ch)
				return
			}
		}
	}
}
