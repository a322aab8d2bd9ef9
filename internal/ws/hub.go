// Package ws owns the live notification channels used to push pairing results
// back to the waiting viewer. Channels are keyed by pairing-session id and
// there is at most one live connection per key: opening a second connection
// for the same session displaces the first.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/qrauth/qr-link-server/internal/util"
)

const (
	// PingInterval is how often keep-alive probes are written. A probe
	// failure closes and unregisters the channel.
	PingInterval = 30 * time.Second

	// pongWait bounds how long a connection may stay silent after a probe
	// before the read side gives up.
	pongWait = PingInterval + 15*time.Second

	writeWait = 10 * time.Second
)

// Channel is one registered duplex connection.
type Channel struct {
	sessionID string
	conn      *websocket.Conn

	// gorilla connections allow only one concurrent writer
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Done is closed when the channel is released, whether by displacement,
// explicit close, delivery, or a failed keep-alive probe.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *Channel) writeControl(messageType int, data []byte) error {
	return c.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

// WriteText writes a raw text frame, used for keep-alive echoes on client
// traffic.
func (c *Channel) WriteText(s string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// ReadMessage reads the next frame from the underlying connection. Reading
// also drives the pong handler that keeps the channel alive.
func (c *Channel) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

type Hub struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]*Channel),
	}
}

// Open registers conn under sessionID and starts its keep-alive loop. An
// existing channel for the same session is displaced and its connection
// closed; the session id is a capability, so the newest holder wins.
func (h *Hub) Open(sessionID string, conn *websocket.Conn) *Channel {
	ch := &Channel{
		sessionID: sessionID,
		conn:      conn,
		done:      make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	h.mu.Lock()
	old := h.channels[sessionID]
	h.channels[sessionID] = ch
	h.mu.Unlock()

	if old != nil {
		log.Info().
			Str("sessionId", util.MaskSessionID(sessionID)).
			Msg("notification channel displaced")
		old.release()
	}

	go h.keepAlive(ch)

	log.Info().
		Str("sessionId", util.MaskSessionID(sessionID)).
		Msg("notification channel opened")

	return ch
}

// Send delivers payload to the channel registered for sessionID. It is
// best-effort: false means no channel was registered or the write failed, and
// a failed channel is released. Callers must never treat false as a reason to
// roll back the pairing itself.
func (h *Hub) Send(sessionID string, payload any) bool {
	h.mu.Lock()
	ch := h.channels[sessionID]
	h.mu.Unlock()

	if ch == nil {
		return false
	}

	if err := ch.writeJSON(payload); err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", util.MaskSessionID(sessionID)).
			Msg("notification send failed")
		h.Close(sessionID)
		return false
	}

	return true
}

// Close releases the channel for sessionID. Idempotent; closing an unknown
// session is a no-op.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	ch := h.channels[sessionID]
	delete(h.channels, sessionID)
	h.mu.Unlock()

	if ch != nil {
		ch.release()
		log.Info().
			Str("sessionId", util.MaskSessionID(sessionID)).
			Msg("notification channel closed")
	}
}

// Shutdown releases every channel.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	channels := h.channels
	h.channels = make(map[string]*Channel)
	h.mu.Unlock()

	for _, ch := range channels {
		ch.release()
	}
}

// Count reports the number of live channels.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

func (h *Hub) keepAlive(ch *Channel) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ch.done:
			return
		case <-ticker.C:
			if err := ch.writeControl(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Str("sessionId", util.MaskSessionID(ch.sessionID)).
					Msg("keep-alive probe failed, closing channel")
				h.Release(ch)
				return
			}
		}
	}
}

// Release removes ch only if it is still the registered channel for its
// session, so a displaced channel cannot evict its replacement.
func (h *Hub) Release(ch *Channel) {
	h.mu.Lock()
	if h.channels[ch.sessionID] == ch {
		delete(h.channels, ch.sessionID)
	}
	h.mu.Unlock()
	ch.release()
}

func (c *Channel) release() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
