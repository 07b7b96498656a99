package hub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 1024                // Maximum message size allowed from peer.
)

// session is one websocket connection. Writes happen only in writePump.
type session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce   sync.Once
	done        chan struct{}
	closeCode   int
	closeReason string
}

func (s *session) enqueue(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *session) closeWith(code int, reason string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeReason = reason
		close(s.done)
	})
}

// ServeHTTP upgrades the request and serves the progress channel.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	h.logger.Info("WebSocket connection upgraded", "remote_addr", conn.RemoteAddr().String())

	s := &session{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}
	if !h.attach(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go s.writePump()
	go s.readPump()
}

func (s *session) reply(f Frame) {
	if !s.enqueue(marshal(f)) {
		s.hub.logger.Warn("Subscriber send channel full, reply dropped", "remote_addr", s.conn.RemoteAddr(), "type", f.Type)
	}
}

// readPump handles subscribe/unsubscribe frames until the connection dies.
func (s *session) readPump() {
	defer func() {
		s.hub.remove(s)
		s.closeWith(websocket.CloseNormalClosure, "")
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.hub.logger.Error("WebSocket read error", "remote_addr", s.conn.RemoteAddr(), "error", err)
			} else {
				s.hub.logger.Debug("WebSocket connection closed", "remote_addr", s.conn.RemoteAddr(), "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(Frame{Type: TypeError, Error: "malformed message"})
			continue
		}
		id := strings.TrimSpace(msg.ClipboardID)
		switch {
		case id == "":
			s.reply(Frame{Type: TypeError, Error: "clipboard_id is required"})
		case msg.Type == TypeSubscribe:
			s.hub.subscribe(s, id)
		case msg.Type == TypeUnsubscribe:
			s.hub.unsubscribe(s, id)
			s.reply(Frame{Type: TypeUnsubscribed, ClipboardID: id})
		default:
			s.reply(Frame{Type: TypeError, ClipboardID: id, Error: "unknown message type " + msg.Type})
		}
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				s.hub.logger.Error("WebSocket message write error", "remote_addr", s.conn.RemoteAddr(), "error", err)
				s.closeWith(websocket.CloseAbnormalClosure, "")
				s.hub.remove(s)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.logger.Error("WebSocket ping write error", "remote_addr", s.conn.RemoteAddr(), "error", err)
				s.closeWith(websocket.CloseAbnormalClosure, "")
				s.hub.remove(s)
				return
			}
		case <-s.done:
			// Flush what was queued before the close so final frames land.
			s.flush()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(s.closeCode, s.closeReason),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *session) flush() {
	for {
		select {
		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *session) write(msg []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}
