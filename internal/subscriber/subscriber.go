// Package subscriber is the client side of the progress channel. It follows
// one upload id and reconnects after abnormal closes until the upload is
// finished or the subscriber is closed.
package subscriber

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rohits-web03/clipdrop/internal/hub"
)

const DefaultBackoff = 3 * time.Second

// Timer is the handle returned by a scheduler.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// State is what a renderer needs. Local is the client-to-service track and
// only ever reads 0 or 100. Remote is the last frame from the hub.
type State struct {
	ID        string
	Local     float64
	Remote    *hub.ProgressFrame
	Connected bool
	Err       string
}

type Options struct {
	URL       string
	ID        string
	Uploading bool
	Backoff   time.Duration
	Dialer    *websocket.Dialer
	Header    http.Header
	Logger    *slog.Logger
	OnUpdate  func(State)
	AfterFunc AfterFunc
}

type Subscriber struct {
	opts   Options
	logger *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	uploading bool
	last      *hub.ProgressFrame
	lastErr   string
	pending   Timer
	closed    bool
	doneOnce  sync.Once
	done      chan struct{}
}

func New(opts Options) (*Subscriber, error) {
	if opts.URL == "" {
		return nil, errors.New("subscriber: URL is required")
	}
	if opts.ID == "" {
		return nil, errors.New("subscriber: clipboard id is required")
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = stdAfterFunc
	}
	return &Subscriber{
		opts:      opts,
		logger:    opts.Logger.With("component", "subscriber", "clipboard_id", opts.ID),
		uploading: opts.Uploading,
		done:      make(chan struct{}),
	}, nil
}

// Done is closed once the subscriber will not connect again.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Start opens the connection and subscribes. A failed dial is retried with
// the same policy as an abnormal close.
func (s *Subscriber) Start() error {
	return s.connect()
}

func (s *Subscriber) connect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, resp, err := s.opts.Dialer.Dial(s.opts.URL, s.opts.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("dial %s (status: %s): %w", s.opts.URL, resp.Status, err)
		} else {
			err = fmt.Errorf("dial %s: %w", s.opts.URL, err)
		}
		s.logger.Warn("WebSocket dial failed", "error", err)
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.handleClose(websocket.CloseAbnormalClosure)
		s.notify()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.lastErr = ""
	s.mu.Unlock()

	if err := s.write(conn, hub.ClientMessage{Type: hub.TypeSubscribe, ClipboardID: s.opts.ID}); err != nil {
		s.logger.Warn("Failed to send subscribe frame", "error", err)
		_ = conn.Close()
	}
	go s.readLoop(conn)
	return nil
}

func (s *Subscriber) write(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

func (s *Subscriber) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := closeCode(err)
			s.mu.Lock()
			current := s.conn == conn
			if current {
				s.conn = nil
			}
			s.mu.Unlock()
			_ = conn.Close()

			if current {
				s.logger.Info("Progress channel closed", "code", code)
				s.handleClose(code)
				s.notify()
			}
			return
		}
		s.handleFrame(data)
	}
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

func (s *Subscriber) handleFrame(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		s.logger.Warn("Ignoring malformed frame", "error", err)
		return
	}

	switch head.Type {
	case hub.TypeProgress:
		var f hub.ProgressFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("Ignoring malformed progress frame", "error", err)
			return
		}
		s.mu.Lock()
		s.last = &f
		s.lastErr = ""
		s.mu.Unlock()
	case hub.TypeError:
		var f hub.Frame
		_ = json.Unmarshal(data, &f)
		s.mu.Lock()
		s.lastErr = f.Error
		s.mu.Unlock()
	case hub.TypeSubscribed:
		s.logger.Debug("Subscribed")
	default:
		return
	}
	s.notify()
}

// handleClose decides what happens after the connection ends. It reports
// whether a reconnect was scheduled. At most one reconnect is ever pending.
func (s *Subscriber) handleClose(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if code == websocket.CloseNormalClosure || (s.last != nil && s.last.Terminal()) {
		s.finishLocked()
		return false
	}
	if s.pending != nil {
		return false
	}
	s.logger.Info("Scheduling reconnect", "code", code, "backoff", s.opts.Backoff.String())
	s.pending = s.opts.AfterFunc(s.opts.Backoff, s.reconnect)
	return true
}

func (s *Subscriber) reconnect() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	_ = s.connect()
}

func (s *Subscriber) finishLocked() {
	s.doneOnce.Do(func() { close(s.done) })
}

// SetUploading flips the local track between 0 and 100.
func (s *Subscriber) SetUploading(v bool) {
	s.mu.Lock()
	s.uploading = v
	s.mu.Unlock()
	s.notify()
}

func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Subscriber) stateLocked() State {
	st := State{
		ID:        s.opts.ID,
		Local:     100,
		Connected: s.conn != nil,
		Err:       s.lastErr,
	}
	if s.uploading {
		st.Local = 0
	}
	if s.last != nil {
		f := *s.last
		st.Remote = &f
	}
	return st
}

func (s *Subscriber) notify() {
	if s.opts.OnUpdate == nil {
		return
	}
	s.opts.OnUpdate(s.State())
}

// Close cancels any pending reconnect and closes the socket with 1000.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	conn := s.conn
	s.conn = nil
	s.finishLocked()
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	return err
}
