// Package hub fans blob store status polls out to websocket subscribers.
// Each upload id gets exactly one poll loop no matter how many connections
// watch it.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rohits-web03/clipdrop/internal/blobstore"
)

const (
	DefaultPollInterval = time.Second
	DefaultGrace        = 5 * time.Second
	defaultSendBuffer   = 32
)

// StatusSource is the part of the blob store the hub polls.
type StatusSource interface {
	Status(ctx context.Context, id string) (blobstore.Status, error)
}

// peer is one subscribed connection. enqueue must never block.
type peer interface {
	enqueue(msg []byte) bool
	closeWith(code int, reason string)
}

type Options struct {
	PollInterval time.Duration
	// Grace keeps a finished upload's entry around so slow clients still get
	// the final frame.
	Grace      time.Duration
	SendBuffer int
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
	Logger      *slog.Logger
}

type topic struct {
	id       string
	peers    map[peer]struct{}
	last     []byte
	terminal bool
	cancel   context.CancelFunc
}

type Hub struct {
	source   StatusSource
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	topics map[string]*topic
	subs   map[peer]map[string]struct{}
	conns  map[peer]struct{}
	closed bool
}

func New(source StatusSource, opts Options) *Hub {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "hub")
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool {
			logger.Debug("WebSocket CheckOrigin called", "origin", r.Header.Get("Origin"), "host", r.Host)
			return true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		source: source,
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		ctx:    ctx,
		cancel: cancel,
		topics: make(map[string]*topic),
		subs:   make(map[peer]map[string]struct{}),
		conns:  make(map[peer]struct{}),
	}
}

// attach tracks a live connection so Shutdown can reach it even before it
// subscribes to anything.
func (h *Hub) attach(p peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[p] = struct{}{}
	return true
}

func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// subscribe registers p for id, acknowledges it and replays the last frame.
// The first subscriber starts the poll loop.
func (h *Hub) subscribe(p peer, id string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		p.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}

	t, exists := h.topics[id]
	if !exists {
		ctx, cancel := context.WithCancel(h.ctx)
		t = &topic{id: id, peers: make(map[peer]struct{}), cancel: cancel}
		h.topics[id] = t
		h.wg.Add(1)
		go h.monitor(ctx, t)
	}
	t.peers[p] = struct{}{}
	if h.subs[p] == nil {
		h.subs[p] = make(map[string]struct{})
	}
	h.subs[p][id] = struct{}{}

	// Enqueued under the lock so no progress frame can overtake the ack.
	p.enqueue(marshal(Frame{Type: TypeSubscribed, ClipboardID: id}))
	if t.last != nil {
		p.enqueue(t.last)
	}
	count := len(t.peers)
	h.mu.Unlock()

	h.logger.Debug("Subscriber registered", "clipboard_id", id, "subscribers", count, "new_loop", !exists)
}

// unsubscribe removes p from id. An emptied, non-terminal topic is torn down.
func (h *Hub) unsubscribe(p peer, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(p, id)
}

// detach must be called with h.mu held.
func (h *Hub) detach(p peer, id string) {
	if ids, ok := h.subs[p]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(h.subs, p)
		}
	}
	t, ok := h.topics[id]
	if !ok {
		return
	}
	delete(t.peers, p)
	if len(t.peers) == 0 && !t.terminal {
		t.cancel()
		delete(h.topics, id)
		h.logger.Debug("No more subscribers, stopping poll loop", "clipboard_id", id)
	}
}

// remove drops p from every topic it watches.
func (h *Hub) remove(p peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.subs[p] {
		h.detach(p, id)
	}
	delete(h.subs, p)
	delete(h.conns, p)
}

func (h *Hub) monitor(ctx context.Context, t *topic) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	for {
		st, err := h.source.Status(ctx, t.id)
		if ctx.Err() != nil {
			return
		}

		var (
			msg      []byte
			terminal bool
		)
		if err != nil {
			h.logger.Warn("Status poll failed", "clipboard_id", t.id, "error", err)
			msg = marshal(Frame{Type: TypeError, ClipboardID: t.id, Error: err.Error()})
		} else {
			frame := NewProgressFrame(t.id, st)
			terminal = frame.Terminal()
			msg = marshal(frame)
		}

		if !h.broadcast(t, msg, err == nil, terminal) {
			return
		}
		if terminal {
			h.logger.Info("Upload reached terminal state", "clipboard_id", t.id, "grace", h.opts.Grace.String())
			h.finish(ctx, t)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// broadcast queues msg for every subscriber of t, dropping the ones that
// cannot keep up. It reports false when t is no longer registered.
func (h *Hub) broadcast(t *topic, msg []byte, remember, terminal bool) bool {
	var dropped []peer

	h.mu.Lock()
	if h.topics[t.id] != t {
		h.mu.Unlock()
		return false
	}
	if remember {
		t.last = msg
	}
	if terminal {
		t.terminal = true
	}
	for p := range t.peers {
		if !p.enqueue(msg) {
			dropped = append(dropped, p)
		}
	}
	for _, p := range dropped {
		for id := range h.subs[p] {
			h.detach(p, id)
		}
	}
	alive := h.topics[t.id] == t
	h.mu.Unlock()

	for _, p := range dropped {
		h.logger.Warn("Subscriber too slow, dropping", "clipboard_id", t.id)
		p.closeWith(websocket.CloseTryAgainLater, "subscriber too slow")
	}
	return alive
}

// finish waits out the grace period, then clears t and closes connections
// that have nothing else to watch.
func (h *Hub) finish(ctx context.Context, t *topic) {
	timer := time.NewTimer(h.opts.Grace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	var closing, released []peer
	h.mu.Lock()
	if h.topics[t.id] == t {
		delete(h.topics, t.id)
	}
	for p := range t.peers {
		if ids, ok := h.subs[p]; ok {
			delete(ids, t.id)
			if len(ids) == 0 {
				delete(h.subs, p)
				closing = append(closing, p)
				continue
			}
		}
		released = append(released, p)
	}
	t.peers = nil
	t.cancel()
	shuttingDown := h.closed
	h.mu.Unlock()

	if shuttingDown {
		return
	}
	for _, p := range released {
		p.enqueue(marshal(Frame{Type: TypeUnsubscribed, ClipboardID: t.id}))
	}
	for _, p := range closing {
		p.closeWith(websocket.CloseNormalClosure, "upload finished")
	}
	h.logger.Debug("Registry entry cleared", "clipboard_id", t.id, "closed", len(closing))
}

// Topics is the number of ids currently tracked.
func (h *Hub) Topics() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

// Subscribers is the number of connections watching id.
func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[id]; ok {
		return len(t.peers)
	}
	return 0
}

// Shutdown stops every poll loop and closes all connections with 1001.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	seen := make(map[peer]struct{}, len(h.conns)+len(h.subs))
	for p := range h.conns {
		seen[p] = struct{}{}
	}
	for p := range h.subs {
		seen[p] = struct{}{}
	}
	h.topics = make(map[string]*topic)
	h.subs = make(map[peer]map[string]struct{})
	h.conns = make(map[peer]struct{})
	h.mu.Unlock()

	h.cancel()
	for p := range seen {
		p.closeWith(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
