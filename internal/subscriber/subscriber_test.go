package subscriber

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohits-web03/clipdrop/internal/blobstore"
	"github.com/rohits-web03/clipdrop/internal/hub"
	"github.com/rohits-web03/clipdrop/internal/logging"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) scheduled() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeTimer(nil), s.timers...)
}

// script drives one server-side connection.
type script func(conn *websocket.Conn)

type fakeHub struct {
	srv     *httptest.Server
	conns   atomic.Int32
	scripts chan script
	closes  chan int
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	fh := &fakeHub{scripts: make(chan script, 8), closes: make(chan int, 8)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fh.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fh.conns.Add(1)

		var sub hub.ClientMessage
		if err := conn.ReadJSON(&sub); err != nil || sub.Type != hub.TypeSubscribe {
			return
		}
		_ = conn.WriteJSON(hub.Frame{Type: hub.TypeSubscribed, ClipboardID: sub.ClipboardID})

		select {
		case run := <-fh.scripts:
			run(conn)
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(fh.srv.Close)
	return fh
}

func (fh *fakeHub) url() string {
	return "ws" + strings.TrimPrefix(fh.srv.URL, "http")
}

func sendStatus(conn *websocket.Conn, st blobstore.Status) {
	_ = conn.WriteJSON(hub.NewProgressFrame("clip-1", st))
}

func closeWith(code int) script {
	return func(conn *websocket.Conn) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
	}
}

func newSubscriber(t *testing.T, url string, sched *fakeScheduler, updates chan State) *Subscriber {
	t.Helper()
	s, err := New(Options{
		URL:       url,
		ID:        "clip-1",
		Uploading: true,
		Logger:    logging.Discard(),
		AfterFunc: sched.AfterFunc,
		OnUpdate: func(st State) {
			if updates != nil {
				select {
				case updates <- st:
				default:
				}
			}
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAbnormalCloseWhileUploadingSchedulesOneReconnect(t *testing.T) {
	fh := newFakeHub(t)
	sched := &fakeScheduler{}
	updates := make(chan State, 16)
	s := newSubscriber(t, fh.url(), sched, updates)

	fh.scripts <- func(conn *websocket.Conn) {
		sendStatus(conn, blobstore.Status{Status: blobstore.StatusUploading, Progress: blobstore.Progress{ChunksUploaded: 1, TotalChunks: 2}})
		closeWith(websocket.CloseInternalServerErr)(conn)
	}
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return len(sched.scheduled()) == 1 }, 2*time.Second, 5*time.Millisecond)
	timers := sched.scheduled()
	assert.Equal(t, DefaultBackoff, timers[0].d)

	st := s.State()
	require.NotNil(t, st.Remote)
	assert.Equal(t, "uploading", st.Remote.Status)
	assert.Equal(t, 50.0, st.Remote.Progress.Percentage)
	assert.False(t, st.Connected)

	// a second close event while one reconnect is pending changes nothing
	assert.False(t, s.handleClose(websocket.CloseAbnormalClosure))
	assert.Len(t, sched.scheduled(), 1)

	// firing the timer dials again
	fh.scripts <- closeWith(websocket.CloseNormalClosure)
	timers[0].f()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("normal close after reconnect should finish the subscriber")
	}
	assert.Equal(t, int32(2), fh.conns.Load())
	assert.Len(t, sched.scheduled(), 1)
}

func TestCloseAfterCompletedDoesNotReconnect(t *testing.T) {
	fh := newFakeHub(t)
	sched := &fakeScheduler{}
	s := newSubscriber(t, fh.url(), sched, nil)

	fh.scripts <- func(conn *websocket.Conn) {
		sendStatus(conn, blobstore.Status{Status: blobstore.StatusCompleted, Completed: true})
		// drop the socket without a close frame
		_ = conn.UnderlyingConn().Close()
	}
	require.NoError(t, s.Start())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not finish after terminal status")
	}
	assert.Empty(t, sched.scheduled())
	require.NotNil(t, s.State().Remote)
	assert.True(t, s.State().Remote.Completed)
}

func TestHandleClosePolicy(t *testing.T) {
	tests := []struct {
		name   string
		last   *hub.ProgressFrame
		code   int
		expect bool
	}{
		{"abnormal with no status yet", nil, websocket.CloseAbnormalClosure, true},
		{"going away while uploading", &hub.ProgressFrame{Status: "uploading"}, websocket.CloseGoingAway, true},
		{"normal close while uploading", &hub.ProgressFrame{Status: "uploading"}, websocket.CloseNormalClosure, false},
		{"abnormal after completed", &hub.ProgressFrame{Status: "completed", Completed: true}, websocket.CloseAbnormalClosure, false},
		{"abnormal after failed", &hub.ProgressFrame{Status: "failed"}, websocket.CloseAbnormalClosure, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &fakeScheduler{}
			s := newSubscriber(t, "ws://unused", sched, nil)
			s.last = tt.last

			assert.Equal(t, tt.expect, s.handleClose(tt.code))
			if tt.expect {
				require.Len(t, sched.scheduled(), 1)
				assert.Equal(t, 3*time.Second, sched.scheduled()[0].d)
			} else {
				assert.Empty(t, sched.scheduled())
			}
		})
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	sched := &fakeScheduler{}
	s := newSubscriber(t, "ws://unused", sched, nil)

	require.True(t, s.handleClose(websocket.CloseAbnormalClosure))
	timer := sched.scheduled()[0]

	require.NoError(t, s.Close())
	assert.True(t, timer.stopped.Load())

	assert.False(t, s.handleClose(websocket.CloseAbnormalClosure))
	assert.Len(t, sched.scheduled(), 1)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
}

func TestDialFailureSchedulesReconnect(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	sched := &fakeScheduler{}
	s := newSubscriber(t, url, sched, nil)

	require.Error(t, s.Start())
	require.Len(t, sched.scheduled(), 1)
	assert.NotEmpty(t, s.State().Err)
}

func TestCloseSendsNormalClosure(t *testing.T) {
	received := make(chan int, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					received <- ce.Code
				}
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	sched := &fakeScheduler{}
	s := newSubscriber(t, "ws"+strings.TrimPrefix(srv.URL, "http"), sched, nil)
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return s.State().Connected }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	select {
	case code := <-received:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a close frame")
	}
	assert.Empty(t, sched.scheduled())
}

func TestLocalTrackIsBinary(t *testing.T) {
	updates := make(chan State, 4)
	s := newSubscriber(t, "ws://unused", &fakeScheduler{}, updates)

	assert.Equal(t, 0.0, s.State().Local)
	s.SetUploading(false)
	assert.Equal(t, 100.0, s.State().Local)
	assert.Equal(t, 100.0, (<-updates).Local)
	s.SetUploading(true)
	assert.Equal(t, 0.0, s.State().Local)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{ID: "x"})
	require.Error(t, err)
	_, err = New(Options{URL: "ws://x"})
	require.Error(t, err)
}
