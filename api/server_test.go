package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsingh-rishi/live-voice/session"
)

type fakeController struct {
	mu        sync.Mutex
	listening bool
	calls     []string
	err       error
	events    chan session.Event
}

func (f *fakeController) record(name string, listening bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.err != nil {
		return f.err
	}
	f.listening = listening
	return nil
}

func (f *fakeController) Start() error { return f.record("start", true) }
func (f *fakeController) Stop() error  { return f.record("stop", false) }

func (f *fakeController) Toggle() error {
	f.mu.Lock()
	next := !f.listening
	f.mu.Unlock()
	return f.record("toggle", next)
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := session.Snapshot{Status: "idle", StatusKind: "idle", Connection: "disconnected"}
	if f.listening {
		snap = session.Snapshot{Listening: true, Status: "connecting", StatusKind: "connecting", Connection: "connecting"}
	}
	return snap
}

func (f *fakeController) Transcript() string { return "hello world" }

func (f *fakeController) Subscribe() (<-chan session.Event, func()) {
	return f.events, func() {}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestServer(t *testing.T, ctrl *fakeController, reg prometheus.Gatherer) *Server {
	t.Helper()
	s, err := NewServer(ctrl, reg, quietLogger())
	require.NoError(t, err)
	return s
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestNewServer_RequiresController(t *testing.T) {
	_, err := NewServer(nil, nil, nil)
	assert.Error(t, err)
}

func TestServer_Commands(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(t, ctrl, nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/start", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[session.Snapshot](t, resp)
	assert.True(t, snap.Listening)
	assert.Equal(t, "connecting", snap.Status)

	resp, err = s.App().Test(httptest.NewRequest(http.MethodPost, "/toggle", nil))
	require.NoError(t, err)
	snap = decode[session.Snapshot](t, resp)
	assert.False(t, snap.Listening)

	resp, err = s.App().Test(httptest.NewRequest(http.MethodPost, "/stop", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, []string{"start", "toggle", "stop"}, ctrl.calls)
}

func TestServer_CommandErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "closed", err: session.ErrClosed, status: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeController{err: tt.err}, nil)

			resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/start", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestServer_StatusAndTranscript(t *testing.T) {
	s := newTestServer(t, &fakeController{}, nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.NoError(t, err)
	snap := decode[session.Snapshot](t, resp)
	assert.Equal(t, "idle", snap.Status)
	assert.Equal(t, "disconnected", snap.Connection)

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/transcript", nil))
	require.NoError(t, err)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "hello world", body["transcript"])

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(data))
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "live_voice_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	s := newTestServer(t, &fakeController{}, reg)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(data), "live_voice_test_total 3")
}

func TestServer_MetricsDisabled(t *testing.T) {
	s := newTestServer(t, &fakeController{}, nil)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_EventsRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, &fakeController{}, nil)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/events", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestServer_EventsStream(t *testing.T) {
	events := make(chan session.Event, 2)
	events <- session.Event{Type: session.EventStatus, Status: "idle", Message: `Click "Start" to begin`}
	events <- session.Event{Type: session.EventTranscript, Text: "hi"}

	s := newTestServer(t, &fakeController{events: events}, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln) }()
	defer s.App().Shutdown()

	conn, _, err := gws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first, second session.Event
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, session.EventStatus, first.Type)
	assert.Equal(t, "idle", first.Status)
	assert.Equal(t, session.EventTranscript, second.Type)
	assert.Equal(t, "hi", second.Text)

	// closing the subscription ends the stream
	close(events)
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
