package live

import (
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mrsingh-rishi/live-voice/model"
)

// mockWebSocketServer creates a test WebSocket server
type mockWebSocketServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	handler  func(*http.Request, *websocket.Conn)
}

func newMockWebSocketServer(handler func(*http.Request, *websocket.Conn)) *mockWebSocketServer {
	mws := &mockWebSocketServer{
		upgrader: websocket.Upgrader{},
		handler:  handler,
	}

	mws.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := mws.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if mws.handler != nil {
			mws.handler(r, conn)
		}
	}))

	return mws
}

func (mws *mockWebSocketServer) Close() {
	mws.server.Close()
}

func (mws *mockWebSocketServer) URL() string {
	return "ws" + strings.TrimPrefix(mws.server.URL, "http")
}

func closeNormally(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	// wait for the client to answer the close frame
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// callbackRecorder captures every callback for later assertions.
type callbackRecorder struct {
	mu       sync.Mutex
	opens    int
	messages []Payload
	errs     []error
	closes   int
	order    []string
	closed   chan struct{}
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{closed: make(chan struct{})}
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		OnOpen: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.opens++
			r.order = append(r.order, "open")
		},
		OnMessage: func(p Payload) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, p)
			r.order = append(r.order, "message")
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
			r.order = append(r.order, "error")
		},
		OnClose: func() {
			r.mu.Lock()
			r.closes++
			r.order = append(r.order, "close")
			r.mu.Unlock()
			close(r.closed)
		},
	}
}

func (r *callbackRecorder) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-r.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}

func (r *callbackRecorder) openCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestPayloadsFromContent(t *testing.T) {
	sc := &genai.LiveServerContent{
		ModelTurn: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking", Thought: true},
			{Text: "Hello"},
			{InlineData: &genai.Blob{Data: []byte{1, 2}, MIMEType: "audio/pcm;rate=24000"}},
			nil,
			{InlineData: &genai.Blob{Data: []byte{3, 4}, MIMEType: "audio/pcm;rate=24000"}},
		}},
		OutputTranscription: &genai.Transcription{Text: " there"},
		TurnComplete:        true,
	}

	out := payloadsFromContent(sc)

	require.Len(t, out, 4)
	assert.Equal(t, "Hello there", out[0].Text)
	assert.Equal(t, model.AudioChunk{1, 2}, out[1].Audio)
	assert.Equal(t, model.AudioChunk{3, 4}, out[2].Audio)
	assert.True(t, out[3].TurnComplete)
	assert.False(t, out[3].Interrupted)
}

func TestPayloadsFromContent_Nil(t *testing.T) {
	assert.Empty(t, payloadsFromContent(nil))
	assert.Empty(t, payloadsFromContent(&genai.LiveServerContent{}))
}

func TestPayload_Empty(t *testing.T) {
	assert.True(t, Payload{}.Empty())
	assert.False(t, Payload{Text: "a"}.Empty())
	assert.False(t, Payload{Audio: model.AudioChunk{0}}.Empty())
	assert.False(t, Payload{Interrupted: true}.Empty())
	assert.False(t, Payload{TurnComplete: true}.Empty())
}

func TestDecodeWireMessage_FlatForm(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{9, 8, 7})
	in, err := decodeWireMessage([]byte(`{"text":"hi","audio":"`+audio+`","serverContent":{"interrupted":true}}`), quietLogger())
	require.NoError(t, err)

	var texts []string
	var chunks []model.AudioChunk
	interrupted := false
	for _, p := range in.payloads {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
		if len(p.Audio) > 0 {
			chunks = append(chunks, p.Audio)
		}
		interrupted = interrupted || p.Interrupted
	}
	assert.Equal(t, []string{"hi"}, texts)
	assert.Equal(t, []model.AudioChunk{{9, 8, 7}}, chunks)
	assert.True(t, interrupted)
	assert.False(t, in.setupComplete)
}

func TestDecodeWireMessage_Structured(t *testing.T) {
	in, err := decodeWireMessage([]byte(`{"setupComplete":{}}`), quietLogger())
	require.NoError(t, err)
	assert.True(t, in.setupComplete)
	assert.Empty(t, in.payloads)
}

func TestDecodeWireMessage_Errors(t *testing.T) {
	_, err := decodeWireMessage([]byte(`not json`), quietLogger())
	assert.Error(t, err)

	_, err = decodeWireMessage([]byte(`{"error":{"code":403,"message":"denied"}}`), quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}
