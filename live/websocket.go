package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/mrsingh-rishi/live-voice/model"
)

const (
	maxMessageSize   = 16 * 1024 * 1024
	writeWait        = 10 * time.Second
	closeGracePeriod = 2 * time.Second
)

// WebSocketDialer speaks the duplex wire protocol directly over gorilla/websocket.
type WebSocketDialer struct {
	APIKey   string
	Endpoint string
	Logger   *log.Logger
}

// NewWebSocketDialer creates a dialer for a ws:// or wss:// endpoint.
func NewWebSocketDialer(apiKey, endpoint string, logger *log.Logger) (*WebSocketDialer, error) {
	if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
		return nil, fmt.Errorf("endpoint must be a ws:// or wss:// url, got %q", endpoint)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WebSocketDialer{APIKey: apiKey, Endpoint: endpoint, Logger: logger}, nil
}

// setupMessage is the first client frame on the wire.
type setupMessage struct {
	Setup *genai.LiveClientSetup `json:"setup"`
}

type realtimeInputMessage struct {
	RealtimeInput struct {
		Audio *genai.Blob `json:"audio"`
	} `json:"realtimeInput"`
}

// wireMessage accepts the structured server form and the flat
// {text, audio, serverContent.interrupted} form.
type wireMessage struct {
	genai.LiveServerMessage
	Text  string           `json:"text,omitempty"`
	Audio model.AudioChunk `json:"audio,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

var errMalformed = errors.New("malformed server message")

func decodeWireMessage(data []byte, logger *log.Logger) (inbound, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return inbound{}, errors.Wrapf(errMalformed, "%v", err)
	}
	if msg.Error != nil {
		return inbound{}, fmt.Errorf("server error %d: %s", msg.Error.Code, msg.Error.Message)
	}

	in := decodeServerMessage(&msg.LiveServerMessage, logger)
	if msg.Text != "" || len(msg.Audio) > 0 {
		flat := []Payload{{Text: msg.Text}, {Audio: msg.Audio}}
		in.payloads = append(flat, in.payloads...)
	}
	return in, nil
}

func (d *WebSocketDialer) Dial(ctx context.Context, cfg Config, cb Callbacks) (Session, error) {
	header := http.Header{}
	if d.APIKey != "" {
		header.Set("x-goog-api-key", d.APIKey)
	}

	dialer := gws.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, d.Endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			d.Logger.Printf("❌ Live dial failed with status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "live dial failed")
	}
	conn.SetReadLimit(maxMessageSize)

	s := &wsSession{
		conn:     conn,
		mimeType: pcmMIMEType(cfg.InputSampleRate),
		receiver: newReceiver(cb, d.Logger),
	}

	if err := s.writeJSON(setupMessage{Setup: buildSetup(cfg)}); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to write setup")
	}
	d.Logger.Printf("✅ Connected to %s (session %s)", d.Endpoint, s.ID())

	go s.receiver.run(func() (inbound, error) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return inbound{}, err
			}
			in, err := decodeWireMessage(data, d.Logger)
			if errors.Is(err, errMalformed) {
				d.Logger.Printf("Error parsing server message: %v", err)
				continue
			}
			return in, err
		}
	}, s.release)
	return s, nil
}

func buildSetup(cfg Config) *genai.LiveClientSetup {
	modelName := cfg.Model
	if !strings.HasPrefix(modelName, "models/") {
		modelName = "models/" + modelName
	}
	setup := &genai.LiveClientSetup{
		Model: modelName,
		GenerationConfig: &genai.GenerationConfig{
			ResponseModalities: []genai.Modality{genai.ModalityAudio},
		},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.SystemPrompt != "" {
		setup.SystemInstruction = genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser)
	}
	return setup
}

type wsSession struct {
	*receiver
	writeMu  sync.Mutex
	conn     *gws.Conn
	mimeType string
}

func (s *wsSession) ID() string { return s.id }

func (s *wsSession) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(gws.TextMessage, data)
}

func (s *wsSession) Send(frame model.Frame) error {
	if s.closed.Load() {
		return errors.New("session closed")
	}
	var msg realtimeInputMessage
	msg.RealtimeInput.Audio = &genai.Blob{Data: frame, MIMEType: s.mimeType}
	return s.writeJSON(msg)
}

// release drops the transport after the receive loop ended on its own.
func (s *wsSession) release() {
	if s.closed.CompareAndSwap(false, true) {
		_ = s.conn.Close()
	}
}

// Close never waits for a writer. When a write is in flight the close frame is
// skipped and closing the connection unblocks that writer.
func (s *wsSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.writeMu.TryLock() {
		_ = s.conn.WriteControl(gws.CloseMessage,
			gws.FormatCloseMessage(gws.CloseNormalClosure, "Closing connection"),
			time.Now().Add(closeGracePeriod))
		s.writeMu.Unlock()
	} else {
		s.logger.Printf("Session %s closing with a write in flight", s.id)
	}
	return s.conn.Close()
}
