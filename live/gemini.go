package live

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/mrsingh-rishi/live-voice/model"
)

// GeminiDialer opens sessions through the genai Live API.
type GeminiDialer struct {
	client *genai.Client
	logger *log.Logger
}

// NewGeminiDialer creates the SDK client once. baseURL may be empty for the
// public endpoint; a ws:// or wss:// base is dialed as given.
func NewGeminiDialer(ctx context.Context, apiKey, baseURL string, logger *log.Logger) (*GeminiDialer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: "v1beta",
		},
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	return &GeminiDialer{client: client, logger: logger}, nil
}

type connectResult struct {
	session *genai.Session
	err     error
}

// Dial connects and starts the receive goroutine. The SDK dial does not observe
// ctx, so a cancelled attempt closes the connection once it lands.
func (d *GeminiDialer) Dial(ctx context.Context, cfg Config, cb Callbacks) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "live connect cancelled")
	}
	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.SystemPrompt != "" {
		connectConfig.SystemInstruction = genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser)
	}

	resultCh := make(chan connectResult, 1)
	go func() {
		s, err := d.client.Live.Connect(ctx, cfg.Model, connectConfig)
		resultCh <- connectResult{session: s, err: err}
	}()

	var res connectResult
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		go func() {
			if late := <-resultCh; late.session != nil {
				_ = late.session.Close()
			}
		}()
		return nil, errors.Wrap(ctx.Err(), "live connect cancelled")
	}
	if res.err != nil {
		return nil, errors.Wrap(res.err, "live connect failed")
	}

	s := &geminiSession{
		session:  res.session,
		mimeType: pcmMIMEType(cfg.InputSampleRate),
		receiver: newReceiver(cb, d.logger),
	}
	d.logger.Printf("✅ Connected to %s (session %s)", cfg.Model, s.ID())

	go s.receiver.run(func() (inbound, error) {
		msg, err := s.session.Receive()
		if err != nil {
			return inbound{}, err
		}
		return decodeServerMessage(msg, d.logger), nil
	}, s.release)
	return s, nil
}

type geminiSession struct {
	*receiver
	mu       sync.Mutex
	session  *genai.Session
	mimeType string
}

func (s *geminiSession) ID() string { return s.id }

func (s *geminiSession) Send(frame model.Frame) error {
	if s.closed.Load() {
		return errors.New("session closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: frame, MIMEType: s.mimeType},
	})
}

func (s *geminiSession) release() {
	if s.closed.CompareAndSwap(false, true) {
		_ = s.session.Close()
	}
}

func (s *geminiSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.session.Close()
}
