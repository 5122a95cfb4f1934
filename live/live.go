// Package live connects to a remote duplex conversational endpoint: microphone
// frames go up, transcript text and synthesized audio come back down.
package live

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/mrsingh-rishi/live-voice/model"
)

// Config holds the per-session parameters sent with the setup message.
type Config struct {
	Model           string
	SystemPrompt    string
	InputSampleRate int
}

// Payload is one inbound server message reduced to what the client acts on.
type Payload struct {
	Text         string
	Audio        model.AudioChunk
	Interrupted  bool
	TurnComplete bool
}

// Empty reports whether the payload carries nothing actionable.
func (p Payload) Empty() bool {
	return p.Text == "" && len(p.Audio) == 0 && !p.Interrupted && !p.TurnComplete
}

// Callbacks are invoked from the session's receive goroutine, in arrival order.
// OnOpen fires at most once. OnClose fires exactly once, after the receive loop
// ends. OnError precedes OnClose when the loop ended abnormally without a local Close.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(Payload)
	OnError   func(error)
	OnClose   func()
}

// Dialer opens duplex sessions.
type Dialer interface {
	Dial(ctx context.Context, cfg Config, cb Callbacks) (Session, error)
}

// Session is an open duplex connection.
type Session interface {
	ID() string
	// Send streams one PCM16 frame to the endpoint.
	Send(frame model.Frame) error
	// Close releases the connection. Safe to call more than once.
	Close() error
}

// inbound is one decoded server frame.
type inbound struct {
	setupComplete bool
	payloads      []Payload
}

// receiver drives the callback contract shared by every backend.
type receiver struct {
	id       string
	cb       Callbacks
	logger   *log.Logger
	closed   atomic.Bool
	openOnce sync.Once
}

func newReceiver(cb Callbacks, logger *log.Logger) *receiver {
	if logger == nil {
		logger = log.Default()
	}
	return &receiver{
		id:     uuid.NewString(),
		cb:     cb,
		logger: logger,
	}
}

func (r *receiver) open() {
	r.openOnce.Do(func() {
		if r.cb.OnOpen != nil {
			r.cb.OnOpen()
		}
	})
}

// run reads until read fails, then reports the outcome. Any content that
// arrives before a setup acknowledgement implicitly opens the session.
// release frees the transport before OnClose fires.
func (r *receiver) run(read func() (inbound, error), release func()) {
	defer func() {
		release()
		if r.cb.OnClose != nil {
			r.cb.OnClose()
		}
	}()

	for {
		in, err := read()
		if err != nil {
			if r.closed.Load() || isNormalClose(err) {
				r.logger.Printf("🔌 Session %s closed", r.id)
				return
			}
			r.logger.Printf("❌ Session %s receive error: %v", r.id, err)
			if r.cb.OnError != nil {
				r.cb.OnError(err)
			}
			return
		}
		if in.setupComplete {
			r.open()
		}
		for _, p := range in.payloads {
			if p.Empty() {
				continue
			}
			r.open()
			if r.cb.OnMessage != nil {
				r.cb.OnMessage(p)
			}
		}
	}
}

func isNormalClose(err error) bool {
	return gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway)
}

// payloadsFromContent splits one server content block into actionable payloads.
// Audio parts stay separate chunks so playback order matches arrival order.
func payloadsFromContent(sc *genai.LiveServerContent) []Payload {
	if sc == nil {
		return nil
	}
	var out []Payload
	var text strings.Builder

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				out = append(out, Payload{Audio: model.AudioChunk(part.InlineData.Data)})
			}
		}
	}
	if sc.OutputTranscription != nil {
		text.WriteString(sc.OutputTranscription.Text)
	}
	if text.Len() > 0 {
		out = append([]Payload{{Text: text.String()}}, out...)
	}
	if sc.Interrupted || sc.TurnComplete {
		out = append(out, Payload{Interrupted: sc.Interrupted, TurnComplete: sc.TurnComplete})
	}
	return out
}

// decodeServerMessage maps an SDK message onto the client's view of it.
func decodeServerMessage(msg *genai.LiveServerMessage, logger *log.Logger) inbound {
	if msg == nil {
		return inbound{}
	}
	if msg.GoAway != nil {
		logger.Printf("⚠️ Endpoint going away in %s", msg.GoAway.TimeLeft)
	}
	return inbound{
		setupComplete: msg.SetupComplete != nil,
		payloads:      payloadsFromContent(msg.ServerContent),
	}
}

// pcmMIMEType is the content type of outbound microphone frames.
func pcmMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}
