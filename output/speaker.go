package output

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/live-voice/model"
)

// Player plays one chunk to completion.
type Player interface {
	// Play blocks until the chunk finished playing, failed, or ctx was cancelled.
	Play(ctx context.Context, chunk model.AudioChunk) error
}

const resampleQuality = 4

// SpeakerPlayer plays chunks on the default output device through beep.
type SpeakerPlayer struct {
	rate       beep.SampleRate
	bufferSize int
	logger     *log.Logger

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	ready  bool
	closed bool
}

// NewSpeakerPlayer creates a player for the given device rate. buffer trades
// latency for underrun safety.
func NewSpeakerPlayer(sampleRate int, buffer time.Duration, logger *log.Logger) *SpeakerPlayer {
	if logger == nil {
		logger = log.Default()
	}
	rate := beep.SampleRate(sampleRate)
	return &SpeakerPlayer{
		rate:       rate,
		bufferSize: rate.N(buffer),
		logger:     logger,
	}
}

func (p *SpeakerPlayer) init() error {
	p.initOnce.Do(func() {
		if err := speaker.Init(p.rate, p.bufferSize); err != nil {
			p.initErr = errors.Wrap(err, "failed to init speaker")
			return
		}
		p.mu.Lock()
		p.ready = true
		p.mu.Unlock()
		p.logger.Printf("🔊 Speaker ready: %d Hz, buffer %d samples", p.rate, p.bufferSize)
	})
	return p.initErr
}

func (p *SpeakerPlayer) Play(ctx context.Context, chunk model.AudioChunk) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.New("speaker closed")
	}

	s, format, err := Decode(chunk, p.rate)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := p.init(); err != nil {
		return err
	}

	var stream beep.Streamer = s
	if format.SampleRate != p.rate {
		stream = beep.Resample(resampleQuality, format.SampleRate, p.rate, s)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Close releases the output device.
func (p *SpeakerPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.ready {
		speaker.Close()
	}
}
