package workers

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/mrsingh-rishi/live-voice/live"
	"github.com/mrsingh-rishi/live-voice/metrics"
	"github.com/mrsingh-rishi/live-voice/model"
)

// gate is the session frames may flow to. A new gate is published on every
// Attach so frames captured for one session never reach the next.
type gate struct {
	session live.Session
}

type outboundFrame struct {
	frame model.Frame
	gate  *gate
}

// OutboundStreamer forwards captured frames to the session while it is connected.
type OutboundStreamer struct {
	ctx     context.Context
	cancel  context.CancelFunc
	frames  chan outboundFrame
	current atomic.Pointer[gate]
	metrics *metrics.Metrics
	logger  *log.Logger
	Verbose bool

	startOnce sync.Once
	wg        sync.WaitGroup
}

func NewOutboundStreamer(buffer int, m *metrics.Metrics, logger *log.Logger) (*OutboundStreamer, error) {
	if buffer <= 0 {
		return nil, fmt.Errorf("outbound buffer must be positive")
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &OutboundStreamer{
		ctx:     ctx,
		cancel:  cancel,
		frames:  make(chan outboundFrame, buffer),
		metrics: m,
		logger:  logger,
	}, nil
}

// Start launches the send loop.
func (w *OutboundStreamer) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.process()
	})
}

func (w *OutboundStreamer) process() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case out := <-w.frames:
			w.send(out)
		}
	}
}

func (w *OutboundStreamer) send(out outboundFrame) {
	if w.current.Load() != out.gate {
		w.metrics.RecordDrop(metrics.DropNotConnected)
		return
	}
	if err := out.gate.session.Send(out.frame); err != nil {
		w.logger.Printf("❌ Outbound send error: %v", err)
		w.metrics.RecordDrop(metrics.DropSendFailed)
		return
	}
	w.metrics.RecordForward()
	if w.Verbose {
		w.logger.Printf("Sent %d samples to %s", out.frame.Samples(), out.gate.session.ID())
	}
}

// Push hands a captured frame to the send loop. It never blocks: frames are
// dropped while disconnected or when the buffer is full.
func (w *OutboundStreamer) Push(frame model.Frame) {
	g := w.current.Load()
	if g == nil {
		w.metrics.RecordDrop(metrics.DropNotConnected)
		return
	}
	select {
	case w.frames <- outboundFrame{frame: frame, gate: g}:
	default:
		w.metrics.RecordDrop(metrics.DropBufferFull)
	}
}

// Attach opens the gate to a connected session.
func (w *OutboundStreamer) Attach(session live.Session) {
	if session == nil {
		w.Detach()
		return
	}
	w.current.Store(&gate{session: session})
}

// Detach closes the gate. Frames still buffered are dropped at send time.
func (w *OutboundStreamer) Detach() {
	w.current.Store(nil)
}

// Connected reports whether frames are currently forwarded.
func (w *OutboundStreamer) Connected() bool {
	return w.current.Load() != nil
}

// Stop ends the send loop and waits for it to exit.
func (w *OutboundStreamer) Stop() {
	w.Detach()
	w.cancel()
	w.wg.Wait()
}
