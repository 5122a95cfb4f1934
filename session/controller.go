// Package session owns the lifecycle of one listening session: connecting to
// the remote endpoint, acquiring the microphone, dispatching inbound messages
// and releasing everything on stop or failure.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrsingh-rishi/live-voice/capture"
	"github.com/mrsingh-rishi/live-voice/live"
	"github.com/mrsingh-rishi/live-voice/metrics"
	"github.com/mrsingh-rishi/live-voice/model"
	"github.com/mrsingh-rishi/live-voice/transcript"
	"github.com/mrsingh-rishi/live-voice/types"
)

// Playback is the inbound audio sink.
type Playback interface {
	Enqueue(chunk model.AudioChunk)
	Clear() int
	Len() int
	IsPlaying() bool
	Close()
}

// FrameStreamer forwards captured frames to the attached session.
type FrameStreamer interface {
	Push(frame model.Frame)
	Attach(s live.Session)
	Detach()
}

// Options configure a Controller.
type Options struct {
	Live             live.Config
	Capture          capture.Config
	ConnectTimeout   time.Duration
	FlushOnInterrupt bool
	Verbose          bool
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Dialer     live.Dialer
	Microphone capture.Microphone
	Playback   Playback
	Streamer   FrameStreamer
	Transcript *transcript.Buffer
	Metrics    *metrics.Metrics
	Logger     *log.Logger
}

// Snapshot is the read model served to the UI.
type Snapshot struct {
	SessionID  string `json:"session_id,omitempty"`
	Listening  bool   `json:"listening"`
	Connection string `json:"connection"`
	Status     string `json:"status"`
	StatusKind string `json:"status_kind"`
	Message    string `json:"message"`
	Transcript string `json:"transcript"`
	Playing    bool   `json:"playing"`
	Pending    int    `json:"pending"`
	LastError  string `json:"last_error,omitempty"`
}

const eventQueueSize = 64

// Controller serializes every state transition through one event loop.
// Asynchronous completions carry the epoch of the attempt that produced them;
// completions from an older epoch only release what they carry.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	events chan func()

	opts       Options
	dialer     live.Dialer
	mic        capture.Microphone
	playback   Playback
	streamer   FrameStreamer
	transcript *transcript.Buffer
	metrics    *metrics.Metrics
	logger     *log.Logger
	subs       *broadcaster

	// loop-owned
	listening  types.ListeningState
	connection types.ConnectionState
	status     types.Status
	epoch      uint64
	session    live.Session
	stream     capture.Stream
	cancelDial context.CancelFunc
	lastErr    error
	micDone    chan struct{}

	// attempt mirrors epoch for goroutines that must not touch loop state
	attempt atomic.Uint64

	postMu  sync.RWMutex
	stopped bool

	mu        sync.RWMutex
	published Snapshot
	closeOnce sync.Once
}

func NewController(opts Options, deps Deps) (*Controller, error) {
	if deps.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if deps.Microphone == nil {
		return nil, fmt.Errorf("microphone is required")
	}
	if deps.Playback == nil {
		return nil, fmt.Errorf("playback is required")
	}
	if deps.Streamer == nil {
		return nil, fmt.Errorf("streamer is required")
	}
	if opts.ConnectTimeout <= 0 {
		return nil, fmt.Errorf("connect timeout must be positive")
	}
	if err := opts.Capture.Validate(); err != nil {
		return nil, fmt.Errorf("capture config: %w", err)
	}
	if deps.Transcript == nil {
		deps.Transcript = transcript.NewBuffer()
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		events:     make(chan func(), eventQueueSize),
		opts:       opts,
		dialer:     deps.Dialer,
		mic:        deps.Microphone,
		playback:   deps.Playback,
		streamer:   deps.Streamer,
		transcript: deps.Transcript,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		subs:       newBroadcaster(),
		listening:  types.Idle,
		connection: types.Disconnected,
		status:     types.StatusIdle,
		micDone:    make(chan struct{}),
	}
	close(c.micDone)
	c.publish()
	go c.run()
	return c, nil
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			return
		case fn := <-c.events:
			fn()
			c.publish()
		}
	}
}

// drain runs what was queued before shutdown. Completions are stale by then and
// only release what they carry.
func (c *Controller) drain() {
	c.postMu.Lock()
	c.stopped = true
	c.postMu.Unlock()
	for {
		select {
		case fn := <-c.events:
			fn()
		default:
			return
		}
	}
}

// post schedules fn on the loop. It reports false once the loop has exited;
// a true result means fn will run.
func (c *Controller) post(fn func()) bool {
	c.postMu.RLock()
	defer c.postMu.RUnlock()
	if c.stopped {
		return false
	}
	select {
	case c.events <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// do runs fn on the loop and waits until its effect is visible in Snapshot.
func (c *Controller) do(fn func()) error {
	applied := make(chan struct{})
	if !c.post(func() {
		fn()
		c.publish()
		close(applied)
	}) {
		return ErrClosed
	}
	select {
	case <-applied:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Start begins a listening session. It returns once the transition to
// Connecting is applied and does not wait for the connection or the microphone.
func (c *Controller) Start() error {
	return c.do(c.start)
}

// Stop releases the session and the microphone. Safe in every state.
func (c *Controller) Stop() error {
	return c.do(c.stop)
}

// Toggle stops when listening and starts otherwise.
func (c *Controller) Toggle() error {
	return c.do(func() {
		if c.listening == types.Listening {
			c.stop()
			return
		}
		c.start()
	})
}

// Snapshot returns the last published state together with live playback figures.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	snap := c.published
	c.mu.RUnlock()
	snap.Transcript = c.transcript.String()
	snap.Playing = c.playback.IsPlaying()
	snap.Pending = c.playback.Len()
	return snap
}

// Transcript returns the accumulated transcript of the current session.
func (c *Controller) Transcript() string {
	return c.transcript.String()
}

// Subscribe returns a stream of events and a function that ends the subscription.
// The current status is delivered first.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.RLock()
	current := c.published
	c.mu.RUnlock()
	return c.subs.subscribe(Event{
		Type:    EventStatus,
		Status:  current.StatusKind,
		Message: current.Message,
		Time:    time.Now(),
	})
}

// Close stops any session, ends the event loop and releases playback.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		_ = c.do(c.stop)
		c.cancel()
		<-c.done
		c.playback.Close()
		c.subs.closeAll()
		c.logger.Println("Session controller closed")
	})
	return nil
}

func (c *Controller) start() {
	if c.listening == types.Listening || c.ctx.Err() != nil {
		return
	}
	c.listening = types.Listening
	c.transcript.Reset()
	c.lastErr = nil
	epoch := c.nextEpoch()

	c.setConnection(types.Connecting)
	c.setStatus(types.StatusConnecting)
	c.metrics.RecordSessionStarted()
	c.logger.Printf("🎧 Starting session (attempt %d)", epoch)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	c.cancelDial = cancel

	// callbacks wait until the dial result is on the loop so that onopen
	// always finds the session stored
	dialed := make(chan struct{})
	cb := c.callbacks(epoch, dialed)

	go func() {
		defer close(dialed)
		s, err := c.dialer.Dial(ctx, c.opts.Live, cb)
		cancel()
		if !c.post(func() { c.onDialResult(epoch, s, err) }) && s != nil {
			_ = s.Close()
		}
	}()
}

func (c *Controller) callbacks(epoch uint64, dialed <-chan struct{}) live.Callbacks {
	ready := func() bool {
		select {
		case <-dialed:
			return true
		case <-c.ctx.Done():
			return false
		}
	}
	return live.Callbacks{
		OnOpen: func() {
			if ready() {
				c.post(func() { c.onOpen(epoch) })
			}
		},
		OnMessage: func(p live.Payload) {
			if ready() {
				c.post(func() { c.onMessage(epoch, p) })
			}
		},
		OnError: func(err error) {
			if ready() {
				c.post(func() { c.onError(epoch, err) })
			}
		},
		OnClose: func() {
			if ready() {
				c.post(func() { c.onClose(epoch) })
			}
		},
	}
}

func (c *Controller) onDialResult(epoch uint64, s live.Session, err error) {
	if epoch != c.epoch {
		if s != nil {
			c.logger.Printf("Closing late session %s", s.ID())
			c.safeClose("late session", s.Close)
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		c.logger.Printf("❌ Connect failed: %v", err)
		c.lastErr = classify(ErrConnectFailure, err)
		c.metrics.RecordError("connect")
		c.teardown()
		c.setConnection(types.Errored)
		c.setStatus(types.StatusConnectFailed)
		return
	}

	c.session = s
	c.logger.Printf("Session %s dialed, opening microphone", s.ID())

	// only one capture device at a time: the previous open must be settled on
	// the loop, which closes it when stale, before this one starts
	prev := c.micDone
	done := make(chan struct{})
	c.micDone = done

	go func() {
		<-prev
		if c.attempt.Load() != epoch {
			close(done)
			return
		}
		stream, err := c.mic.Open(c.opts.Capture, c.streamer.Push)
		if !c.post(func() {
			c.onMicResult(epoch, stream, err)
			close(done)
		}) {
			if stream != nil {
				_ = stream.Close()
			}
			close(done)
		}
	}()
}

func (c *Controller) onMicResult(epoch uint64, stream capture.Stream, err error) {
	if epoch != c.epoch {
		if stream != nil {
			c.safeClose("late microphone", stream.Close)
		}
		return
	}
	if err != nil {
		c.logger.Printf("❌ Microphone error: %v", err)
		c.lastErr = classify(ErrDeviceAccess, err)
		c.metrics.RecordError("device")
		c.teardown()
		c.setConnection(types.Disconnected)
		c.setStatus(types.StatusDeviceFailed)
		return
	}
	c.stream = stream
	c.logger.Println("🎙️ Microphone streaming")
}

func (c *Controller) onOpen(epoch uint64) {
	if epoch != c.epoch {
		return
	}
	c.setConnection(types.Connected)
	c.setStatus(types.StatusConnected)
	if c.session != nil {
		c.streamer.Attach(c.session)
	}
	c.logger.Println("✅ Session open")
}

func (c *Controller) onMessage(epoch uint64, p live.Payload) {
	if epoch != c.epoch {
		return
	}
	if p.Text != "" {
		c.transcript.Append(p.Text)
		c.metrics.RecordTranscript()
		c.subs.publish(Event{Type: EventTranscript, Text: p.Text, Time: time.Now()})
		if c.opts.Verbose {
			c.logger.Printf("Transcript: %s", p.Text)
		}
	}
	if len(p.Audio) > 0 {
		c.playback.Enqueue(p.Audio)
		if c.opts.Verbose {
			c.logger.Printf("Queued %d bytes of audio", len(p.Audio))
		}
	}
	if p.Interrupted {
		c.logger.Println("Model interrupted")
		c.metrics.RecordInterruption()
		c.subs.publish(Event{Type: EventInterrupted, Time: time.Now()})
		if c.opts.FlushOnInterrupt {
			dropped := c.playback.Clear()
			c.logger.Printf("Flushed %d pending chunks", dropped)
		}
	}
	if p.TurnComplete {
		c.subs.publish(Event{Type: EventTurnComplete, Time: time.Now()})
	}
}

func (c *Controller) onError(epoch uint64, err error) {
	if epoch != c.epoch {
		return
	}
	c.logger.Printf("❌ Session error: %v", err)
	c.lastErr = classify(ErrRuntimeConnection, err)
	c.metrics.RecordError("runtime")
	c.teardown()
	c.setConnection(types.Errored)
	c.setStatus(types.StatusError)
}

func (c *Controller) onClose(epoch uint64) {
	if epoch != c.epoch {
		return
	}
	c.logger.Println("🔌 Session closed by endpoint")
	c.teardown()
	c.setConnection(types.Disconnected)
	c.setStatus(types.StatusDisconnected)
}

func (c *Controller) stop() {
	if c.listening == types.Idle {
		return
	}
	c.teardown()
	c.setConnection(types.Disconnected)
	c.setStatus(types.StatusIdle)
	c.logger.Println("⏹️ Session stopped")
}

// teardown releases everything the current attempt holds and invalidates its
// pending completions. Every release is guarded.
func (c *Controller) teardown() {
	c.nextEpoch()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.streamer.Detach()
	if c.stream != nil {
		c.safeClose("microphone", c.stream.Close)
		c.stream = nil
	}
	if c.session != nil {
		c.safeClose("session", c.session.Close)
		c.session = nil
	}
	c.listening = types.Idle
}

func (c *Controller) nextEpoch() uint64 {
	c.epoch++
	c.attempt.Store(c.epoch)
	return c.epoch
}

func (c *Controller) safeClose(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("❌ Panic while closing %s: %v", what, r)
		}
	}()
	if err := fn(); err != nil {
		c.logger.Printf("Error closing %s: %v", what, err)
	}
}

func (c *Controller) setConnection(s types.ConnectionState) {
	c.connection = s
	c.metrics.RecordConnectionState(s)
}

func (c *Controller) setStatus(s types.Status) {
	c.status = s
	c.subs.publish(statusEvent(s))
}

func (c *Controller) publish() {
	snap := Snapshot{
		Listening:  c.listening == types.Listening,
		Connection: c.connection.String(),
		Status:     c.status.String(),
		StatusKind: c.status.Kind(),
		Message:    c.status.Message(),
	}
	if c.session != nil {
		snap.SessionID = c.session.ID()
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	c.mu.Lock()
	c.published = snap
	c.mu.Unlock()
}
