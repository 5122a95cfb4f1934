package output

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/live-voice/metrics"
	"github.com/mrsingh-rishi/live-voice/model"
	"github.com/mrsingh-rishi/live-voice/queue"
)

// PlaybackQueue plays inbound chunks one at a time in arrival order.
type PlaybackQueue struct {
	ctx     context.Context
	cancel  context.CancelFunc
	player  Player
	pending *queue.Queue[model.AudioChunk]
	metrics *metrics.Metrics
	logger  *log.Logger

	mu         sync.Mutex
	playing    bool
	closed     bool
	cutCurrent context.CancelFunc
}

func NewPlaybackQueue(player Player, m *metrics.Metrics, logger *log.Logger) (*PlaybackQueue, error) {
	if player == nil {
		return nil, fmt.Errorf("player is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PlaybackQueue{
		ctx:     ctx,
		cancel:  cancel,
		player:  player,
		pending: queue.New[model.AudioChunk](),
		metrics: m,
		logger:  logger,
	}, nil
}

// Enqueue appends a chunk and starts playback if nothing is playing.
func (q *PlaybackQueue) Enqueue(chunk model.AudioChunk) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	depth := q.pending.Enqueue(chunk)
	q.mu.Unlock()

	q.metrics.RecordEnqueue(depth)
	q.advance()
}

func (q *PlaybackQueue) advance() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing || q.closed || q.pending.IsEmpty() {
		return
	}
	q.playing = true
	go q.drain()
}

// drain is the only goroutine that plays. It exits once the queue is empty.
func (q *PlaybackQueue) drain() {
	for {
		q.mu.Lock()
		if q.closed {
			q.playing = false
			q.mu.Unlock()
			return
		}
		chunk, ok := q.pending.Dequeue()
		if !ok {
			q.playing = false
			q.mu.Unlock()
			return
		}
		ctx, cut := context.WithCancel(q.ctx)
		q.cutCurrent = cut
		q.mu.Unlock()

		err := q.player.Play(ctx, chunk)

		q.mu.Lock()
		q.cutCurrent = nil
		q.mu.Unlock()
		cut()

		switch {
		case err == nil:
			q.metrics.RecordPlayback(nil, q.pending.Len())
		case errors.Is(err, context.Canceled):
			q.logger.Println("⏹️ Playback cut")
			q.metrics.RecordQueueDepth(q.pending.Len())
		default:
			q.logger.Printf("❌ Error playing audio chunk (%d bytes): %v", len(chunk), err)
			q.metrics.RecordPlayback(err, q.pending.Len())
		}
	}
}

// Clear drops every pending chunk and cuts the one playing. It returns the
// number of chunks dropped.
func (q *PlaybackQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.pending.Clear()
	if q.cutCurrent != nil {
		q.cutCurrent()
	}
	q.metrics.RecordQueueDepth(0)
	return n
}

// Len returns the number of chunks waiting to play.
func (q *PlaybackQueue) Len() int {
	return q.pending.Len()
}

// IsPlaying reports whether a chunk is in flight.
func (q *PlaybackQueue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Close stops playback and refuses further chunks.
func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.pending.Clear()
	q.mu.Unlock()

	q.cancel()
	q.metrics.RecordQueueDepth(0)
}
