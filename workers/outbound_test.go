package workers

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsingh-rishi/live-voice/metrics"
	"github.com/mrsingh-rishi/live-voice/mocks"
	"github.com/mrsingh-rishi/live-voice/model"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestNewOutboundStreamer_Validation(t *testing.T) {
	_, err := NewOutboundStreamer(0, nil, nil)
	assert.Error(t, err)
}

func TestOutboundStreamer_DropsWhileNotConnected(t *testing.T) {
	m := metrics.NewMetrics()
	w, err := NewOutboundStreamer(4, m, quietLogger())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	w.Push(model.Frame{1, 2})
	w.Push(model.Frame{3, 4})

	assert.False(t, w.Connected())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.DropNotConnected)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FramesForwarded))
}

func TestOutboundStreamer_ForwardsInCaptureOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := mocks.NewMockSession(ctrl)

	var mu sync.Mutex
	var sent []byte
	session.EXPECT().Send(gomock.Any()).DoAndReturn(func(f model.Frame) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, f[0])
		return nil
	}).Times(5)

	m := metrics.NewMetrics()
	w, err := NewOutboundStreamer(8, m, quietLogger())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	w.Attach(session)
	require.True(t, w.Connected())
	for i := byte(1); i <= 5; i++ {
		w.Push(model.Frame{i, 0})
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.FramesForwarded) == 5
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, sent)
}

func TestOutboundStreamer_BufferFullDrops(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := mocks.NewMockSession(ctrl)

	m := metrics.NewMetrics()
	w, err := NewOutboundStreamer(2, m, quietLogger())
	require.NoError(t, err)
	// not started: nothing drains the buffer

	w.Attach(session)
	w.Push(model.Frame{1, 0})
	w.Push(model.Frame{2, 0})
	w.Push(model.Frame{3, 0})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.DropBufferFull)))
	w.Stop()
}

func TestOutboundStreamer_StaleFramesNeverReachNextSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockSession(ctrl)
	second := mocks.NewMockSession(ctrl)
	second.EXPECT().Send(model.Frame{9, 9}).Return(nil).Times(1)

	m := metrics.NewMetrics()
	w, err := NewOutboundStreamer(4, m, quietLogger())
	require.NoError(t, err)

	// buffered for the first session, then the gate moves before the loop runs
	w.Attach(first)
	w.Push(model.Frame{1, 1})
	w.Detach()
	w.Attach(second)
	w.Push(model.Frame{9, 9})

	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.FramesForwarded) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.DropNotConnected)))
}

func TestOutboundStreamer_SendErrorIsCounted(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := mocks.NewMockSession(ctrl)
	session.EXPECT().Send(gomock.Any()).Return(errors.New("broken pipe")).Times(1)

	m := metrics.NewMetrics()
	w, err := NewOutboundStreamer(4, m, quietLogger())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	w.Attach(session)
	w.Push(model.Frame{1, 0})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.DropSendFailed)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOutboundStreamer_AttachNilDetaches(t *testing.T) {
	w, err := NewOutboundStreamer(1, nil, quietLogger())
	require.NoError(t, err)

	w.Attach(mocks.NewMockSession(gomock.NewController(t)))
	assert.True(t, w.Connected())
	w.Attach(nil)
	assert.False(t, w.Connected())
}
