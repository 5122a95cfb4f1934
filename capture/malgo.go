package capture

import (
	"log"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/pkg/errors"
)

// MalgoMicrophone captures from the default input device through miniaudio.
type MalgoMicrophone struct {
	Logger *log.Logger
}

// NewMalgoMicrophone creates a microphone backed by the default capture device.
func NewMalgoMicrophone(logger *log.Logger) *MalgoMicrophone {
	if logger == nil {
		logger = log.Default()
	}
	return &MalgoMicrophone{Logger: logger}
}

// Open initializes a capture context and device and starts it. Every partially
// initialized resource is released before an error is returned.
func (m *MalgoMicrophone) Open(cfg Config, onFrame FrameHandler) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid capture config")
	}
	if onFrame == nil {
		return nil, errors.New("frame handler is required")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init audio context")
	}

	framer := NewFramer(cfg.FrameBytes(), onFrame)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FrameSamples)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			framer.Write(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, errors.Wrap(err, "failed to init microphone")
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, errors.Wrap(err, "failed to start microphone")
	}

	m.Logger.Printf("🎙️ Microphone opened: %d Hz, %d ch, %d samples/frame", cfg.SampleRate, cfg.Channels, cfg.FrameSamples)

	return &malgoStream{
		ctx:    mctx,
		device: device,
		framer: framer,
		logger: m.Logger,
	}, nil
}

type malgoStream struct {
	once   sync.Once
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	framer *Framer
	logger *log.Logger
}

func (s *malgoStream) Close() error {
	var err error
	s.once.Do(func() {
		if s.device != nil {
			if stopErr := s.device.Stop(); stopErr != nil {
				err = errors.Wrap(stopErr, "failed to stop microphone")
			}
			s.device.Uninit()
		}
		if s.ctx != nil {
			if uninitErr := s.ctx.Uninit(); uninitErr != nil && err == nil {
				err = errors.Wrap(uninitErr, "failed to release audio context")
			}
			s.ctx.Free()
		}
		s.framer.Reset()
		s.logger.Println("🎙️ Microphone closed")
	})
	return err
}
