package output

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/live-voice/model"
)

// ErrPlaybackDecode marks a chunk that could not be turned into samples.
var ErrPlaybackDecode = errors.New("playback decode failed")

// Container identifies the encoding of an inbound chunk.
type Container int

const (
	ContainerRaw Container = iota
	ContainerWAV
	ContainerOgg
	ContainerMP3
)

func (c Container) String() string {
	switch c {
	case ContainerWAV:
		return "wav"
	case ContainerOgg:
		return "ogg"
	case ContainerMP3:
		return "mp3"
	default:
		return "pcm"
	}
}

// Sniff inspects the leading magic bytes. Anything unrecognized is raw PCM.
func Sniff(chunk model.AudioChunk) Container {
	switch {
	case bytes.HasPrefix(chunk, []byte("OggS")):
		return ContainerOgg
	case len(chunk) >= 12 && bytes.HasPrefix(chunk, []byte("RIFF")) && bytes.Equal(chunk[8:12], []byte("WAVE")):
		return ContainerWAV
	case bytes.HasPrefix(chunk, []byte("ID3")):
		return ContainerMP3
	case len(chunk) >= 2 && chunk[0] == 0xFF && chunk[1]&0xE0 == 0xE0:
		return ContainerMP3
	default:
		return ContainerRaw
	}
}

// Decode turns a chunk into a streamer. rawRate is the sample rate assumed for
// headerless PCM16LE mono.
func Decode(chunk model.AudioChunk, rawRate beep.SampleRate) (beep.StreamSeekCloser, beep.Format, error) {
	if len(chunk) == 0 {
		return nil, beep.Format{}, errors.Wrap(ErrPlaybackDecode, "empty chunk")
	}

	container := Sniff(chunk)
	rc := io.NopCloser(bytes.NewReader(chunk))

	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch container {
	case ContainerOgg:
		s, format, err = vorbis.Decode(rc)
	case ContainerWAV:
		s, format, err = wav.Decode(bytes.NewReader(chunk))
	case ContainerMP3:
		s, format, err = mp3.Decode(rc)
		// a bare frame-sync match can be ordinary PCM
		if err != nil && !bytes.HasPrefix(chunk, []byte("ID3")) {
			return decodeRaw(chunk, rawRate)
		}
	default:
		return decodeRaw(chunk, rawRate)
	}
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(ErrPlaybackDecode, "%s: %v", container, err)
	}
	return s, format, nil
}

func decodeRaw(chunk model.AudioChunk, rate beep.SampleRate) (beep.StreamSeekCloser, beep.Format, error) {
	if len(chunk)%2 != 0 {
		return nil, beep.Format{}, errors.Wrapf(ErrPlaybackDecode, "pcm chunk has odd length %d", len(chunk))
	}
	format := beep.Format{SampleRate: rate, NumChannels: 1, Precision: 2}
	return &pcmStreamer{data: chunk}, format, nil
}

// pcmStreamer plays signed 16-bit little-endian mono samples on both channels.
type pcmStreamer struct {
	data []byte
	pos  int
}

func (p *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) && p.pos+1 < len(p.data) {
		v := float64(int16(binary.LittleEndian.Uint16(p.data[p.pos:]))) / 32768
		samples[n][0] = v
		samples[n][1] = v
		p.pos += 2
		n++
	}
	return n, n > 0
}

func (p *pcmStreamer) Err() error { return nil }

func (p *pcmStreamer) Len() int { return len(p.data) / 2 }

func (p *pcmStreamer) Position() int { return p.pos / 2 }

func (p *pcmStreamer) Seek(sample int) error {
	if sample < 0 || sample > p.Len() {
		return errors.Errorf("seek position %d out of range [0, %d]", sample, p.Len())
	}
	p.pos = sample * 2
	return nil
}

func (p *pcmStreamer) Close() error { return nil }
