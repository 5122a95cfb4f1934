package output

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsingh-rishi/live-voice/model"
)

func pcm16(samples ...int16) model.AudioChunk {
	buf := new(bytes.Buffer)
	for _, s := range samples {
		_ = binary.Write(buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

// wavChunk builds a minimal 16-bit mono PCM WAV file.
func wavChunk(rate int, samples ...int16) model.AudioChunk {
	data := pcm16(samples...)
	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(rate*2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name  string
		chunk model.AudioChunk
		want  Container
	}{
		{"ogg", model.AudioChunk("OggS\x00\x02"), ContainerOgg},
		{"wav", wavChunk(24000, 0), ContainerWAV},
		{"riff without wave", model.AudioChunk("RIFF\x00\x00\x00\x00AVI "), ContainerRaw},
		{"id3", model.AudioChunk("ID3\x04\x00"), ContainerMP3},
		{"mp3 frame sync", model.AudioChunk{0xFF, 0xFB, 0x90, 0x00}, ContainerMP3},
		{"pcm", pcm16(100, -100), ContainerRaw},
		{"short", model.AudioChunk{0x01}, ContainerRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff(tt.chunk))
		})
	}
	assert.Equal(t, "pcm", ContainerRaw.String())
	assert.Equal(t, "mp3", ContainerMP3.String())
}

func TestDecode_RawPCM(t *testing.T) {
	s, format, err := Decode(pcm16(0, 16384, -32768), beep.SampleRate(24000))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, beep.SampleRate(24000), format.SampleRate)
	assert.Equal(t, 1, format.NumChannels)
	assert.Equal(t, 3, s.Len())

	samples := make([][2]float64, 8)
	n, ok := s.Stream(samples)
	assert.True(t, ok)
	require.Equal(t, 3, n)
	assert.Equal(t, 0.0, samples[0][0])
	assert.Equal(t, 0.5, samples[1][0])
	assert.Equal(t, 0.5, samples[1][1])
	assert.Equal(t, -1.0, samples[2][0])

	n, ok = s.Stream(samples)
	assert.False(t, ok)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Seek(1))
	assert.Equal(t, 1, s.Position())
	assert.Error(t, s.Seek(4))
}

func TestDecode_WAV(t *testing.T) {
	s, format, err := Decode(wavChunk(16000, 1, 2, 3, 4), beep.SampleRate(24000))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, beep.SampleRate(16000), format.SampleRate)
	assert.Equal(t, 4, s.Len())
}

func TestDecode_Failures(t *testing.T) {
	_, _, err := Decode(nil, beep.SampleRate(24000))
	assert.True(t, errors.Is(err, ErrPlaybackDecode))

	_, _, err = Decode(model.AudioChunk{1, 2, 3}, beep.SampleRate(24000))
	assert.True(t, errors.Is(err, ErrPlaybackDecode))

	_, _, err = Decode(model.AudioChunk("OggS garbage that is not vorbis"), beep.SampleRate(24000))
	assert.True(t, errors.Is(err, ErrPlaybackDecode))
}

func TestDecode_FrameSyncFallsBackToPCM(t *testing.T) {
	chunk := model.AudioChunk{0xFF, 0xEF, 0x00, 0x00}
	s, format, err := Decode(chunk, beep.SampleRate(24000))
	require.NoError(t, err)
	assert.Equal(t, 1, format.NumChannels)
	assert.Equal(t, 2, s.Len())
}
