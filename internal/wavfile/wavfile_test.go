package wavfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV assembles a minimal canonical-header PCM WAV file for tests.
func buildWAV(channels, rate, bits int, data []byte) []byte {
	blockAlign := channels * (bits / 8)
	byteRate := rate * blockAlign

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bits))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	return buf.Bytes()
}

func Test_probe_simplePCM(t *testing.T) {
	data := make([]byte, 4*100) // 100 frames of 2ch*16bit
	r := bytes.NewReader(buildWAV(2, 44100, 16, data))

	spec, err := probe(r)
	require.NoError(t, err)

	assert.False(t, spec.IsFloat)
	assert.Equal(t, 16, spec.BitsPerSample)
	assert.Equal(t, 2, spec.BytesPerSample)
	assert.Equal(t, 2, spec.Channels)
	assert.Equal(t, 44100, spec.SampleRate)
	assert.Equal(t, int64(100), spec.NumSamples)
}

func Test_probe_skipsUnknownChunks(t *testing.T) {
	data := make([]byte, 4)
	raw := buildWAV(1, 8000, 16, data)

	// splice a LIST chunk in right after fmt, before data.
	fmtEnd := 12 + 8 + 16
	listChunk := append([]byte("LIST"), []byte{4, 0, 0, 0, 'I', 'N', 'F', 'O'}...)
	spliced := append(append(append([]byte{}, raw[:fmtEnd]...), listChunk...), raw[fmtEnd:]...)

	// fix RIFF size
	binary.LittleEndian.PutUint32(spliced[4:8], uint32(len(spliced)-8))

	spec, err := probe(bytes.NewReader(spliced))
	require.NoError(t, err)
	assert.Equal(t, int64(2), spec.NumSamples)
}

func Test_probe_rejectsNonRIFF(t *testing.T) {
	_, err := probe(bytes.NewReader(make([]byte, 12)))
	assert.Error(t, err)
}
