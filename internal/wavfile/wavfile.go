// Package wavfile parses RIFF/WAVE headers into a Spec and hands back a
// seekable reader positioned at the first sample. Grounded on the
// chunk-walking loop used by the WAV loaders in the reference pack (read
// an 8-byte chunk header, branch on its id, skip anything unrecognised
// until "data" turns up) rather than assuming a fixed 44-byte header.
package wavfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/doismellburning/wavplayer/internal/perr"
	"github.com/doismellburning/wavplayer/internal/sampleformat"
)

// Spec describes a WAV file's sample layout, independent of any
// particular sink.
type Spec struct {
	IsFloat        bool
	BitsPerSample  int
	BytesPerSample int
	Channels       int
	SampleRate     int
	NumSamples     int64
}

// SinkFormat resolves the sink format Table S maps this Spec to.
func (s Spec) SinkFormat() (sampleformat.Format, error) {
	f, ok := sampleformat.FromSpec(s.IsFloat, s.BitsPerSample, s.BytesPerSample)
	if !ok {
		return 0, perr.New(perr.Format, "SinkFormat", fmt.Errorf(
			"unsupported combination: float=%v bits=%d bytes=%d", s.IsFloat, s.BitsPerSample, s.BytesPerSample))
	}
	return f, nil
}

const (
	fmtPCM        = 1
	fmtIEEEFloat  = 3
	fmtExtensible = 0xfffe
)

// Open reads path's RIFF header and returns its Spec plus a ReadSeeker
// positioned at the first byte of sample data. The caller owns the
// returned closer.
func Open(path string) (Spec, io.ReadSeekCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return Spec{}, nil, perr.New(perr.Io, "Open", err)
	}

	spec, err := probe(f)
	if err != nil {
		f.Close()
		return Spec{}, nil, err
	}

	return spec, f, nil
}

// probe walks the RIFF chunk list, leaving f positioned at the first
// sample byte on success.
func probe(f io.ReadSeeker) (Spec, error) {
	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return Spec{}, perr.New(perr.Format, "probe", fmt.Errorf("short RIFF header: %w", err))
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Spec{}, perr.New(perr.Format, "probe", fmt.Errorf("not a RIFF/WAVE file"))
	}

	var spec Spec
	var haveFmt, haveData bool
	var dataLen int64

	for !haveData {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			return Spec{}, perr.New(perr.Format, "probe", fmt.Errorf("truncated chunk list: %w", err))
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if err := parseFmtChunk(f, size, &spec); err != nil {
				return Spec{}, err
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Spec{}, perr.New(perr.Format, "probe", fmt.Errorf("data chunk before fmt chunk"))
			}
			dataLen = size
			haveData = true
		default:
			if _, err := f.Seek(size+size%2, io.SeekCurrent); err != nil {
				return Spec{}, perr.New(perr.Io, "probe", err)
			}
		}
	}

	if spec.BytesPerSample <= 0 {
		return Spec{}, perr.New(perr.Format, "probe", fmt.Errorf("zero-width sample"))
	}
	spec.NumSamples = dataLen / int64(spec.BytesPerSample*spec.Channels)

	return spec, nil
}

func parseFmtChunk(f io.ReadSeeker, size int64, spec *Spec) error {
	if size < 16 {
		return perr.New(perr.Format, "parseFmtChunk", fmt.Errorf("fmt chunk too short: %d", size))
	}

	buf := make([]byte, size+size%2)
	if _, err := io.ReadFull(f, buf); err != nil {
		return perr.New(perr.Format, "parseFmtChunk", fmt.Errorf("short fmt chunk: %w", err))
	}

	tag := binary.LittleEndian.Uint16(buf[0:2])
	channels := int(binary.LittleEndian.Uint16(buf[2:4]))
	rate := int(binary.LittleEndian.Uint32(buf[4:8]))
	blockAlign := int(binary.LittleEndian.Uint16(buf[12:14]))
	bits := int(binary.LittleEndian.Uint16(buf[14:16]))

	if tag == fmtExtensible && size >= 40 {
		subFormat := binary.LittleEndian.Uint16(buf[24:26])
		tag = subFormat
	}

	spec.Channels = channels
	spec.SampleRate = rate
	spec.BitsPerSample = bits
	if channels > 0 {
		spec.BytesPerSample = blockAlign / channels
	}

	switch tag {
	case fmtPCM:
		spec.IsFloat = false
	case fmtIEEEFloat:
		spec.IsFloat = true
	default:
		return perr.New(perr.Format, "parseFmtChunk", fmt.Errorf("unsupported WAVE_FORMAT tag 0x%x", tag))
	}

	return nil
}
