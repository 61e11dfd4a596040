// Package alsa binds the sink.PCM and sink.Mixer capability sets to
// libasound. The playback open/param/recover sequence is grounded on the
// teacher's ALSA cgo layer: interleaved access, nearest-rate negotiation,
// and an EPIPE/ESTRPIPE/EBADFD writei recovery ladder that retries a
// bounded number of times before giving up.
package alsa

/*
#cgo LDFLAGS: -lasound
#include <alsa/asoundlib.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/doismellburning/wavplayer/internal/perr"
	"github.com/doismellburning/wavplayer/internal/sampleformat"
	"github.com/doismellburning/wavplayer/internal/sink"
)

// maxWriteRetries bounds the EPIPE/EBADFD recovery ladder, matching the
// teacher's "retry ten times then give up" convention.
const maxWriteRetries = 10

// PCM is a CGo binding to a libasound playback handle.
type PCM struct {
	handle   *C.snd_pcm_t
	channels int
	format   sampleformat.Format
}

func alsaFormat(f sampleformat.Format) (C.snd_pcm_format_t, error) {
	switch f {
	case sampleformat.S8:
		return C.SND_PCM_FORMAT_S8, nil
	case sampleformat.S16LE:
		return C.SND_PCM_FORMAT_S16_LE, nil
	case sampleformat.S18_3LE:
		return C.SND_PCM_FORMAT_S18_3LE, nil
	case sampleformat.S20_3LE:
		return C.SND_PCM_FORMAT_S20_3LE, nil
	case sampleformat.S24_3LE:
		return C.SND_PCM_FORMAT_S24_3LE, nil
	case sampleformat.S20LE:
		return C.SND_PCM_FORMAT_S20_LE, nil
	case sampleformat.S24LE:
		return C.SND_PCM_FORMAT_S24_LE, nil
	case sampleformat.S32LE:
		return C.SND_PCM_FORMAT_S32_LE, nil
	case sampleformat.Float32LE:
		return C.SND_PCM_FORMAT_FLOAT_LE, nil
	case sampleformat.Float64LE:
		return C.SND_PCM_FORMAT_FLOAT64_LE, nil
	default:
		return 0, perr.New(perr.Format, "alsaFormat", fmt.Errorf("unmappable sink format %v", f))
	}
}

// Open opens device (e.g. "default"), configures interleaved access at
// the given format/channels/rate, and prepares the stream.
func Open(device string, format sampleformat.Format, channels, rate int) (*PCM, error) {
	cDevice := C.CString(device)
	defer C.free(unsafe.Pointer(cDevice))

	var handle *C.snd_pcm_t
	if rc := C.snd_pcm_open(&handle, cDevice, C.SND_PCM_STREAM_PLAYBACK, 0); rc < 0 {
		return nil, perr.New(perr.Alsa, "snd_pcm_open", alsaErr(rc))
	}

	cFormat, err := alsaFormat(format)
	if err != nil {
		C.snd_pcm_close(handle)
		return nil, err
	}

	var params *C.snd_pcm_hw_params_t
	C.snd_pcm_hw_params_malloc(&params)
	defer C.snd_pcm_hw_params_free(params)
	C.snd_pcm_hw_params_any(handle, params)

	if rc := C.snd_pcm_hw_params_set_access(handle, params, C.SND_PCM_ACCESS_RW_INTERLEAVED); rc < 0 {
		C.snd_pcm_close(handle)
		return nil, perr.New(perr.Alsa, "set_access", alsaErr(rc))
	}
	if rc := C.snd_pcm_hw_params_set_format(handle, params, cFormat); rc < 0 {
		C.snd_pcm_close(handle)
		return nil, perr.New(perr.Alsa, "set_format", alsaErr(rc))
	}
	if rc := C.snd_pcm_hw_params_set_channels(handle, params, C.uint(channels)); rc < 0 {
		C.snd_pcm_close(handle)
		return nil, perr.New(perr.Alsa, "set_channels", alsaErr(rc))
	}

	actualRate := C.uint(rate)
	if rc := C.snd_pcm_hw_params_set_rate_near(handle, params, &actualRate, nil); rc < 0 {
		C.snd_pcm_close(handle)
		return nil, perr.New(perr.Alsa, "set_rate_near", alsaErr(rc))
	}

	if rc := C.snd_pcm_hw_params(handle, params); rc < 0 {
		C.snd_pcm_close(handle)
		return nil, perr.New(perr.Alsa, "hw_params", alsaErr(rc))
	}

	if rc := C.snd_pcm_prepare(handle); rc < 0 {
		C.snd_pcm_close(handle)
		return nil, perr.New(perr.Alsa, "prepare", alsaErr(rc))
	}

	return &PCM{handle: handle, channels: channels, format: format}, nil
}

func alsaErr(rc C.int) error {
	return fmt.Errorf("%s", C.GoString(C.snd_strerror(rc)))
}

// WriteI mirrors the teacher's audio_flush_real loop: on an EPIPE-class
// underrun, recover (prepare) and retry; on a partial write, the caller
// advances its own offset and calls again; only a persistent failure
// after maxWriteRetries surfaces as an error.
func (p *PCM) WriteI(samples []byte) (int, error) {
	bytesPerFrame := p.format.PhysicalWidth() * p.channels
	if bytesPerFrame == 0 || len(samples) < bytesPerFrame {
		return 0, nil
	}
	frames := C.snd_pcm_uframes_t(len(samples) / bytesPerFrame)

	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		rc := C.snd_pcm_writei(p.handle, unsafe.Pointer(&samples[0]), frames)
		if rc >= 0 {
			return int(rc), nil
		}

		switch C.int(rc) {
		case -C.EPIPE, -C.ESTRPIPE:
			if recoverRC := C.snd_pcm_recover(p.handle, C.int(rc), 1); recoverRC < 0 {
				return 0, perr.New(perr.Alsa, "writei/recover", alsaErr(recoverRC))
			}
			continue
		case -C.EBADFD:
			if prepRC := C.snd_pcm_prepare(p.handle); prepRC < 0 {
				return 0, perr.New(perr.Alsa, "writei/prepare", alsaErr(prepRC))
			}
			continue
		default:
			return 0, perr.New(perr.Alsa, "writei", alsaErr(C.int(rc)))
		}
	}

	return 0, perr.New(perr.Alsa, "writei", fmt.Errorf("exceeded %d recovery retries", maxWriteRetries))
}

// Delay returns the number of frames queued in the device but not yet
// played.
func (p *PCM) Delay() (int64, error) {
	var frames C.snd_pcm_sframes_t
	if rc := C.snd_pcm_delay(p.handle, &frames); rc < 0 {
		return 0, perr.New(perr.Alsa, "delay", alsaErr(rc))
	}
	return int64(frames), nil
}

func (p *PCM) State() (sink.State, error) {
	switch C.snd_pcm_state(p.handle) {
	case C.SND_PCM_STATE_OPEN:
		return sink.StateOpen, nil
	case C.SND_PCM_STATE_PREPARED:
		return sink.StatePrepared, nil
	case C.SND_PCM_STATE_RUNNING:
		return sink.StateRunning, nil
	case C.SND_PCM_STATE_XRUN:
		return sink.StateXRun, nil
	case C.SND_PCM_STATE_DRAINING:
		return sink.StateDraining, nil
	case C.SND_PCM_STATE_PAUSED:
		return sink.StatePaused, nil
	case C.SND_PCM_STATE_DISCONNECTED:
		return sink.StateDisconnected, nil
	default:
		return sink.StateOpen, nil
	}
}

func (p *PCM) Prepare() error {
	if rc := C.snd_pcm_prepare(p.handle); rc < 0 {
		return perr.New(perr.Alsa, "prepare", alsaErr(rc))
	}
	return nil
}

func (p *PCM) Drop() error {
	if rc := C.snd_pcm_drop(p.handle); rc < 0 {
		return perr.New(perr.Alsa, "drop", alsaErr(rc))
	}
	return nil
}

func (p *PCM) Drain() error {
	if rc := C.snd_pcm_drain(p.handle); rc < 0 {
		return perr.New(perr.Alsa, "drain", alsaErr(rc))
	}
	return nil
}

func (p *PCM) Close() error {
	if rc := C.snd_pcm_close(p.handle); rc < 0 {
		return perr.New(perr.Alsa, "close", alsaErr(rc))
	}
	return nil
}
