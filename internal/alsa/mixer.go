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
)

// Mixer binds the "Master" simple mixer element. Unlike PCM playback,
// the teacher's audio.go never touches a mixer element at all; this is
// new ground covered in the same cgo idiom.
type Mixer struct {
	handle *C.snd_mixer_t
	elem   *C.snd_mixer_elem_t
}

// OpenMixer opens the default mixer, attaches cardName (e.g. "default"),
// and resolves the named simple element (e.g. "Master").
func OpenMixer(cardName, elementName string) (*Mixer, error) {
	var handle *C.snd_mixer_t
	if rc := C.snd_mixer_open(&handle, 0); rc < 0 {
		return nil, perr.New(perr.Alsa, "snd_mixer_open", alsaErr(rc))
	}

	cCard := C.CString(cardName)
	defer C.free(unsafe.Pointer(cCard))
	if rc := C.snd_mixer_attach(handle, cCard); rc < 0 {
		C.snd_mixer_close(handle)
		return nil, perr.New(perr.Alsa, "snd_mixer_attach", alsaErr(rc))
	}

	if rc := C.snd_mixer_selem_register(handle, nil, nil); rc < 0 {
		C.snd_mixer_close(handle)
		return nil, perr.New(perr.Alsa, "snd_mixer_selem_register", alsaErr(rc))
	}

	if rc := C.snd_mixer_load(handle); rc < 0 {
		C.snd_mixer_close(handle)
		return nil, perr.New(perr.Alsa, "snd_mixer_load", alsaErr(rc))
	}

	var sid *C.snd_mixer_selem_id_t
	C.snd_mixer_selem_id_malloc(&sid)
	defer C.snd_mixer_selem_id_free(sid)

	cName := C.CString(elementName)
	defer C.free(unsafe.Pointer(cName))
	C.snd_mixer_selem_id_set_index(sid, 0)
	C.snd_mixer_selem_id_set_name(sid, cName)

	elem := C.snd_mixer_find_selem(handle, sid)
	if elem == nil {
		C.snd_mixer_close(handle)
		return nil, perr.New(perr.Alsa, "snd_mixer_find_selem", fmt.Errorf("element %q not found", elementName))
	}

	return &Mixer{handle: handle, elem: elem}, nil
}

// clampNative clamps v to this target's native mixer range, 0..512. No
// min/max query or rescale belongs here: the native range is 0..512 by
// definition, so the clamped value passes straight through to ALSA.
func clampNative(v int) int {
	if v < 0 {
		return 0
	}
	if v > 512 {
		return 512
	}
	return v
}

// SetVolume sets every playback channel to v directly.
func (m *Mixer) SetVolume(v int) error {
	native := clampNative(v)

	if rc := C.snd_mixer_selem_set_playback_volume_all(m.elem, C.long(native)); rc < 0 {
		return perr.New(perr.Alsa, "set_playback_volume_all", alsaErr(rc))
	}
	return nil
}

func (m *Mixer) Close() error {
	if rc := C.snd_mixer_close(m.handle); rc < 0 {
		return perr.New(perr.Alsa, "close", alsaErr(rc))
	}
	return nil
}
