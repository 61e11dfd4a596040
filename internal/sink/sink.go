// Package sink defines the PCM playback and mixer capability set the
// Player requires, kept separate from any concrete backend so the
// Player and Jukebox can be tested against an in-memory fake.
package sink

// State mirrors the handful of ALSA PCM states the Player inspects.
type State int

const (
	StateOpen State = iota
	StatePrepared
	StateRunning
	StateXRun
	StateDraining
	StatePaused
	StateDisconnected
)

// PCM is the playback-side capability set: open a named device,
// interleaved access, a fixed format/channels/rate, and the handful of
// ALSA-shaped operations the Player's write loop needs.
type PCM interface {
	// WriteI writes interleaved sample bytes and returns the number of
	// frames actually written (may be less than requested on a partial
	// write; never an error purely for writing zero frames).
	WriteI(samples []byte) (framesWritten int, err error)
	// Delay returns the number of frames already handed to the device
	// but not yet acoustically reproduced.
	Delay() (frames int64, err error)
	State() (State, error)
	Prepare() error
	Drop() error
	Drain() error
	Close() error
}

// Mixer is the "Master" simple-element capability set.
type Mixer interface {
	// SetVolume sets the named element's playback volume on every
	// channel. v is 0..512, the element's native range, and is passed
	// through without rescaling.
	SetVolume(v int) error
	Close() error
}
