// Package jukebox implements the supervising orchestration layer: it
// owns the song list, runs exactly one Player at a time, demultiplexes
// GUI commands to itself or the active Player, and reconciles stale
// end-of-song reports from Players whose lifetime has already ended.
package jukebox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/wavplayer/internal/event"
	"github.com/doismellburning/wavplayer/internal/perr"
	"github.com/doismellburning/wavplayer/internal/player"
	"github.com/doismellburning/wavplayer/internal/sink"
	"github.com/doismellburning/wavplayer/internal/wavfile"
)

// Song is an immutable, loaded-at-startup catalog entry.
type Song struct {
	Path string
	Spec wavfile.Spec
}

// PlayerFactory constructs a ready-to-run Player for the song at path,
// with initial multiplier m. Production wiring opens the WAV file and a
// real ALSA PCM device; tests substitute an in-memory reader and a fake
// sink.
type PlayerFactory func(path string, m int) (*player.Player, error)

// Jukebox is the orchestration layer described above.
type Jukebox struct {
	songs      []Song
	currentIdx int

	mchan *event.Queue[event.Command]
	gchan *event.Queue[event.GUIMessage]

	mixer         sink.Mixer
	newPlayer     PlayerFactory
	multiplier    int
	currentCmds   *event.Queue[event.PlayerEvent]
	currentHandle event.Handle

	logger *log.Logger
}

// Load scans dir non-recursively; each entry is probed as a WAV header.
// Failures are skipped with a log line, not surfaced. An empty result is
// a Format.ErrNotFound-class error.
func Load(dir string, mixer sink.Mixer, newPlayer PlayerFactory, logger *log.Logger) (*Jukebox, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, perr.New(perr.Io, "Load", err)
	}

	var songs []Song
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		spec, reader, err := wavfile.Open(path)
		if err != nil {
			logger.Info("skipping non-WAV or unsupported file", "path", path, "err", err)
			continue
		}
		reader.Close()
		songs = append(songs, Song{Path: path, Spec: spec})
	}

	if len(songs) == 0 {
		return nil, perr.New(perr.Format, "Load", fmt.Errorf("%w: no songs found in %s", perr.ErrNotFound, dir))
	}

	sort.Slice(songs, func(i, j int) bool { return songs[i].Path < songs[j].Path })

	return &Jukebox{
		songs:      songs,
		currentIdx: -1,
		mchan:      event.NewQueue[event.Command](),
		gchan:      event.NewQueue[event.GUIMessage](),
		mixer:      mixer,
		newPlayer:  newPlayer,
		multiplier: 2, // 1x
		logger:     logger,
	}, nil
}

// Commands returns the m-channel the GUI sends Commands down.
func (j *Jukebox) Commands() *event.Queue[event.Command] { return j.mchan }

// GUIChannel returns the g-channel the GUI reads progress/switch
// notifications from.
func (j *Jukebox) GUIChannel() *event.Queue[event.GUIMessage] { return j.gchan }

// Songs returns the loaded, sorted song catalog.
func (j *Jukebox) Songs() []Song { return j.songs }

// SetVolume sets the playback volume on all channels of the mixer
// element the Jukebox was loaded with; that element is resolved once,
// before Load, not on the first SetVolume call. Value is 0..512; a CLI level l in 0..4 maps to
// v = 128*l by the caller. Calling with no active Player is a pure
// mixer side effect (Open Question b): playing state is unaffected.
func (j *Jukebox) SetVolume(v int) error {
	if v < 0 {
		v = 0
	}
	if v > 512 {
		v = 512
	}
	return j.mixer.SetVolume(v)
}

func resolveIndex(seek event.Seek, current, n int) int {
	mod := func(a, n int) int {
		m := a % n
		if m < 0 {
			m += n
		}
		return m
	}
	switch seek.Mode {
	case event.SeekStart:
		return mod(seek.Delta, n)
	case event.SeekCurrent:
		return mod(current+seek.Delta, n)
	case event.SeekEnd:
		return mod(n+seek.Delta, n)
	default:
		return current
	}
}

// SwitchSong terminates the outgoing Player (best-effort, asynchronous)
// and starts the one named by seek. A no-op if seek resolves to the
// already-current index.
func (j *Jukebox) SwitchSong(ctx context.Context, seek event.Seek) error {
	n := len(j.songs)
	target := resolveIndex(seek, j.currentIdx, n)
	if target == j.currentIdx {
		return nil
	}

	if j.currentCmds != nil {
		j.currentCmds.Send(event.Terminate{})
	}

	song := j.songs[target]
	p, err := j.newPlayer(song.Path, j.multiplier)
	if err != nil {
		return err
	}

	p.AttachGUIChannel(j.gchan)
	p.AttachJukeboxChannel(j.mchan)

	j.currentIdx = target
	j.currentCmds = p.Commands()
	j.currentHandle = p.Handle()

	j.gchan.Send(event.SwitchSongNotice{Index: target, Handle: j.currentHandle})
	j.gchan.Send(event.ProgressAccess{Handle: j.currentHandle, View: p.ProgressView()})

	go func() {
		if err := p.Run(ctx); err != nil {
			j.logger.Error("player exited with error", "path", song.Path, "err", err)
		}
	}()

	return nil
}

// Run starts the first song and blocks dispatching commands from the
// m-channel until Close.
func (j *Jukebox) Run(ctx context.Context) error {
	if err := j.SwitchSong(ctx, event.Seek{Mode: event.SeekStart, Delta: 0}); err != nil {
		return err
	}
	if j.currentCmds != nil {
		j.currentCmds.Send(event.Resume{})
	}

	for {
		cmd, err := j.mchan.Recv(ctx)
		if err != nil {
			return nil
		}

		switch c := cmd.(type) {
		case event.PlayerEnd:
			if c.Handle != j.currentHandle {
				continue // stale, per I5
			}
			if err := j.SwitchSong(ctx, event.Seek{Mode: event.SeekCurrent, Delta: 1}); err != nil {
				return err
			}
			if j.currentCmds != nil {
				j.currentCmds.Send(event.Resume{})
			}
		case event.Close:
			j.Shutdown()
			return nil
		case event.Dispatch:
			if j.currentCmds != nil {
				j.currentCmds.Send(c.Event)
			}
		case event.SwitchSong:
			if err := j.SwitchSong(ctx, c.Seek); err != nil {
				return err
			}
			if j.currentCmds != nil {
				j.currentCmds.Send(event.Resume{})
			}
		case event.SetVolume:
			if err := j.SetVolume(c.Volume); err != nil {
				j.logger.Error("set_volume failed", "err", err)
			}
		}
	}
}

// Shutdown best-effort terminates the current Player, mirroring the
// source's drop behavior.
func (j *Jukebox) Shutdown() {
	if j.currentCmds != nil {
		j.currentCmds.Send(event.Terminate{})
	}
}
