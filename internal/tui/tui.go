// Package tui is the concrete GUI instance: a terminal control surface
// satisfying the event vocabulary the Jukebox and Player consume. It
// puts the controlling tty into raw mode exactly as the teacher's
// serial_port_open does for a serial device, using the same pkg/term
// single-byte-read idiom for its keyboard loop.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/pkg/term"

	"github.com/doismellburning/wavplayer/internal/event"
	"github.com/doismellburning/wavplayer/internal/jukebox"
)

// tick is the GUI's display cadence.
const tick = 5 * time.Millisecond

const timeFormat = "%M:%S"

// TUI drives the raw terminal: one goroutine reads keystrokes and
// translates them to Commands, another ticks the display from the
// g-channel's published progress view.
type TUI struct {
	fd     *term.Term
	mchan  *event.Queue[event.Command]
	gchan  *event.Queue[event.GUIMessage]
	songs  []jukebox.Song
	logger *log.Logger

	current       *event.ProgressView
	curIdx        int
	currentHandle event.Handle
}

// Open puts the controlling tty into raw mode.
func Open(jb *jukebox.Jukebox, logger *log.Logger) (*TUI, error) {
	fd, err := term.Open("/dev/tty", term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("opening controlling tty: %w", err)
	}

	return &TUI{
		fd:     fd,
		mchan:  jb.Commands(),
		gchan:  jb.GUIChannel(),
		songs:  jb.Songs(),
		logger: logger,
	}, nil
}

func (t *TUI) Close() error { return t.fd.Close() }

// Run drives the keyboard and display loops until ctx is cancelled or
// the user sends Close.
func (t *TUI) Run(ctx context.Context) {
	keys := make(chan byte, 16)
	go t.readKeys(keys)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case k := <-keys:
			if done := t.handleKey(k); done {
				return
			}
		case <-ticker.C:
			t.drainGUIMessages()
			t.render()
		}
	}
}

// readKeys mirrors the teacher's serial_port_get1: one byte at a time,
// returning (and so ending keyboard input) on the first read error.
func (t *TUI) readKeys(out chan<- byte) {
	buf := make([]byte, 1)
	for {
		n, err := t.fd.Read(buf)
		if err != nil {
			return
		}
		if n == 1 {
			out <- buf[0]
		}
	}
}

func (t *TUI) handleKey(k byte) (done bool) {
	switch k {
	case ' ':
		t.mchan.Send(event.Dispatch{Event: event.Resume{}})
	case 'p':
		t.mchan.Send(event.Dispatch{Event: event.Pause{}})
	case 'n':
		t.mchan.Send(event.SwitchSong{Seek: event.Seek{Mode: event.SeekCurrent, Delta: 1}})
	case 'b':
		t.mchan.Send(event.SwitchSong{Seek: event.Seek{Mode: event.SeekCurrent, Delta: -1}})
	case 'h':
		t.mchan.Send(event.Dispatch{Event: event.Move{Seconds: -5}})
	case 'l':
		t.mchan.Send(event.Dispatch{Event: event.Move{Seconds: 5}})
	case '1', '2', '3', '4':
		t.mchan.Send(event.Dispatch{Event: event.SetMultiplier{Multiplier: int(k - '0')}})
	case '+':
		t.mchan.Send(event.SetVolume{Volume: 512})
	case '-':
		t.mchan.Send(event.SetVolume{Volume: 0})
	case 'q':
		t.mchan.Send(event.Close{})
		return true
	}
	return false
}

// drainGUIMessages applies pending messages, ignoring any ProgressAccess
// whose Handle doesn't name the Player currently in view. SwitchSong's
// outgoing Player is only asynchronously Terminated, so its drop-hook
// ProgressAccess{oldHandle, nil} can reach the g-channel after the new
// Player's SwitchSongNotice/ProgressAccess pair; without this check that
// stale nil would wipe the display for the song now actually playing.
func (t *TUI) drainGUIMessages() {
	for {
		msg, ok := t.gchan.TryRecv()
		if !ok {
			return
		}
		switch m := msg.(type) {
		case event.SwitchSongNotice:
			t.curIdx = m.Index
			t.currentHandle = m.Handle
		case event.ProgressAccess:
			if m.Handle != t.currentHandle {
				continue
			}
			t.current = m.View
		}
	}
}

func (t *TUI) render() {
	if t.current == nil || t.current.Snapshot == nil {
		return
	}

	p := t.current.Snapshot()
	displayed := p.DisplayedPos(0, t.current.Multiplier())
	elapsed := time.Duration(displayed-p.Begin) * time.Second / time.Duration(max64(t.current.SizePerSecond, 1))
	total := time.Duration(t.current.Duration) * time.Second / time.Duration(max64(t.current.SizePerSecond, 1))

	name := "?"
	if t.curIdx >= 0 && t.curIdx < len(t.songs) {
		name = t.songs[t.curIdx].Path
	}

	elapsedStr, _ := strftime.Format(timeFormat, time.Unix(int64(elapsed.Seconds()), 0).UTC())
	totalStr, _ := strftime.Format(timeFormat, time.Unix(int64(total.Seconds()), 0).UTC())

	fmt.Fprintf(t.fd, "\r%s  %s/%s  x%d  \x1b[K", name, elapsedStr, totalStr, t.current.Multiplier())
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
