// Package player implements the per-song audio worker: read WAV bytes,
// reinterpret as typed samples, run them through the TSM pipeline, and
// feed a PCM sink at real time while concurrently draining a stream of
// pause/resume/seek/speed/terminate commands.
package player

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/wavplayer/internal/event"
	"github.com/doismellburning/wavplayer/internal/perr"
	"github.com/doismellburning/wavplayer/internal/sampleformat"
	"github.com/doismellburning/wavplayer/internal/sink"
	"github.com/doismellburning/wavplayer/internal/tsm"
	"github.com/doismellburning/wavplayer/internal/wavfile"
)

type state int

const (
	stopped state = iota
	playing
)

// Player is a single song's audio-production worker. Construct with New,
// then run it on its own goroutine via Run.
type Player struct {
	handle event.Handle
	logger *log.Logger

	reader   io.ReadSeekCloser
	br       *bufio.Reader
	format   sampleformat.Format
	channels int
	rate     int

	sink sink.PCM

	pchan *event.Queue[event.PlayerEvent]
	gchan *event.Queue[event.GUIMessage]
	mchan *event.Queue[event.Command]

	// progressMu guards progress: the Player's own goroutine mutates it
	// every loop iteration while the GUI goroutine reads a snapshot on
	// every display tick.
	progressMu sync.Mutex
	progress   event.Progress
	multiplier int // 1..4, half-speed units

	bytesPerFrame  int // one frame = one sample per channel
	sizePerSecond  int64
	peekBufferSize int

	// w holds TSM output awaiting a writei call; wb/we index the
	// unwritten slice w[wb:we].
	w      []byte
	wb, we int

	// in/out are the scratch buffers the TSM pipeline reads and writes,
	// sized for the largest multiplier so they never need reallocating
	// across a SetMultiplier.
	inSamples  []float64
	outSamples []float64
}

// New constructs a Player for one song. spec and reader come from
// wavfile.Open; sinkDev is an already-opened, already-configured PCM
// device matching spec's resolved sink format.
func New(spec wavfile.Spec, reader io.ReadSeekCloser, sinkDev sink.PCM, initialMultiplier int, logger *log.Logger) (*Player, error) {
	format, err := spec.SinkFormat()
	if err != nil {
		return nil, err
	}

	// reader is positioned at the first sample; progress offsets are
	// absolute file offsets, so begin is that position.
	begin, err := reader.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, perr.New(perr.Io, "New", err)
	}

	bytesPerFrame := format.PhysicalWidth() * spec.Channels
	peekBufferSize := roundUpToBlock(2*tsm.MaxBuffer*format.PhysicalWidth()*spec.Channels, tsm.Block*bytesPerFrame)

	p := &Player{
		handle:         event.NewHandle(),
		logger:         logger,
		reader:         reader,
		br:             bufio.NewReaderSize(reader, peekBufferSize),
		format:         format,
		channels:       spec.Channels,
		rate:           spec.SampleRate,
		sink:           sinkDev,
		pchan:          event.NewQueue[event.PlayerEvent](),
		gchan:          nil,
		multiplier:     initialMultiplier,
		bytesPerFrame:  bytesPerFrame,
		sizePerSecond:  int64(bytesPerFrame) * int64(spec.SampleRate),
		peekBufferSize: peekBufferSize,
		progress: event.Progress{
			Begin: begin,
			Pos:   begin,
			End:   begin + int64(spec.NumSamples)*int64(bytesPerFrame),
		},
		inSamples:  make([]float64, spec.Channels*tsm.BufferSize(4)),
		outSamples: make([]float64, spec.Channels*tsm.Block),
	}

	return p, nil
}

func roundUpToBlock(n, block int) int {
	if block <= 0 {
		return n
	}
	return ((n + block - 1) / block) * block
}

// Handle is this Player's stable identity token, attached to its
// PlayerEnd event so the Jukebox can discard stale reports.
func (p *Player) Handle() event.Handle { return p.handle }

// Commands returns the p-channel the Jukebox sends PlayerEvents down.
func (p *Player) Commands() *event.Queue[event.PlayerEvent] { return p.pchan }

// AttachGUIChannel wires the g-channel the Player publishes progress
// updates to.
func (p *Player) AttachGUIChannel(g *event.Queue[event.GUIMessage]) { p.gchan = g }

// AttachJukeboxChannel wires the m-channel the Player's drop-hook sends
// its PlayerEnd event to.
func (p *Player) AttachJukeboxChannel(m *event.Queue[event.Command]) { p.mchan = m }

// ProgressView returns the publishable read-only window onto this
// Player's position, valid for as long as the Player is alive.
func (p *Player) ProgressView() *event.ProgressView {
	return &event.ProgressView{
		Snapshot:      p.snapshotProgress,
		Multiplier:    func() int { return p.multiplier },
		Duration:      p.progress.End - p.progress.Begin,
		SizePerSecond: p.sizePerSecond,
	}
}

func (p *Player) snapshotProgress() event.Progress {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	return p.progress
}

// mutateProgress applies f to progress under progressMu, then clamps.
func (p *Player) mutateProgress(f func(*event.Progress)) {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	f(&p.progress)
	p.progress.Clamp()
}

// Run drives the state machine to completion: natural end-of-file,
// Terminate, or a fatal error. It always publishes ProgressAccess{nil}
// and PlayerEnd on the way out, mirroring the source's drop-hook.
func (p *Player) Run(ctx context.Context) error {
	defer p.onExit()

	st := stopped
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		switch st {
		case stopped:
			next, err := p.stepStopped(ctx)
			if err != nil {
				return err
			}
			if next == nil {
				return nil // Terminate
			}
			st = *next
		case playing:
			next, err := p.stepPlaying()
			if err != nil {
				p.logger.Error("player terminating on error", "handle", p.handle, "err", err)
				return err
			}
			if next == nil {
				return nil // Terminate or clean natural end
			}
			st = *next
		}
	}
}

func (p *Player) onExit() {
	if p.gchan != nil {
		p.gchan.Send(event.ProgressAccess{Handle: p.handle, View: nil})
	}
	if p.mchan != nil {
		p.mchan.Send(event.PlayerEnd{Handle: p.handle})
	}
	p.reader.Close()
}

func playingState() *state { s := playing; return &s }
func stoppedState() *state { s := stopped; return &s }

// stepStopped blocks on the p-channel (the sole suspension point while
// Stopped) and applies exactly one command.
func (p *Player) stepStopped(ctx context.Context) (*state, error) {
	ev, err := p.pchan.Recv(ctx)
	if err != nil {
		return nil, nil // channel gone or ctx cancelled: treat as Terminate
	}

	switch e := ev.(type) {
	case event.Terminate:
		return nil, nil
	case event.Resume:
		p.resetOutputBuffer()
		return playingState(), nil
	case event.Pause:
		return stoppedState(), nil
	case event.Move:
		p.applySeek(int64(e.Seconds) * p.sizePerSecond)
		return stoppedState(), nil
	case event.SetMultiplier:
		p.multiplier = clampMultiplier(e.Multiplier)
		return stoppedState(), nil
	default:
		return stoppedState(), nil
	}
}

func clampMultiplier(m int) int {
	if m < 1 {
		return 1
	}
	if m > 4 {
		return 4
	}
	return m
}

func (p *Player) resetOutputBuffer() {
	if p.w == nil {
		p.w = make([]byte, p.channels*tsm.Block*8) // widest physical width (Float64LE)
	}
	p.wb, p.we = 0, 0
}

// applySeek applies a relative byte offset directly to pos (the Stopped
// "apply, stay" transition: no sink backlog to normalize against).
func (p *Player) applySeek(deltaBytes int64) {
	p.mutateProgress(func(pr *event.Progress) { pr.Pos += deltaBytes })
	p.seekReaderTo(p.progress.Pos)
}

func (p *Player) seekReaderTo(pos int64) {
	if _, err := p.reader.Seek(pos, io.SeekStart); err != nil {
		p.logger.Error("seek failed", "err", err)
		return
	}
	p.br.Reset(p.reader)
}

// normalize implements the Playing->Stopped (and mid-Playing) transition
// shared by Pause, Move, and SetMultiplier: drop any sink-buffered audio,
// prepare the sink again, and pull pos back by the delay that was
// in flight at the moment of the command.
func (p *Player) normalize() error {
	delayFrames, err := p.sink.Delay()
	if err != nil {
		return perr.New(perr.Alsa, "normalize/delay", err)
	}
	delayBytes := int64(delayFrames) * int64(p.bytesPerFrame)

	if err := p.sink.Drop(); err != nil {
		return perr.New(perr.Alsa, "normalize/drop", err)
	}
	if err := p.sink.Prepare(); err != nil {
		return perr.New(perr.Alsa, "normalize/prepare", err)
	}

	p.mutateProgress(func(pr *event.Progress) { pr.Pos -= delayBytes })
	p.seekReaderTo(p.progress.Pos)
	p.resetOutputBuffer()

	return nil
}

// stepPlaying runs steps 1-7 of the read-resample-write loop once.
func (p *Player) stepPlaying() (*state, error) {
	delayFrames, err := p.sink.Delay()
	if err != nil {
		return nil, perr.New(perr.Alsa, "delay", err)
	}
	p.mutateProgress(func(pr *event.Progress) { pr.Delay = int64(delayFrames) * int64(p.bytesPerFrame) })

	if ev, ok := p.pchan.TryRecv(); ok {
		return p.applyPlayingCommand(ev)
	}

	if p.wb != p.we {
		n, err := p.sink.WriteI(p.w[p.wb:p.we])
		if err != nil {
			return nil, err
		}
		p.wb += n * p.bytesPerFrame
		return playingState(), nil
	}

	return p.produceMore()
}

func (p *Player) applyPlayingCommand(ev event.PlayerEvent) (*state, error) {
	switch e := ev.(type) {
	case event.Terminate:
		return nil, nil
	case event.Pause:
		if err := p.normalize(); err != nil {
			return nil, err
		}
		return stoppedState(), nil
	case event.Move:
		if err := p.normalize(); err != nil {
			return nil, err
		}
		p.applySeek(int64(e.Seconds) * p.sizePerSecond)
		return playingState(), nil
	case event.SetMultiplier:
		if err := p.normalize(); err != nil {
			return nil, err
		}
		p.multiplier = clampMultiplier(e.Multiplier)
		return playingState(), nil
	case event.Resume:
		return playingState(), nil
	default:
		return playingState(), nil
	}
}

// produceMore implements steps 4-7: peek, pad at EOF if needed, run TSM,
// and stage its output for the next write.
func (p *Player) produceMore() (*state, error) {
	peekLen := p.peekBufferSize
	peeked, peekErr := p.br.Peek(peekLen)
	if peekErr != nil && peekErr != io.EOF && peekErr != bufio.ErrBufferFull {
		return nil, perr.New(perr.Io, "peek", peekErr)
	}

	if len(peeked) == 0 {
		return p.handleEOF()
	}

	m := p.multiplier
	blockSamples := p.channels * tsm.BufferSize(m)
	blockBytes := blockSamples * p.format.PhysicalWidth()

	var inputBytes []byte
	atEOF := len(peeked) < peekLen
	if len(peeked) < blockBytes {
		if !atEOF {
			// Buffered less than one block but not at EOF: nothing to
			// do yet, spin until more is buffered.
			return playingState(), nil
		}
		inputBytes = make([]byte, blockBytes)
		copy(inputBytes, peeked)
	} else {
		inputBytes = peeked[:blockBytes]
	}

	decodeInto(p.format, inputBytes, p.inSamples[:blockSamples])

	consumed, produced := tsm.Process(p.channels, m, p.inSamples[:blockSamples], p.outSamples[:p.channels*tsm.Block])

	consumedBytes := consumed * p.format.PhysicalWidth()
	if consumedBytes > len(peeked) {
		consumedBytes = len(peeked)
	}
	if _, err := p.br.Discard(consumedBytes); err != nil {
		return nil, perr.New(perr.Io, "discard", err)
	}
	p.mutateProgress(func(pr *event.Progress) { pr.Pos += int64(consumedBytes) })

	producedBytes := produced * p.format.PhysicalWidth()
	if cap(p.w) < producedBytes {
		p.w = make([]byte, producedBytes)
	}
	encodeFrom(p.format, p.outSamples[:produced], p.w[:producedBytes])
	p.wb, p.we = 0, producedBytes

	return playingState(), nil
}

func (p *Player) handleEOF() (*state, error) {
	st, err := p.sink.State()
	if err != nil {
		return nil, perr.New(perr.Alsa, "state", err)
	}
	if st == sink.StateRunning {
		return playingState(), nil // still draining what's queued
	}
	if p.progress.Pos == p.progress.End {
		return nil, nil // clean natural end
	}
	return nil, perr.New(perr.Io, "handleEOF", fmt.Errorf("drained before end of stream: pos=%d end=%d", p.progress.Pos, p.progress.End))
}

func decodeInto(f sampleformat.Format, b []byte, out []float64) {
	w := f.PhysicalWidth()
	for i := range out {
		out[i] = f.ToF64(b[i*w : i*w+w])
	}
}

func encodeFrom(f sampleformat.Format, in []float64, out []byte) {
	w := f.PhysicalWidth()
	for i, v := range in {
		f.FromF64(v, out[i*w:i*w+w])
	}
}
