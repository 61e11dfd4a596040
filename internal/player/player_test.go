package player

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/wavplayer/internal/event"
	"github.com/doismellburning/wavplayer/internal/sink"
	"github.com/doismellburning/wavplayer/internal/tsm"
	"github.com/doismellburning/wavplayer/internal/wavfile"
)

// fakeSink accepts every write instantly and reports no queued delay, so
// tests can exercise the Player's state machine without real hardware.
type fakeSink struct {
	written    []byte
	bytesFrame int
}

func (f *fakeSink) WriteI(samples []byte) (int, error) {
	f.written = append(f.written, samples...)
	return len(samples) / f.bytesFrame, nil
}
func (f *fakeSink) Delay() (int64, error)      { return 0, nil }
func (f *fakeSink) State() (sink.State, error) { return sink.StatePrepared, nil }
func (f *fakeSink) Prepare() error             { return nil }
func (f *fakeSink) Drop() error                { return nil }
func (f *fakeSink) Drain() error               { return nil }
func (f *fakeSink) Close() error               { return nil }

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func monoS16Spec(numSamples int) (wavfile.Spec, []byte) {
	data := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		v := int16(i % 1000)
		data[2*i] = byte(v)
		data[2*i+1] = byte(v >> 8)
	}
	return wavfile.Spec{
		IsFloat:        false,
		BitsPerSample:  16,
		BytesPerSample: 2,
		Channels:       1,
		SampleRate:     44100,
		NumSamples:     int64(numSamples),
	}, data
}

func Test_playThroughReachesEnd(t *testing.T) {
	spec, data := monoS16Spec(2000)
	reader := nopCloser{bytes.NewReader(data)}
	fs := &fakeSink{bytesFrame: 2}

	p, err := New(spec, reader, fs, 2, testLogger())
	require.NoError(t, err)

	g := event.NewQueue[event.GUIMessage]()
	p.AttachGUIChannel(g)
	p.Commands().Send(event.Resume{})

	err = p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, p.progress.End, p.progress.Pos)
	assert.True(t, p.progress.Pos >= p.progress.Begin)

	msg, ok := g.TryRecv()
	require.True(t, ok)
	pa, ok := msg.(event.ProgressAccess)
	require.True(t, ok)
	assert.Nil(t, pa.View)
	assert.Equal(t, p.handle, pa.Handle)
}

func Test_terminateExitsCleanly(t *testing.T) {
	spec, data := monoS16Spec(100000)
	reader := nopCloser{bytes.NewReader(data)}
	fs := &fakeSink{bytesFrame: 2}

	p, err := New(spec, reader, fs, 2, testLogger())
	require.NoError(t, err)
	p.AttachGUIChannel(event.NewQueue[event.GUIMessage]())
	p.Commands().Send(event.Terminate{})

	err = p.Run(context.Background())
	require.NoError(t, err)
}

// Test_seekForwardWhilePlayingAdvancesByRequestedSeconds exercises
// scenario 2: a Move sent mid-playback repositions pos by the requested
// number of seconds (clamped to end), with no other side effects on the
// playing state. The fakeSink reports zero delay, so normalize's pullback
// is a no-op and the only expected movement is the seek itself.
func Test_seekForwardWhilePlayingAdvancesByRequestedSeconds(t *testing.T) {
	spec, data := monoS16Spec(400_000)
	reader := nopCloser{bytes.NewReader(data)}
	fs := &fakeSink{bytesFrame: 2}

	p, err := New(spec, reader, fs, 2, testLogger())
	require.NoError(t, err)
	p.AttachGUIChannel(event.NewQueue[event.GUIMessage]())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Commands().Send(event.Resume{})
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return p.snapshotProgress().Pos > 0
	}, time.Second, time.Millisecond)

	before := p.snapshotProgress()
	p.Commands().Send(event.Move{Seconds: 5})

	wantPos := before.Pos + 5*p.sizePerSecond
	if wantPos > before.End {
		wantPos = before.End
	}

	// Bound the drift between the snapshot above and the Move actually
	// applying by one TSM input block at the widest multiplier
	// (BufferSize(4) two-byte samples), since at most one produceMore call can race the command.
	tolerance := int64(tsm.BufferSize(4) * 2)

	require.Eventually(t, func() bool {
		pos := p.snapshotProgress().Pos
		return pos >= wantPos-tolerance && pos <= wantPos+tolerance
	}, time.Second, time.Millisecond)
}

// Test_doubleSpeedPlaythroughReachesEnd exercises scenario 3 end to end
// (not just the isolated TSM-level accounting): multiplier 4 (2x) still
// drains the full song and reaches a clean PlayerEnd.
func Test_doubleSpeedPlaythroughReachesEnd(t *testing.T) {
	spec, data := monoS16Spec(200_000)
	reader := nopCloser{bytes.NewReader(data)}
	fs := &fakeSink{bytesFrame: 2}

	p, err := New(spec, reader, fs, 4, testLogger())
	require.NoError(t, err)

	g := event.NewQueue[event.GUIMessage]()
	p.AttachGUIChannel(g)
	p.Commands().Send(event.Resume{})

	err = p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, p.progress.End, p.progress.Pos)
}

func Test_pauseThenResumeNormalizesPosition(t *testing.T) {
	spec, data := monoS16Spec(1_000_000)
	reader := nopCloser{bytes.NewReader(data)}
	fs := &fakeSink{bytesFrame: 2}

	p, err := New(spec, reader, fs, 2, testLogger())
	require.NoError(t, err)
	p.AttachGUIChannel(event.NewQueue[event.GUIMessage]())

	p.Commands().Send(event.Resume{})
	go func() {
		p.Commands().Send(event.Pause{})
		p.Commands().Send(event.Resume{})
		p.Commands().Send(event.Terminate{})
	}()

	err = p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, p.progress.Pos <= p.progress.End)
	assert.True(t, p.progress.Pos >= p.progress.Begin)
}
