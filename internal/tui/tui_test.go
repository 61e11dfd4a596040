package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/wavplayer/internal/event"
)

// Test_drainGUIMessages_ignoresStaleProgressAccess exercises the ordering
// scenario 4 depends on at the GUI layer: SwitchSong's outgoing Player is
// only asynchronously Terminated, so its drop-hook ProgressAccess{old, nil}
// can reach the g-channel after the new Player's own
// SwitchSongNotice/ProgressAccess pair. The view in place must survive
// that stale nil.
func Test_drainGUIMessages_ignoresStaleProgressAccess(t *testing.T) {
	tui := &TUI{gchan: event.NewQueue[event.GUIMessage]()}

	newView := &event.ProgressView{}
	tui.gchan.Send(event.SwitchSongNotice{Index: 1, Handle: 2})
	tui.gchan.Send(event.ProgressAccess{Handle: 2, View: newView})
	tui.drainGUIMessages()

	assert.Same(t, newView, tui.current)
	assert.Equal(t, event.Handle(2), tui.currentHandle)

	tui.gchan.Send(event.ProgressAccess{Handle: 1, View: nil})
	tui.drainGUIMessages()

	assert.Same(t, newView, tui.current, "stale drop-hook ProgressAccess must not wipe the live view")
}

func Test_drainGUIMessages_appliesMatchingRetraction(t *testing.T) {
	tui := &TUI{gchan: event.NewQueue[event.GUIMessage]()}

	tui.gchan.Send(event.SwitchSongNotice{Index: 0, Handle: 1})
	tui.gchan.Send(event.ProgressAccess{Handle: 1, View: &event.ProgressView{}})
	tui.drainGUIMessages()
	require.NotNil(t, tui.current)

	tui.gchan.Send(event.ProgressAccess{Handle: 1, View: nil})
	tui.drainGUIMessages()

	assert.Nil(t, tui.current)
}
