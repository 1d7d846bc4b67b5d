package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgress MsgKind = iota
	MsgLoaded
	MsgNowPlaying
	MsgCommandDone
)

type loaded struct {
	tracks  []*models.Track
	cached  bool
	added   int
	removed int
	resync  bool
	warning error
	err     error
}

type commandDone struct {
	action string
	err    error
}

// progressMsg is the constructor for [MsgProgress]
func progressMsg(p tasks.Progress[models.Track]) Msg {
	return Msg{kind: MsgProgress, data: p}
}

// loadedMsg is the constructor for [MsgLoaded]
func loadedMsg(l loaded) Msg {
	return Msg{kind: MsgLoaded, data: l}
}

// NowPlaying wraps a playback state update for [tea.Program.Send].
func NowPlaying(state models.PlaybackState) Msg {
	return Msg{kind: MsgNowPlaying, data: state}
}

// commandDoneMsg is the constructor for [MsgCommandDone]
func commandDoneMsg(action string, err error) Msg {
	return Msg{kind: MsgCommandDone, data: commandDone{action: action, err: err}}
}
