package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/shared"
	"github.com/desertthunder/sift/internal/tasks"
)

// Library loads the saved tracks.
type Library interface {
	FetchLibraryTracks(ctx context.Context, force bool, progress tasks.ProgressFunc[models.Track]) (*tasks.FetchResult[models.Track], error)
	ResyncLibraryTracks(ctx context.Context, progress tasks.ProgressFunc[models.Track]) (*tasks.ResyncResult[models.Track], error)
}

// Player issues playback commands.
type Player interface {
	PlayTrack(ctx context.Context, uri string) error
	TogglePlay(ctx context.Context) error
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	library Library
	player  Player

	list       list.Model
	count      int
	loading    bool
	events     chan tea.Msg
	progress   tasks.Progress[models.Track]
	nowPlaying *models.PlaybackState

	status  string
	warning string
	err     error
	fatal   bool

	width  int
	height int
	help   help.Model
	keys   keyMap
}

// NewModel creates a TUI model. player may be nil, in which case playback keys report an error.
func NewModel(ctx context.Context, library Library, player Player) *Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Liked Songs"
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	return &Model{
		ctx:     ctx,
		library: library,
		player:  player,
		list:    l,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init starts loading the library, from cache when it is fresh.
func (m *Model) Init() tea.Cmd {
	return m.load(false)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-2, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgress:
		p := msg.data.(tasks.Progress[models.Track])
		m.progress = p
		var cmd tea.Cmd
		if items := trackItems(p.Batch); len(items) > 0 {
			m.count += len(items)
			cmd = m.list.SetItems(append(m.list.Items(), items...))
		}
		return m, tea.Batch(cmd, m.waitForEvent())

	case MsgLoaded:
		l := msg.data.(loaded)
		m.loading = false
		if l.err != nil {
			m.setError(l.err)
			return m, nil
		}
		if l.warning != nil {
			m.warning = l.warning.Error()
		}
		m.count = len(trackItems(l.tracks))
		cmd := m.list.SetItems(trackItems(l.tracks))
		switch {
		case l.resync:
			m.status = fmt.Sprintf("Resynced %d tracks (+%d, -%d)", m.count, l.added, l.removed)
		case l.cached:
			m.status = fmt.Sprintf("Loaded %d tracks from cache", m.count)
		default:
			m.status = fmt.Sprintf("Loaded %d tracks", m.count)
		}
		return m, cmd

	case MsgNowPlaying:
		state := msg.data.(models.PlaybackState)
		m.nowPlaying = &state
		return m, nil

	case MsgCommandDone:
		done := msg.data.(commandDone)
		if done.err != nil {
			m.setError(done.err)
		} else {
			m.err = nil
			m.status = done.action
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) setError(err error) {
	m.err = err
	if errors.Is(err, shared.ErrUnauthenticated) || errors.Is(err, shared.ErrReauthenticationRequired) {
		m.fatal = true
	}
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case m.fatal:
		return m, nil
	case key.Matches(msg, m.keys.play):
		item, ok := m.list.SelectedItem().(trackItem)
		if !ok {
			return m, nil
		}
		return m, m.play(item.track)
	case key.Matches(msg, m.keys.toggle):
		return m, m.toggle()
	case key.Matches(msg, m.keys.resync):
		if m.loading {
			return m, nil
		}
		return m, m.load(true)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// load runs a fetch, or a resync when resync is set, streaming progress messages onto m.events.
func (m *Model) load(resync bool) tea.Cmd {
	if m.library == nil {
		return nil
	}
	m.loading = true
	m.err = nil
	m.warning = ""
	m.progress = tasks.Progress[models.Track]{}
	if !resync {
		m.count = 0
		m.list.SetItems(nil)
	}

	events := make(chan tea.Msg, 16)
	m.events = events
	onProgress := func(p tasks.Progress[models.Track]) {
		if resync {
			p.Batch = nil
		}
		select {
		case events <- progressMsg(p):
		case <-m.ctx.Done():
		}
	}

	go func() {
		defer close(events)
		var l loaded
		if resync {
			res, err := m.library.ResyncLibraryTracks(m.ctx, onProgress)
			l.resync, l.err = true, err
			if res != nil {
				l.tracks, l.added, l.removed, l.warning = res.Records, len(res.Added), len(res.Removed), res.Warning
			}
		} else {
			res, err := m.library.FetchLibraryTracks(m.ctx, false, onProgress)
			l.err = err
			if res != nil {
				l.tracks, l.cached, l.warning = res.Records, res.FromCache, res.Warning
			}
		}
		select {
		case events <- loadedMsg(l):
		case <-m.ctx.Done():
		}
	}()

	return m.waitForEvent()
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		if events == nil {
			return nil
		}
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *Model) play(t *models.Track) tea.Cmd {
	if m.player == nil {
		return func() tea.Msg { return commandDoneMsg("", shared.ErrNoActiveDevice) }
	}
	ctx, player := m.ctx, m.player
	return func() tea.Msg {
		err := player.PlayTrack(ctx, t.URI)
		return commandDoneMsg("Playing "+t.Name, err)
	}
}

func (m *Model) toggle() tea.Cmd {
	if m.player == nil {
		return func() tea.Msg { return commandDoneMsg("", shared.ErrNoActiveDevice) }
	}
	ctx, player := m.ctx, m.player
	return func() tea.Msg {
		return commandDoneMsg("Toggled playback", player.TogglePlay(ctx))
	}
}

// View renders the list, the now-playing line and the status line.
func (m *Model) View() string {
	if m.fatal {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nRun `sift auth login`, then start again. Press q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(m.list.View())
	b.WriteString("\n")
	b.WriteString(m.renderNowPlaying())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderNowPlaying() string {
	s := m.nowPlaying
	if s == nil || s.Track == nil {
		return styles.idle.Render("Nothing playing")
	}

	icon, style := "▶", styles.playing
	if s.Paused {
		icon, style = "⏸", styles.paused
	}
	line := fmt.Sprintf("%s %s - %s  %s / %s", icon, s.Track.Name, strings.Join(s.Track.ArtistNames(), ", "),
		shared.FormatDuration(s.PositionMS), shared.FormatDuration(s.DurationMS))
	if s.DeviceName != "" {
		line += "  on " + s.DeviceName
	}
	return style.Render(line)
}

func (m *Model) renderStatus() string {
	switch {
	case m.err != nil:
		return styles.err.Render(m.err.Error())
	case m.loading:
		if m.progress.Total == 0 {
			return styles.muted.Render("Loading...")
		}
		return styles.muted.Render(m.progress.Message())
	case m.warning != "":
		return styles.warn.Render("Warning: " + m.warning)
	default:
		return styles.ok.Render(m.status)
	}
}

// Err returns the authentication error that ended the session, if any.
func (m *Model) Err() error {
	if m.fatal {
		return m.err
	}
	return nil
}
