package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/shared"
	"github.com/desertthunder/sift/internal/tasks"
)

type fakeLibrary struct {
	tracks   []*models.Track
	err      error
	warning  error
	resyncs  int
	cacheHit bool
}

func (f *fakeLibrary) FetchLibraryTracks(ctx context.Context, force bool, progress tasks.ProgressFunc[models.Track]) (*tasks.FetchResult[models.Track], error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := 0; i < len(f.tracks); i += 2 {
		end := min(i+2, len(f.tracks))
		progress(tasks.Progress[models.Track]{Phase: tasks.FetchLibrary, Loaded: end, Total: len(f.tracks), Batch: f.tracks[i:end]})
	}
	return &tasks.FetchResult[models.Track]{Records: f.tracks, FromCache: f.cacheHit, Warning: f.warning}, nil
}

func (f *fakeLibrary) ResyncLibraryTracks(ctx context.Context, progress tasks.ProgressFunc[models.Track]) (*tasks.ResyncResult[models.Track], error) {
	f.resyncs++
	extra := &models.Track{ID: "new", Name: "New Song", URI: "spotify:track:new"}
	f.tracks = append(f.tracks, extra)
	return &tasks.ResyncResult[models.Track]{Records: f.tracks, Added: []*models.Track{extra}}, nil
}

type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	toggles int
	err     error
}

func (f *fakePlayer) PlayTrack(ctx context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, uri)
	return f.err
}

func (f *fakePlayer) TogglePlay(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return f.err
}

func tracks(n int) []*models.Track {
	out := make([]*models.Track, n)
	for i := range out {
		id := string(rune('a' + i))
		out[i] = &models.Track{ID: id, Name: "Song " + id, URI: "spotify:track:" + id, Artists: []models.Artist{{Name: "Band"}}}
	}
	return out
}

// pump runs cmd and every command produced by the resulting updates until none are left.
func pump(m *Model, cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case tea.QuitMsg:
		default:
			_, c := m.Update(msg)
			queue = append(queue, c)
		}
	}
}

func newTestModel(lib Library, player Player) *Model {
	m := NewModel(context.Background(), lib, player)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return m
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModelLoading(t *testing.T) {
	t.Run("renders batches as they arrive", func(t *testing.T) {
		m := newTestModel(&fakeLibrary{tracks: tracks(5)}, nil)

		cmd := m.Init()
		first := cmd()
		_, next := m.Update(first)
		if got := len(m.list.Items()); got != 2 {
			t.Fatalf("expected 2 items after first batch, got %d", got)
		}
		if !m.loading || !strings.Contains(m.View(), "[2/5]") {
			t.Errorf("expected progress in view, got %q", m.View())
		}

		pump(m, next)
		if got := len(m.list.Items()); got != 5 {
			t.Errorf("expected 5 items, got %d", got)
		}
		if m.loading || m.status != "Loaded 5 tracks" {
			t.Errorf("unexpected status %q loading=%v", m.status, m.loading)
		}
	})

	t.Run("cache hit status", func(t *testing.T) {
		m := newTestModel(&fakeLibrary{tracks: tracks(1), cacheHit: true}, nil)
		pump(m, m.Init())
		if m.status != "Loaded 1 tracks from cache" {
			t.Errorf("unexpected status %q", m.status)
		}
	})

	t.Run("storage warning", func(t *testing.T) {
		m := newTestModel(&fakeLibrary{tracks: tracks(1), warning: shared.ErrStorageQuotaExceeded}, nil)
		pump(m, m.Init())
		if !strings.Contains(m.View(), "Warning:") {
			t.Errorf("expected warning in view, got %q", m.View())
		}
	})

	t.Run("auth failure is fatal", func(t *testing.T) {
		player := &fakePlayer{}
		m := newTestModel(&fakeLibrary{err: shared.ErrUnauthenticated}, player)
		pump(m, m.Init())

		if !m.fatal || !strings.Contains(m.View(), "sift auth login") {
			t.Errorf("expected login instruction, got %q", m.View())
		}
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
		pump(m, cmd)
		if player.toggles != 0 {
			t.Error("expected keys ignored after fatal error")
		}
	})

	t.Run("resync", func(t *testing.T) {
		lib := &fakeLibrary{tracks: tracks(2)}
		m := newTestModel(lib, nil)
		pump(m, m.Init())

		_, cmd := m.Update(keyRune('r'))
		pump(m, cmd)
		if lib.resyncs != 1 || len(m.list.Items()) != 3 {
			t.Errorf("expected resync with 3 items, got resyncs=%d items=%d", lib.resyncs, len(m.list.Items()))
		}
		if !strings.Contains(m.status, "+1, -0") {
			t.Errorf("unexpected status %q", m.status)
		}
	})
}

func TestModelPlayback(t *testing.T) {
	t.Run("enter plays selected track", func(t *testing.T) {
		player := &fakePlayer{}
		m := newTestModel(&fakeLibrary{tracks: tracks(3)}, player)
		pump(m, m.Init())

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		pump(m, cmd)
		if len(player.played) != 1 || player.played[0] != "spotify:track:a" {
			t.Errorf("unexpected plays %v", player.played)
		}
		if m.status != "Playing Song a" {
			t.Errorf("unexpected status %q", m.status)
		}
	})

	t.Run("space toggles", func(t *testing.T) {
		player := &fakePlayer{}
		m := newTestModel(&fakeLibrary{}, player)
		pump(m, m.Init())

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
		pump(m, cmd)
		if player.toggles != 1 {
			t.Errorf("expected one toggle, got %d", player.toggles)
		}
	})

	t.Run("command error shown", func(t *testing.T) {
		player := &fakePlayer{err: shared.ErrNoActiveDevice}
		m := newTestModel(&fakeLibrary{}, player)
		pump(m, m.Init())

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
		pump(m, cmd)
		if !errors.Is(m.err, shared.ErrNoActiveDevice) || m.fatal {
			t.Errorf("expected non-fatal device error, got %v fatal=%v", m.err, m.fatal)
		}
	})

	t.Run("no player", func(t *testing.T) {
		m := newTestModel(&fakeLibrary{}, nil)
		pump(m, m.Init())
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
		pump(m, cmd)
		if !errors.Is(m.err, shared.ErrNoActiveDevice) {
			t.Errorf("expected ErrNoActiveDevice, got %v", m.err)
		}
	})

	t.Run("now playing line", func(t *testing.T) {
		m := newTestModel(&fakeLibrary{}, nil)
		if !strings.Contains(m.View(), "Nothing playing") {
			t.Error("expected idle now-playing line")
		}

		m.Update(NowPlaying(models.PlaybackState{
			PositionMS: 61000,
			DurationMS: 200000,
			DeviceName: "Kitchen",
			Track:      &models.Track{Name: "Song", Artists: []models.Artist{{Name: "Band"}}},
		}))
		view := m.View()
		if !strings.Contains(view, "Song - Band") || !strings.Contains(view, "1:01 / 3:20") || !strings.Contains(view, "Kitchen") {
			t.Errorf("unexpected now-playing line in %q", view)
		}
	})

	t.Run("quit", func(t *testing.T) {
		m := newTestModel(&fakeLibrary{}, nil)
		_, cmd := m.Update(keyRune('q'))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}
