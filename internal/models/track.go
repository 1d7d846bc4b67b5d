package models

import "strings"

// ArtistDelimiter joins artist names and ids in a [MinimizedTrack].
// Names are escaped so a name containing the delimiter still splits back into one entry.
const ArtistDelimiter = "|||"

var nameEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

func joinNames(names []string) string {
	escaped := make([]string, len(names))
	for i, n := range names {
		escaped[i] = nameEscaper.Replace(n)
	}
	return strings.Join(escaped, ArtistDelimiter)
}

// splitNames reverses joinNames. A backslash takes the next byte literally.
func splitNames(s string) []string {
	var out []string
	var b strings.Builder
	for i := 0; i < len(s); {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			b.WriteByte(s[i+1])
			i += 2
		case strings.HasPrefix(s[i:], ArtistDelimiter):
			out = append(out, b.String())
			b.Reset()
			i += len(ArtistDelimiter)
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return append(out, b.String())
}

// Track is the full track shape decoded from the service.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	URI        string   `json:"uri"`
	DurationMS int      `json:"duration_ms,omitempty"`
}

// ArtistNames returns the ordered artist names.
func (t *Track) ArtistNames() []string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return names
}

// ReleaseYear returns the four digit year prefix of the album release date, or 0 when unknown.
func (t *Track) ReleaseYear() int {
	d := t.Album.ReleaseDate
	if len(d) < 4 {
		return 0
	}
	year := 0
	for _, r := range d[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}

// MinimizedTrack is the persisted track shape.
//
// ArtistIDs is empty when ids are unknown; otherwise it splits into as many entries as Artists.
type MinimizedTrack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artists     string `json:"artists"`
	ArtistIDs   string `json:"artist_ids,omitempty"`
	Album       string `json:"album"`
	ReleaseDate string `json:"release_date"`
	Image       string `json:"image,omitempty"`
	URI         string `json:"uri"`
	DurationMS  int    `json:"duration_ms,omitempty"`
}

// Minimize compacts t into its persisted form, keeping only the first album image.
func Minimize(t *Track) MinimizedTrack {
	m := MinimizedTrack{
		ID:          t.ID,
		Name:        t.Name,
		Album:       t.Album.Name,
		ReleaseDate: t.Album.ReleaseDate,
		URI:         t.URI,
		DurationMS:  t.DurationMS,
	}

	names := make([]string, len(t.Artists))
	ids := make([]string, len(t.Artists))
	known := len(t.Artists) > 0
	for i, a := range t.Artists {
		names[i] = a.Name
		ids[i] = a.ID
		if a.ID == "" {
			known = false
		}
	}
	m.Artists = joinNames(names)
	if known && m.Artists != "" {
		m.ArtistIDs = strings.Join(ids, ArtistDelimiter)
	}

	if len(t.Album.Images) > 0 {
		m.Image = t.Album.Images[0].URL
	}
	return m
}

// Expand rebuilds a full [Track] from m. Artist ids are left blank when they are unknown or do not line up with names.
func Expand(m MinimizedTrack) *Track {
	t := &Track{
		ID:         m.ID,
		Name:       m.Name,
		URI:        m.URI,
		DurationMS: m.DurationMS,
		Album:      Album{Name: m.Album, ReleaseDate: m.ReleaseDate},
	}

	var names, ids []string
	if m.Artists != "" {
		names = splitNames(m.Artists)
	}
	if m.ArtistIDs != "" {
		ids = strings.Split(m.ArtistIDs, ArtistDelimiter)
	}
	if len(ids) != len(names) {
		ids = nil
	}

	t.Artists = make([]Artist, len(names))
	for i, name := range names {
		t.Artists[i].Name = name
		if ids != nil {
			t.Artists[i].ID = ids[i]
		}
	}

	if m.Image != "" {
		t.Album.Images = []Image{{URL: m.Image}}
	}
	return t
}

// MinimizeAll compacts every track in order.
func MinimizeAll(tracks []*Track) []MinimizedTrack {
	out := make([]MinimizedTrack, len(tracks))
	for i, t := range tracks {
		out[i] = Minimize(t)
	}
	return out
}

// ExpandAll expands every record in order.
func ExpandAll(records []MinimizedTrack) []*Track {
	out := make([]*Track, len(records))
	for i, m := range records {
		out[i] = Expand(m)
	}
	return out
}
