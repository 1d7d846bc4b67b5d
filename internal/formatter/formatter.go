// package formatter renders tracks and playlists as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/shared"
)

// Format is an output format name.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatText, FormatCSV, FormatMarkdown, FormatJSON}

// ParseFormat accepts a format name or a short alias (txt, md). The empty string is text.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, name)
	}
}

// Extension returns the file extension for f, with the dot.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// ExportToCSV writes one row per track with columns: ID, Title, Artist, Album, Released, Duration, URI
func ExportToCSV(tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Released", "Duration", "URI"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		if track == nil {
			continue
		}
		record := []string{
			track.ID,
			track.Name,
			strings.Join(track.ArtistNames(), ", "),
			track.Album.Name,
			track.Album.ReleaseDate,
			strconv.Itoa(track.DurationMS / 1000),
			track.URI,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a titled, numbered track list.
func ExportToMarkdown(title string, tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer

	if title != "" {
		fmt.Fprintf(&buf, "# %s\n\n", title)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", countTracks(tracks))

	n := 0
	for _, track := range tracks {
		if track == nil {
			continue
		}
		n++
		albumPart := ""
		if track.Album.Name != "" {
			albumPart = fmt.Sprintf(" (%s)", escapeMarkdown(track.Album.Name))
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", n,
			escapeMarkdown(strings.Join(track.ArtistNames(), ", ")),
			escapeMarkdown(track.Name), albumPart, shared.FormatDuration(track.DurationMS))
	}

	return buf.Bytes(), nil
}

// ExportToText renders one "artist - title [m:ss]" line per track.
func ExportToText(title string, tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer

	if title != "" {
		fmt.Fprintf(&buf, "%s\n", title)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", countTracks(tracks))

	n := 0
	for _, track := range tracks {
		if track == nil {
			continue
		}
		n++
		fmt.Fprintf(&buf, "%d. %s - %s [%s]\n", n, strings.Join(track.ArtistNames(), ", "), track.Name,
			shared.FormatDuration(track.DurationMS))
	}

	return buf.Bytes(), nil
}

// ExportToJSON writes the tracks in their compact persisted shape.
func ExportToJSON(tracks []*models.Track) ([]byte, error) {
	kept := make([]*models.Track, 0, len(tracks))
	for _, t := range tracks {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return shared.MarshalJSON(models.MinimizeAll(kept), true)
}

// ExportTracks renders tracks in format f.
func ExportTracks(f Format, title string, tracks []*models.Track) ([]byte, error) {
	switch f {
	case FormatCSV:
		return ExportToCSV(tracks)
	case FormatMarkdown:
		return ExportToMarkdown(title, tracks)
	case FormatJSON:
		return ExportToJSON(tracks)
	case FormatText, "":
		return ExportToText(title, tracks)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// WriteTracks renders tracks to w.
func WriteTracks(w io.Writer, f Format, title string, tracks []*models.Track) error {
	data, err := ExportTracks(f, title, tracks)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteTracksFile writes tracks to path, adding the format's extension when path has none.
func WriteTracksFile(path string, f Format, title string, tracks []*models.Track) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}
	if filepath.Ext(path) == "" {
		path += f.Extension()
	}

	data, err := ExportTracks(f, title, tracks)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// WritePlaylists writes a playlist summary table: id, tracks, visibility and name.
func WritePlaylists(w io.Writer, f Format, playlists []*models.Playlist) error {
	if f == FormatJSON {
		data, err := shared.MarshalJSON(playlists, true)
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}

	if f == FormatCSV {
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{"ID", "Name", "Tracks", "Visibility", "Owner"}); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
		for _, p := range playlists {
			if p == nil {
				continue
			}
			record := []string{p.ID, p.Name, strconv.Itoa(p.TrackCount), shared.VisibilityString(p.Public), p.OwnerName}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		writer.Flush()
		return writer.Error()
	}

	for _, p := range playlists {
		if p == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-22s %5d  %-7s  %s\n", p.ID, p.TrackCount, shared.VisibilityString(p.Public), p.Name); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func countTracks(tracks []*models.Track) int {
	n := 0
	for _, t := range tracks {
		if t != nil {
			n++
		}
	}
	return n
}

var markdownEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`, "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
