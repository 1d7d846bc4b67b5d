// Package ui implements the interactive library browser using bubbletea's Elm architecture.
//
// The [Model] loads the saved library through a [Library] and renders each progress batch as it arrives,
// so the list fills in page by page. A now-playing line is fed by [NowPlaying] messages, which the caller
// sends from the playback reconciler's state callback with [tea.Program.Send].
//
// Keys: enter plays the selected track, space toggles playback, r resyncs the library, / filters and q quits.
package ui
