// Package player decides where playback commands go and keeps the now-playing state current.
//
// A [Reconciler] prefers, in order, an already active device, the local device
// announced by its [Runtime], and finally the service's default target. State
// comes from the runtime while it reports live local playback and from polling
// the service otherwise. Both paths feed the same [StateFunc].
package player
