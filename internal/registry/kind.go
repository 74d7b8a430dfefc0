// Package registry manages the lifecycle of every plugin the host runs:
// discovery, initialization, start, stop, runtime toggling, and reload.
package registry

//go:generate go run github.com/dmarkham/enumer -type=Kind -transform=lower -output=kind_enumer.go -json -text

// Kind distinguishes event producers from event consumers.
type Kind int

const (
	// KindProvider marks a plugin that emits events.
	KindProvider Kind = iota

	// KindListener marks a plugin that consumes events.
	KindListener
)
