package registry

import (
	"sync/atomic"
	"time"

	"github.com/smykla-skalski/vigil/pkg/plugin"
)

// Descriptor is the manager's record of one plugin instance. Lifecycle
// state is guarded by the manager lock; the enabled flag is atomic so
// the bus can consult it at enqueue time without taking that lock.
type Descriptor struct {
	name              string
	kind              Kind
	requiresElevation bool
	external          bool
	version           string

	enabled   atomic.Bool
	state     State
	initErr   error
	startedAt time.Time
	instance  plugin.Plugin
}

// Name returns the plugin's name.
func (d *Descriptor) Name() string {
	return d.name
}

// Kind returns whether the plugin is a provider or a listener.
func (d *Descriptor) Kind() Kind {
	return d.kind
}

// IsEnabled reports the current enabled flag.
func (d *Descriptor) IsEnabled() bool {
	return d.enabled.Load()
}

// Instance returns the underlying plugin.
func (d *Descriptor) Instance() plugin.Plugin {
	return d.instance
}

// StatusEntry is the wire shape of one descriptor in status listings.
type StatusEntry struct {
	Name              string    `json:"name"`
	Kind              Kind      `json:"kind"`
	State             State     `json:"state"`
	Enabled           bool      `json:"isEnabled"`
	RequiresElevation bool      `json:"requiresElevation"`
	External          bool      `json:"external,omitempty"`
	Version           string    `json:"version,omitempty"`
	Error             string    `json:"error,omitempty"`
	StartedAt         time.Time `json:"startedAt,omitzero"`
}

func (d *Descriptor) statusEntry() StatusEntry {
	entry := StatusEntry{
		Name:              d.name,
		Kind:              d.kind,
		State:             d.state,
		Enabled:           d.enabled.Load(),
		RequiresElevation: d.requiresElevation,
		External:          d.external,
		Version:           d.version,
		StartedAt:         d.startedAt,
	}

	if d.initErr != nil {
		entry.Error = d.initErr.Error()
	}

	return entry
}
