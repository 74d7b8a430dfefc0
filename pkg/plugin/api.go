// Package plugin defines the contract every vigil provider and listener
// implements, and the JSON wire structures spoken with external plugin
// processes.
//
// Providers originate events; listeners receive and act on them. Both
// share a lifecycle:
//
//	Initialize → Start → Stop
//
// Initialize performs idempotent setup and must not begin background
// work. Start begins background work (timers, watches, open handles).
// Stop releases everything Start acquired; it is idempotent and safe to
// call even when Start never ran. After Stop returns, a provider emits no
// further events and a listener accepts no further Handle calls.
package plugin

//go:generate mockgen -source=api.go -destination=plugin_mock.go -package=plugin

import (
	"context"
	"encoding/json"

	"github.com/smykla-skalski/vigil/pkg/event"
)

// APIVersion is the contract version spoken with external plugin
// processes. Checked against the major version an external plugin
// reports in its Info handshake.
const APIVersion = "1.0.0"

// EmitFunc delivers an event from a provider into the host. The bus end
// of the hook is wired before Start is ever called, so a provider may
// emit from the first instant of its background work.
type EmitFunc func(*event.Event)

// Plugin is the capability surface shared by providers and listeners.
type Plugin interface {
	// Name returns the plugin's unique name within its kind. Constant
	// for the instance's lifetime.
	Name() string

	// RequiresElevation reports whether the plugin needs the host to run
	// with elevated privilege. Constant for the instance's lifetime.
	RequiresElevation() bool

	// Initialize performs idempotent setup. It may read configuration
	// but must not start background work.
	Initialize(ctx context.Context) error

	// Start begins background work. Never called before Initialize
	// completes.
	Start(ctx context.Context) error

	// Stop releases all background work. Idempotent, and safe to call
	// when Start was never called.
	Stop() error

	// DebugSnapshot returns arbitrary diagnostic key/value pairs. It
	// must not panic and must not block on external I/O.
	DebugSnapshot() map[string]any
}

// Provider is a plugin that originates events.
type Provider interface {
	Plugin

	// SetEmitter wires the emission hook. Called exactly once, before
	// Start.
	SetEmitter(emit EmitFunc)
}

// Listener is a plugin that receives and acts on events.
type Listener interface {
	Plugin

	// Handle processes one event. It may do its own I/O but must not
	// block indefinitely; the ctx carries the delivery deadline. The
	// event is shared with other listeners and must be treated as
	// read-only.
	Handle(ctx context.Context, evt *event.Event) error
}

// Info is the metadata an external plugin process reports on its --info
// handshake.
type Info struct {
	// Name is the unique plugin identifier.
	Name string `json:"name"`

	// Version is the plugin's own version (semver recommended).
	Version string `json:"version,omitempty"`

	// APIVersion is the contract version the plugin speaks. The host
	// rejects plugins whose major version differs from its own.
	APIVersion string `json:"api_version"`

	// RequiresElevation reports whether the plugin needs elevated
	// privilege.
	RequiresElevation bool `json:"requires_elevation,omitempty"`

	// Description is a human-readable summary of what the plugin does.
	Description string `json:"description,omitempty"`
}

// HandleRequest is the document an external listener receives on stdin
// for each delivered event.
type HandleRequest struct {
	// Event is the flat event document.
	Event json.RawMessage `json:"event"`

	// Config is the plugin's configuration document, decoded as a map.
	Config map[string]any `json:"config,omitempty"`
}

// HandleResponse is the document an external listener writes to stdout
// after processing an event.
type HandleResponse struct {
	// Success reports whether the event was processed.
	Success bool `json:"success"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}

// OKResponse returns a response indicating the event was processed.
func OKResponse() *HandleResponse {
	return &HandleResponse{Success: true}
}

// FailResponse returns a response indicating processing failed.
func FailResponse(message string) *HandleResponse {
	return &HandleResponse{Success: false, Error: message}
}
