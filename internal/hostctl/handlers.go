// Package hostctl exposes the host daemon's control commands: status,
// toggling, config reload, and debug dumps.
package hostctl

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/vigil/internal/control"
	"github.com/smykla-skalski/vigil/internal/registry"
	"github.com/smykla-skalski/vigil/pkg/logger"
)

// Command names answered by the host server.
const (
	CommandGetStatus      = "getstatus"
	CommandToggleProvider = "toggleprovider"
	CommandToggleListener = "togglelistener"
	CommandReloadConfig   = "reloadconfig"
	CommandGetDebug       = "getdebug"
)

// Lifecycle is the slice of the manager the handlers drive.
type Lifecycle interface {
	Status() []registry.StatusEntry
	Toggle(kind registry.Kind, name string, enabled bool) error
	Reload(ctx context.Context) error
}

// DebugDumper collects and persists one debug dump, returning its path.
type DebugDumper interface {
	Dump() (string, error)
}

// Handlers answers host-side control commands.
type Handlers struct {
	manager Lifecycle
	dumper  DebugDumper
	logger  logger.Logger
}

// NewHandlers creates host-side handlers.
func NewHandlers(manager Lifecycle, dumper DebugDumper, log logger.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		dumper:  dumper,
		logger:  log,
	}
}

// Register installs every host command on the server.
func (h *Handlers) Register(server *control.Server) {
	server.Handle(CommandGetStatus, h.GetStatus)
	server.Handle(CommandToggleProvider, h.ToggleProvider)
	server.Handle(CommandToggleListener, h.ToggleListener)
	server.Handle(CommandReloadConfig, h.ReloadConfig)
	server.Handle(CommandGetDebug, h.GetDebug)
}

// StatusData is the getstatus data document.
type StatusData struct {
	Providers []registry.StatusEntry `json:"providers"`
	Listeners []registry.StatusEntry `json:"listeners"`
}

// GetStatus lists every descriptor split by kind. Both arrays are
// always present, empty when nothing is loaded.
func (h *Handlers) GetStatus(_ context.Context, _ *control.Request) (*control.Response, error) {
	data := StatusData{
		Providers: []registry.StatusEntry{},
		Listeners: []registry.StatusEntry{},
	}

	for _, entry := range h.manager.Status() {
		switch entry.Kind {
		case registry.KindProvider:
			data.Providers = append(data.Providers, entry)
		case registry.KindListener:
			data.Listeners = append(data.Listeners, entry)
		}
	}

	return control.OK(data)
}

// ToggleProvider flips a provider's enabled flag.
func (h *Handlers) ToggleProvider(_ context.Context, req *control.Request) (*control.Response, error) {
	return h.toggle(registry.KindProvider, req)
}

// ToggleListener flips a listener's enabled flag.
func (h *Handlers) ToggleListener(_ context.Context, req *control.Request) (*control.Response, error) {
	return h.toggle(registry.KindListener, req)
}

func (h *Handlers) toggle(kind registry.Kind, req *control.Request) (*control.Response, error) {
	name, err := control.RequiredParam(req, "name")
	if err != nil {
		return nil, err
	}

	enabledStr, err := control.RequiredParam(req, "enabled")
	if err != nil {
		return nil, err
	}

	enabled, err := strconv.ParseBool(enabledStr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid enabled value %q", enabledStr)
	}

	if err := h.manager.Toggle(kind, name, enabled); err != nil {
		return nil, err
	}

	return control.OK(nil)
}

// ReloadConfig re-reads configuration and restarts plugins against it.
func (h *Handlers) ReloadConfig(ctx context.Context, _ *control.Request) (*control.Response, error) {
	if err := h.manager.Reload(ctx); err != nil {
		return nil, err
	}

	return control.OK(nil)
}

// DebugData is the getdebug data document.
type DebugData struct {
	FilePath string `json:"filePath"`
}

// GetDebug writes a debug dump and returns its path.
func (h *Handlers) GetDebug(_ context.Context, _ *control.Request) (*control.Response, error) {
	path, err := h.dumper.Dump()
	if err != nil {
		return nil, err
	}

	return control.OK(DebugData{FilePath: path})
}
