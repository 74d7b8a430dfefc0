package listeners

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	cfgstore "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/internal/control"
	"github.com/smykla-skalski/vigil/pkg/config"
	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
	"github.com/smykla-skalski/vigil/pkg/plugin"
)

// DesktopNotifyName is the desktopnotify listener's registry name.
const DesktopNotifyName = "desktopnotify"

// DesktopNotify forwards events to the desktop agent's sendnotification
// command. The agent may not be running; an unreachable agent is logged
// and never treated as a delivery failure.
type DesktopNotify struct {
	store  *cfgstore.Store
	logger logger.Logger

	mu         sync.Mutex
	client     *control.Client
	title      string
	eventTypes map[string]bool
	notified   uint64
	unreached  uint64
}

// NewDesktopNotify constructs the desktopnotify listener.
func NewDesktopNotify(store *cfgstore.Store, log logger.Logger) (plugin.Plugin, error) {
	return &DesktopNotify{
		store:  store,
		logger: log,
	}, nil
}

// Name implements plugin.Plugin.
func (d *DesktopNotify) Name() string {
	return DesktopNotifyName
}

// RequiresElevation implements plugin.Plugin.
func (*DesktopNotify) RequiresElevation() bool {
	return false
}

// Initialize reads the listener's document and the agent socket
// location from the global document.
func (d *DesktopNotify) Initialize(context.Context) error {
	global, err := d.store.LoadGlobal()
	if err != nil {
		return errors.Wrap(err, "failed to load global config")
	}

	cfg, err := cfgstore.LoadPluginConfig(
		d.store, "listener", DesktopNotifyName, config.DefaultDesktopNotifyConfig(),
	)
	if err != nil {
		return err
	}

	eventTypes := make(map[string]bool, len(cfg.EventTypes))
	for _, eventType := range cfg.EventTypes {
		eventTypes[eventType] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.client = control.NewClient(global.AgentSocketPath(), global.AgentRequestTimeout())
	d.title = cfg.GetTitle()
	d.eventTypes = eventTypes

	return nil
}

// Start implements plugin.Plugin; there is no background work.
func (*DesktopNotify) Start(context.Context) error {
	return nil
}

// Stop implements plugin.Plugin.
func (*DesktopNotify) Stop() error {
	return nil
}

// DebugSnapshot implements plugin.Plugin.
func (d *DesktopNotify) DebugSnapshot() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	return map[string]any{
		"title":           d.title,
		"notified":        d.notified,
		"agent_unreached": d.unreached,
	}
}

// Handle asks the agent to raise a notification describing the event.
func (d *DesktopNotify) Handle(ctx context.Context, evt *event.Event) error {
	d.mu.Lock()
	client := d.client
	title := d.title
	filtered := len(d.eventTypes) > 0 && !d.eventTypes[evt.Type]
	d.mu.Unlock()

	if filtered {
		return nil
	}

	if client == nil {
		return errors.New("desktopnotify is not initialized")
	}

	req := control.NewRequest("sendnotification", map[string]string{
		"title":   title,
		"message": fmt.Sprintf("%s from %s", evt.Type, evt.Source),
	})

	if _, err := client.Call(ctx, req); err != nil {
		if errors.Is(err, control.ErrConnectionFailed) || errors.Is(err, control.ErrTimeout) {
			d.mu.Lock()
			d.unreached++
			d.mu.Unlock()

			d.logger.Debug("agent unreachable, dropping notification", "error", err)

			return nil
		}

		return err
	}

	d.mu.Lock()
	d.notified++
	d.mu.Unlock()

	return nil
}
