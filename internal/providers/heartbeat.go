// Package providers holds the built-in event producers.
package providers

import (
	"context"
	"sync"
	"time"

	"github.com/hako/durafmt"

	cfgstore "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/pkg/config"
	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
	"github.com/smykla-skalski/vigil/pkg/plugin"
)

// HeartbeatName is the heartbeat provider's registry name.
const HeartbeatName = "heartbeat"

// EventTypeHeartbeat is emitted once per configured interval.
const EventTypeHeartbeat = "heartbeat"

// Heartbeat emits a periodic event carrying a sequence number and the
// host's uptime.
type Heartbeat struct {
	store  *cfgstore.Store
	logger logger.Logger

	mu        sync.Mutex
	emit      plugin.EmitFunc
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
	seq       uint64
	startedAt time.Time
}

// NewHeartbeat constructs the heartbeat provider.
func NewHeartbeat(store *cfgstore.Store, log logger.Logger) (plugin.Plugin, error) {
	return &Heartbeat{
		store:  store,
		logger: log,
	}, nil
}

// Name implements plugin.Plugin.
func (h *Heartbeat) Name() string {
	return HeartbeatName
}

// RequiresElevation implements plugin.Plugin.
func (*Heartbeat) RequiresElevation() bool {
	return false
}

// Initialize reads the provider's document. Safe to call repeatedly;
// each call picks up the current configuration.
func (h *Heartbeat) Initialize(context.Context) error {
	cfg, err := cfgstore.LoadPluginConfig(
		h.store, "provider", HeartbeatName, config.DefaultHeartbeatConfig(),
	)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.interval = cfg.GetInterval()

	return nil
}

// SetEmitter implements plugin.Provider.
func (h *Heartbeat) SetEmitter(emit plugin.EmitFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.emit = emit
}

// Start begins the ticker.
func (h *Heartbeat) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stop != nil {
		return nil
	}

	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	h.startedAt = time.Now()

	go h.run(h.stop, h.done, h.interval)

	return nil
}

// Stop halts the ticker. Idempotent.
func (h *Heartbeat) Stop() error {
	h.mu.Lock()

	if h.stop == nil {
		h.mu.Unlock()

		return nil
	}

	stop := h.stop
	done := h.done
	h.stop = nil
	h.mu.Unlock()

	close(stop)
	<-done

	return nil
}

// DebugSnapshot implements plugin.Plugin.
func (h *Heartbeat) DebugSnapshot() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	return map[string]any{
		"interval": h.interval.String(),
		"sequence": h.seq,
		"running":  h.stop != nil,
	}
}

func (h *Heartbeat) run(stop, done chan struct{}, interval time.Duration) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeat) beat() {
	h.mu.Lock()
	h.seq++

	seq := h.seq
	emit := h.emit
	uptime := time.Since(h.startedAt).Truncate(time.Second)
	h.mu.Unlock()

	if emit == nil {
		return
	}

	emit(event.New(EventTypeHeartbeat, HeartbeatName).
		Set("sequence", seq).
		Set("uptime", durafmt.Parse(uptime).String()))
}
