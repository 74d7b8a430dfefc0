package registry

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/vigil/internal/bus"
	cfgstore "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/internal/elevation"
	extplugin "github.com/smykla-skalski/vigil/internal/plugin"
	"github.com/smykla-skalski/vigil/pkg/config"
	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
	"github.com/smykla-skalski/vigil/pkg/plugin"
)

// ErrUnknownPlugin is returned when an operation names a plugin the
// manager has not loaded.
var ErrUnknownPlugin = errors.New("unknown plugin")

// Factory constructs one builtin plugin instance. Construction must not
// perform I/O; config reads belong in Initialize so reload picks up
// fresh documents.
type Factory func(store *cfgstore.Store, log logger.Logger) (plugin.Plugin, error)

// Builtin describes a compiled-in plugin available to the manager.
type Builtin struct {
	Name string
	Kind Kind
	New  Factory
}

// Options wires a Manager's collaborators.
type Options struct {
	Store    *cfgstore.Store
	Bus      *bus.Bus
	Checker  elevation.Checker
	Loader   *extplugin.Loader
	Builtins []Builtin
	Logger   logger.Logger
}

// Manager owns the descriptor table and drives every plugin through its
// lifecycle. All mutating operations serialize behind one lock.
type Manager struct {
	store    *cfgstore.Store
	bus      *bus.Bus
	checker  elevation.Checker
	loader   *extplugin.Loader
	builtins []Builtin
	logger   logger.Logger

	mu          sync.Mutex
	descriptors []*Descriptor
	index       map[string]*Descriptor
}

// NewManager creates a Manager. LoadAll must run before any other
// operation.
func NewManager(opts Options) *Manager {
	return &Manager{
		store:    opts.Store,
		bus:      opts.Bus,
		checker:  opts.Checker,
		loader:   opts.Loader,
		builtins: opts.Builtins,
		logger:   opts.Logger,
		index:    make(map[string]*Descriptor),
	}
}

// LoadAll builds the descriptor table: builtins first in registration
// order, then external executables discovered under the providers/ and
// listeners/ directories. Each instance is admitted past the elevation
// gate and initialized; a single failure never aborts the batch.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.descriptors = nil
	m.index = make(map[string]*Descriptor)

	for _, builtin := range m.builtins {
		m.addBuiltin(builtin)
	}

	for _, kind := range KindValues() {
		m.discoverExternal(ctx, kind)
	}

	for _, desc := range m.descriptors {
		desc.enabled.Store(m.readEnabled(desc.kind, desc.name))
		m.initOne(ctx, desc)
	}

	return nil
}

// StartAll starts every initialized, enabled instance in load order.
// Provider emitters are wired to the bus before Start so no emission
// races the subscription.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, desc := range m.descriptors {
		if desc.state != StateInitialized || !desc.IsEnabled() {
			continue
		}

		m.startOne(ctx, desc)
	}
}

// StopAll stops every running instance in reverse load order. Errors
// are logged, never propagated; shutdown always completes.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.descriptors) - 1; i >= 0; i-- {
		if m.descriptors[i].state == StateRunning {
			m.stopOne(m.descriptors[i])
		}
	}
}

// Toggle flips the enabled flag of a loaded descriptor and persists it.
// The instance keeps running; the bus consults the flag per event.
func (m *Manager) Toggle(kind Kind, name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	desc, ok := m.index[descriptorKey(kind, name)]
	if !ok {
		return errors.Wrapf(ErrUnknownPlugin, "%s %q", kind, name)
	}

	desc.enabled.Store(enabled)

	if err := m.store.SetPluginEnabled(kind.String(), name, enabled); err != nil {
		return errors.Wrapf(err, "failed to persist %s %q", kind, name)
	}

	m.logger.Info("plugin toggled", "kind", kind, "name", name, "enabled", enabled)

	return nil
}

// Reload re-reads configuration and restarts each instance against the
// new documents. One plugin's failure leaves it FailedInit without
// affecting the others. SkippedElevation is terminal; privilege does
// not change mid-process.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.ReloadAll()

	for _, desc := range m.descriptors {
		if desc.state == StateSkippedElevation {
			continue
		}

		if desc.state == StateRunning {
			m.stopOne(desc)
		}

		desc.initErr = nil
		desc.enabled.Store(m.readEnabled(desc.kind, desc.name))

		m.initOne(ctx, desc)

		if desc.state == StateInitialized && desc.IsEnabled() {
			m.startOne(ctx, desc)
		}
	}

	m.logger.Info("configuration reloaded", "plugins", len(m.descriptors))

	return nil
}

// Status snapshots every descriptor, including skipped and failed ones.
func (m *Manager) Status() []StatusEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]StatusEntry, 0, len(m.descriptors))
	for _, desc := range m.descriptors {
		entries = append(entries, desc.statusEntry())
	}

	return entries
}

// DebugTarget pairs a descriptor snapshot with its live instance for
// the debug aggregator.
type DebugTarget struct {
	Name     string
	Kind     Kind
	State    State
	Enabled  bool
	Instance plugin.Plugin
}

// DebugTargets snapshots the descriptor table for debug collection.
// Snapshot calls on the instances happen outside the manager lock.
func (m *Manager) DebugTargets() []DebugTarget {
	m.mu.Lock()
	defer m.mu.Unlock()

	targets := make([]DebugTarget, 0, len(m.descriptors))
	for _, desc := range m.descriptors {
		targets = append(targets, DebugTarget{
			Name:     desc.name,
			Kind:     desc.kind,
			State:    desc.state,
			Enabled:  desc.IsEnabled(),
			Instance: desc.instance,
		})
	}

	return targets
}

func (m *Manager) addBuiltin(builtin Builtin) {
	desc := &Descriptor{
		name: builtin.Name,
		kind: builtin.Kind,
	}

	instance, err := builtin.New(m.store, m.logger.With("plugin", builtin.Name))
	if err != nil {
		desc.state = StateFailedInit
		desc.initErr = err
		m.logger.Error("failed to construct plugin", "name", builtin.Name, "error", err)
	} else {
		desc.instance = instance
		desc.requiresElevation = instance.RequiresElevation()
	}

	m.add(desc)
}

// discoverExternal scans the plugin directory for one kind. Any
// executable that is not a config document is handshaken with --info.
func (m *Manager) discoverExternal(ctx context.Context, kind Kind) {
	if m.loader == nil {
		return
	}

	dir := filepath.Join(m.store.BaseDir(), kind.String()+"s")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("failed to scan plugin directory", "dir", dir, "error", err)
		}

		return
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	sort.Strings(names)

	for _, fileName := range names {
		if strings.HasSuffix(fileName, ".toml") {
			continue
		}

		path := filepath.Join(dir, fileName)

		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			continue
		}

		m.addExternal(ctx, kind, path)
	}
}

func (m *Manager) addExternal(ctx context.Context, kind Kind, path string) {
	info, err := m.loader.FetchInfo(ctx, path, nil)
	if err != nil {
		m.logger.Warn("skipping external plugin", "path", path, "error", err)

		return
	}

	extCfg, err := cfgstore.LoadPluginConfig(
		m.store, kind.String(), info.Name, config.DefaultExternalConfig(),
	)
	if err != nil {
		m.logger.Warn("skipping external plugin", "name", info.Name, "error", err)

		return
	}

	desc := &Descriptor{
		name:              info.Name,
		kind:              kind,
		requiresElevation: info.RequiresElevation,
		external:          true,
		version:           info.Version,
	}

	switch kind {
	case KindProvider:
		desc.instance = m.loader.NewProvider(info, path, extCfg.Args)
	case KindListener:
		desc.instance = m.loader.NewListener(
			info, path, extCfg.Args, extCfg.GetTimeout(), extCfg.Config,
		)
	}

	m.add(desc)
}

func (m *Manager) add(desc *Descriptor) {
	key := descriptorKey(desc.kind, desc.name)
	if _, exists := m.index[key]; exists {
		m.logger.Warn("duplicate plugin ignored", "kind", desc.kind, "name", desc.name)

		return
	}

	m.descriptors = append(m.descriptors, desc)
	m.index[key] = desc
}

// initOne admits one descriptor past the elevation gate and runs
// Initialize. State transitions happen under the manager lock.
func (m *Manager) initOne(ctx context.Context, desc *Descriptor) {
	if desc.instance == nil {
		return
	}

	if desc.requiresElevation && !m.checker.IsElevated() {
		desc.state = StateSkippedElevation
		m.logger.Warn("plugin requires elevation, skipping",
			"kind", desc.kind,
			"name", desc.name,
		)

		return
	}

	if err := desc.instance.Initialize(ctx); err != nil {
		desc.state = StateFailedInit
		desc.initErr = err
		m.logger.Error("plugin failed to initialize",
			"kind", desc.kind,
			"name", desc.name,
			"error", err,
		)

		return
	}

	desc.state = StateInitialized
	m.logger.Debug("plugin initialized", "kind", desc.kind, "name", desc.name)
}

func (m *Manager) startOne(ctx context.Context, desc *Descriptor) {
	switch instance := desc.instance.(type) {
	case plugin.Provider:
		instance.SetEmitter(func(evt *event.Event) {
			if !desc.IsEnabled() {
				return
			}

			_ = m.bus.Publish(evt)
		})

		if err := instance.Start(ctx); err != nil {
			m.logger.Error("plugin failed to start",
				"kind", desc.kind,
				"name", desc.name,
				"error", err,
			)

			return
		}

	case plugin.Listener:
		if err := m.bus.Subscribe(desc.name, desc.IsEnabled, instance.Handle); err != nil {
			m.logger.Error("failed to subscribe listener", "name", desc.name, "error", err)

			return
		}

		if err := instance.Start(ctx); err != nil {
			m.bus.Unsubscribe(desc.name)
			m.logger.Error("plugin failed to start",
				"kind", desc.kind,
				"name", desc.name,
				"error", err,
			)

			return
		}

	default:
		m.logger.Error("plugin is neither provider nor listener", "name", desc.name)

		return
	}

	desc.state = StateRunning
	desc.startedAt = time.Now()
	m.logger.Info("plugin started", "kind", desc.kind, "name", desc.name)
}

func (m *Manager) stopOne(desc *Descriptor) {
	// Unsubscribe blocks until the delivery worker has flushed its
	// buffer and exited, so Handle is never invoked after Stop returns.
	if desc.kind == KindListener {
		m.bus.Unsubscribe(desc.name)
	}

	if err := desc.instance.Stop(); err != nil {
		m.logger.Error("plugin failed to stop",
			"kind", desc.kind,
			"name", desc.name,
			"error", err,
		)
	}

	desc.state = StateStopped
	desc.startedAt = time.Time{}
	m.logger.Debug("plugin stopped", "kind", desc.kind, "name", desc.name)
}

// enabledDoc is the minimal view of any plugin document the manager
// needs: just the flag.
type enabledDoc struct {
	Enabled *bool `koanf:"enabled"`
}

func (m *Manager) readEnabled(kind Kind, name string) bool {
	doc, err := cfgstore.LoadPluginConfig[enabledDoc](m.store, kind.String(), name, nil)
	if err != nil {
		m.logger.Warn("failed to read enabled flag, defaulting to enabled",
			"kind", kind,
			"name", name,
			"error", err,
		)

		return true
	}

	return config.IsEnabled(doc.Enabled)
}

func descriptorKey(kind Kind, name string) string {
	return kind.String() + "/" + name
}
