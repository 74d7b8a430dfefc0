// Package debugdump aggregates plugin diagnostic snapshots into a single
// JSON document written to disk.
package debugdump

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/smykla-skalski/vigil/internal/bus"
	"github.com/smykla-skalski/vigil/internal/registry"
	"github.com/smykla-skalski/vigil/pkg/logger"
)

// Dump is the aggregated diagnostic document.
type Dump struct {
	Timestamp time.Time             `json:"timestamp"`
	Version   string                `json:"version"`
	Runtime   RuntimeInfo           `json:"runtime"`
	Plugins   map[string]PluginDump `json:"plugins"`
	BusStats  map[string]bus.Stats  `json:"busStats"`
}

// RuntimeInfo captures host process details.
type RuntimeInfo struct {
	GOOS         string `json:"goos"`
	GOARCH       string `json:"goarch"`
	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
	NumCPU       int    `json:"numCPU"`
	PID          int    `json:"pid"`
}

// PluginDump is one plugin's entry in the aggregate.
type PluginDump struct {
	Kind     registry.Kind  `json:"kind"`
	State    registry.State `json:"state"`
	Enabled  bool           `json:"isEnabled"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Snapshotter is the slice of the manager the collector needs.
type Snapshotter interface {
	DebugTargets() []registry.DebugTarget
}

// StatsSource exposes bus counters for the dump.
type StatsSource interface {
	Stats() map[string]bus.Stats
}

// Collector walks every descriptor and merges snapshots into one Dump.
type Collector struct {
	manager Snapshotter
	stats   StatsSource
	version string
	logger  logger.Logger
}

// NewCollector creates a Collector.
func NewCollector(manager Snapshotter, stats StatsSource, version string, log logger.Logger) *Collector {
	return &Collector{
		manager: manager,
		stats:   stats,
		version: version,
		logger:  log,
	}
}

// CollectAll gathers a snapshot from every plugin, including skipped and
// failed ones. A panicking snapshot becomes an error marker for that
// plugin only.
func (c *Collector) CollectAll() *Dump {
	targets := c.manager.DebugTargets()

	dump := &Dump{
		Timestamp: time.Now(),
		Version:   c.version,
		Runtime: RuntimeInfo{
			GOOS:         runtime.GOOS,
			GOARCH:       runtime.GOARCH,
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			PID:          os.Getpid(),
		},
		Plugins: make(map[string]PluginDump, len(targets)),
	}

	if c.stats != nil {
		dump.BusStats = c.stats.Stats()
	}

	for _, target := range targets {
		dump.Plugins[target.Name] = c.collectOne(target)
	}

	return dump
}

func (c *Collector) collectOne(target registry.DebugTarget) (entry PluginDump) {
	entry = PluginDump{
		Kind:    target.Kind,
		State:   target.State,
		Enabled: target.Enabled,
	}

	if target.Instance == nil {
		entry.Error = "instance was never constructed"

		return entry
	}

	defer func() {
		if r := recover(); r != nil {
			entry.Snapshot = nil
			entry.Error = fmt.Sprintf("snapshot panicked: %v", r)
			c.logger.Error("plugin snapshot panicked", "name", target.Name, "panic", r)
		}
	}()

	entry.Snapshot = target.Instance.DebugSnapshot()

	return entry
}
