package config

import "time"

// Built-in plugin defaults.
const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultDebounceWindow    = 2 * time.Second
	defaultDedupeCap         = 10_000
	defaultWebhookTimeout    = 10 * time.Second
	defaultExternalTimeout   = 5 * time.Second

	// DefaultJournalMaxSize is the journal rotation threshold, parsed
	// with humanize.ParseBytes.
	DefaultJournalMaxSize = "10 MB"
)

// HeartbeatConfig configures the heartbeat provider.
type HeartbeatConfig struct {
	// Enabled gates event forwarding for this plugin.
	// Default: true
	Enabled *bool `json:"enabled,omitempty" koanf:"enabled" toml:"enabled"`

	// Interval is the emission period.
	// Default: "30s"
	Interval Duration `json:"interval,omitempty" koanf:"interval" toml:"interval"`
}

// DefaultHeartbeatConfig returns the heartbeat document defaults.
func DefaultHeartbeatConfig() *HeartbeatConfig {
	enabled := true

	return &HeartbeatConfig{
		Enabled:  &enabled,
		Interval: Duration(defaultHeartbeatInterval),
	}
}

// GetInterval returns the emission period with fallback.
func (c *HeartbeatConfig) GetInterval() time.Duration {
	if c == nil {
		return defaultHeartbeatInterval
	}

	return c.Interval.OrDefault(defaultHeartbeatInterval)
}

// FileWatchConfig configures the filewatch provider.
type FileWatchConfig struct {
	// Enabled gates event forwarding for this plugin.
	// Default: true
	Enabled *bool `json:"enabled,omitempty" koanf:"enabled" toml:"enabled"`

	// Roots are the directories watched recursively.
	Roots []string `json:"roots,omitempty" koanf:"roots" toml:"roots"`

	// Include are doublestar patterns a changed path must match.
	// Empty means every path matches.
	Include []string `json:"include,omitempty" koanf:"include" toml:"include"`

	// Exclude are doublestar patterns that suppress a changed path.
	Exclude []string `json:"exclude,omitempty" koanf:"exclude" toml:"exclude"`

	// Debounce suppresses repeat events for the same path within the
	// window. A heuristic, not a correctness bound.
	// Default: "2s"
	Debounce Duration `json:"debounce,omitempty" koanf:"debounce" toml:"debounce"`

	// DedupeCap bounds the recency set used for debouncing; the oldest
	// half is evicted when the cap is reached.
	// Default: 10000
	DedupeCap int `json:"dedupe_cap,omitempty" koanf:"dedupe_cap" toml:"dedupe_cap"`
}

// DefaultFileWatchConfig returns the filewatch document defaults.
func DefaultFileWatchConfig() *FileWatchConfig {
	enabled := true

	return &FileWatchConfig{
		Enabled:   &enabled,
		Roots:     []string{},
		Debounce:  Duration(defaultDebounceWindow),
		DedupeCap: defaultDedupeCap,
	}
}

// GetDebounce returns the debounce window with fallback.
func (c *FileWatchConfig) GetDebounce() time.Duration {
	if c == nil {
		return defaultDebounceWindow
	}

	return c.Debounce.OrDefault(defaultDebounceWindow)
}

// GetDedupeCap returns the recency set bound with fallback.
func (c *FileWatchConfig) GetDedupeCap() int {
	if c == nil || c.DedupeCap <= 0 {
		return defaultDedupeCap
	}

	return c.DedupeCap
}

// JournalConfig configures the journal listener.
type JournalConfig struct {
	// Enabled gates delivery to this plugin.
	// Default: true
	Enabled *bool `json:"enabled,omitempty" koanf:"enabled" toml:"enabled"`

	// Path is the JSONL file events are appended to.
	// Default: ~/.vigil/journal.jsonl
	Path string `json:"path,omitempty" koanf:"path" toml:"path"`

	// MaxSize is the rotation threshold as a humanized byte count
	// ("10 MB", "512 KiB").
	// Default: "10 MB"
	MaxSize string `json:"max_size,omitempty" koanf:"max_size" toml:"max_size"`
}

// DefaultJournalConfig returns the journal document defaults.
func DefaultJournalConfig() *JournalConfig {
	enabled := true

	return &JournalConfig{
		Enabled: &enabled,
		MaxSize: DefaultJournalMaxSize,
	}
}

// WebhookConfig configures the webhook listener.
type WebhookConfig struct {
	// Enabled gates delivery to this plugin.
	// Default: true
	Enabled *bool `json:"enabled,omitempty" koanf:"enabled" toml:"enabled"`

	// URL is the endpoint each event document is POSTed to. An empty
	// URL fails initialization.
	URL string `json:"url,omitempty" koanf:"url" toml:"url"`

	// Timeout bounds a single delivery attempt.
	// Default: "10s"
	Timeout Duration `json:"timeout,omitempty" koanf:"timeout" toml:"timeout"`

	// EventTypes limits delivery to the listed types. Empty delivers
	// everything.
	EventTypes []string `json:"event_types,omitempty" koanf:"event_types" toml:"event_types"`
}

// DefaultWebhookConfig returns the webhook document defaults.
func DefaultWebhookConfig() *WebhookConfig {
	enabled := false // no useful default URL exists

	return &WebhookConfig{
		Enabled: &enabled,
		Timeout: Duration(defaultWebhookTimeout),
	}
}

// GetTimeout returns the delivery timeout with fallback.
func (c *WebhookConfig) GetTimeout() time.Duration {
	if c == nil {
		return defaultWebhookTimeout
	}

	return c.Timeout.OrDefault(defaultWebhookTimeout)
}

// DesktopNotifyConfig configures the desktopnotify listener.
type DesktopNotifyConfig struct {
	// Enabled gates delivery to this plugin.
	// Default: true
	Enabled *bool `json:"enabled,omitempty" koanf:"enabled" toml:"enabled"`

	// Title is the notification title sent to the agent.
	// Default: "vigil"
	Title string `json:"title,omitempty" koanf:"title" toml:"title"`

	// EventTypes limits notifications to the listed types. Empty
	// notifies on everything.
	EventTypes []string `json:"event_types,omitempty" koanf:"event_types" toml:"event_types"`
}

// DefaultDesktopNotifyConfig returns the desktopnotify document defaults.
func DefaultDesktopNotifyConfig() *DesktopNotifyConfig {
	enabled := true

	return &DesktopNotifyConfig{
		Enabled: &enabled,
		Title:   "vigil",
	}
}

// GetTitle returns the notification title with fallback.
func (c *DesktopNotifyConfig) GetTitle() string {
	if c == nil || c.Title == "" {
		return "vigil"
	}

	return c.Title
}

// ExternalConfig is the document shared by discovered external (exec)
// plugins.
type ExternalConfig struct {
	// Enabled gates forwarding/delivery for this plugin.
	// Default: true
	Enabled *bool `json:"enabled,omitempty" koanf:"enabled" toml:"enabled"`

	// Args are extra command-line arguments passed to the executable.
	Args []string `json:"args,omitempty" koanf:"args" toml:"args"`

	// Timeout bounds one listener invocation or the provider --info
	// handshake.
	// Default: "5s"
	Timeout Duration `json:"timeout,omitempty" koanf:"timeout" toml:"timeout"`

	// Config is passed through to the plugin process untouched.
	Config map[string]any `json:"config,omitempty" koanf:"config" toml:"config"`
}

// DefaultExternalConfig returns the external plugin document defaults.
func DefaultExternalConfig() *ExternalConfig {
	enabled := true

	return &ExternalConfig{
		Enabled: &enabled,
		Timeout: Duration(defaultExternalTimeout),
	}
}

// GetTimeout returns the invocation timeout with fallback.
func (c *ExternalConfig) GetTimeout() time.Duration {
	if c == nil {
		return defaultExternalTimeout
	}

	return c.Timeout.OrDefault(defaultExternalTimeout)
}

// IsEnabled reports the enabled flag of a document, defaulting to true
// when the pointer is unset.
func IsEnabled(enabled *bool) bool {
	if enabled == nil {
		return true
	}

	return *enabled
}
