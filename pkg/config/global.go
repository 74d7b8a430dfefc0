package config

import (
	"os"
	"path/filepath"
	"time"
)

// Defaults for the global document.
const (
	// DefaultBaseDir is the directory (under the home directory) holding
	// the global document, per-plugin documents and plugin directories.
	DefaultBaseDir = ".vigil"

	// DefaultHostSocket is the host control socket file name.
	DefaultHostSocket = "vigild.sock"

	// DefaultAgentSocket is the companion agent control socket file name.
	DefaultAgentSocket = "vigil-agent.sock"

	// DefaultLogFile is the host log file name.
	DefaultLogFile = "vigild.log"

	defaultRequestTimeout = 5 * time.Second
	defaultMaxConnections = 4
	defaultQueueSize      = 256
)

// Global is the top-level host configuration document.
type Global struct {
	// Host configures the host process and its control server.
	Host *HostConfig `json:"host,omitempty" koanf:"host" toml:"host"`

	// Agent configures how the host reaches the companion agent.
	Agent *AgentConfig `json:"agent,omitempty" koanf:"agent" toml:"agent"`

	// Bus configures event delivery.
	Bus *BusConfig `json:"bus,omitempty" koanf:"bus" toml:"bus"`

	// Log configures host logging.
	Log *LogConfig `json:"log,omitempty" koanf:"log" toml:"log"`
}

// HostConfig configures the host process.
type HostConfig struct {
	// SocketPath is the Unix socket the host control server listens on.
	// Default: ~/.vigil/vigild.sock
	SocketPath string `json:"socket_path,omitempty" koanf:"socket_path" toml:"socket_path"`

	// RequestTimeout bounds a single control exchange.
	// Default: "5s"
	RequestTimeout Duration `json:"request_timeout,omitempty" koanf:"request_timeout" toml:"request_timeout"`

	// MaxConnections bounds concurrently served control connections.
	// Default: 4
	MaxConnections int `json:"max_connections,omitempty" koanf:"max_connections" toml:"max_connections"`
}

// AgentConfig configures the host's view of the companion agent.
type AgentConfig struct {
	// SocketPath is the Unix socket the agent control server listens on.
	// Default: ~/.vigil/vigil-agent.sock
	SocketPath string `json:"socket_path,omitempty" koanf:"socket_path" toml:"socket_path"`

	// RequestTimeout bounds a single host→agent exchange.
	// Default: "5s"
	RequestTimeout Duration `json:"request_timeout,omitempty" koanf:"request_timeout" toml:"request_timeout"`
}

// BusConfig configures the event bus.
type BusConfig struct {
	// QueueSize is the initial per-listener delivery buffer capacity.
	// Buffers grow beyond it as needed; no event is dropped.
	// Default: 256
	QueueSize int `json:"queue_size,omitempty" koanf:"queue_size" toml:"queue_size"`
}

// LogConfig configures host logging.
type LogConfig struct {
	// File is the log file path. Empty means stderr.
	// Default: ~/.vigil/vigild.log
	File string `json:"file,omitempty" koanf:"file" toml:"file"`

	// Level is the minimum emitted level (DEBUG, INFO, WARN, ERROR).
	// Default: "INFO"
	Level string `json:"level,omitempty" koanf:"level" toml:"level"`
}

// BaseDir returns the vigil base directory under the user's home
// directory, falling back to a relative path when the home directory
// cannot be determined.
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultBaseDir
	}

	return filepath.Join(home, DefaultBaseDir)
}

// DefaultGlobal returns the global document with every default
// materialized, suitable for writing to disk on first run.
func DefaultGlobal() *Global {
	base := BaseDir()

	return &Global{
		Host: &HostConfig{
			SocketPath:     filepath.Join(base, DefaultHostSocket),
			RequestTimeout: Duration(defaultRequestTimeout),
			MaxConnections: defaultMaxConnections,
		},
		Agent: &AgentConfig{
			SocketPath:     filepath.Join(base, DefaultAgentSocket),
			RequestTimeout: Duration(defaultRequestTimeout),
		},
		Bus: &BusConfig{
			QueueSize: defaultQueueSize,
		},
		Log: &LogConfig{
			File:  filepath.Join(base, DefaultLogFile),
			Level: "INFO",
		},
	}
}

// HostSocketPath returns the host control socket path with fallback.
func (g *Global) HostSocketPath() string {
	if g == nil || g.Host == nil || g.Host.SocketPath == "" {
		return filepath.Join(BaseDir(), DefaultHostSocket)
	}

	return g.Host.SocketPath
}

// AgentSocketPath returns the agent control socket path with fallback.
func (g *Global) AgentSocketPath() string {
	if g == nil || g.Agent == nil || g.Agent.SocketPath == "" {
		return filepath.Join(BaseDir(), DefaultAgentSocket)
	}

	return g.Agent.SocketPath
}

// HostRequestTimeout returns the control exchange timeout with fallback.
func (g *Global) HostRequestTimeout() time.Duration {
	if g == nil || g.Host == nil {
		return defaultRequestTimeout
	}

	return g.Host.RequestTimeout.OrDefault(defaultRequestTimeout)
}

// AgentRequestTimeout returns the host→agent timeout with fallback.
func (g *Global) AgentRequestTimeout() time.Duration {
	if g == nil || g.Agent == nil {
		return defaultRequestTimeout
	}

	return g.Agent.RequestTimeout.OrDefault(defaultRequestTimeout)
}

// MaxConnections returns the control server connection bound with
// fallback.
func (g *Global) MaxConnections() int {
	if g == nil || g.Host == nil || g.Host.MaxConnections <= 0 {
		return defaultMaxConnections
	}

	return g.Host.MaxConnections
}

// QueueSize returns the per-listener queue depth with fallback.
func (g *Global) QueueSize() int {
	if g == nil || g.Bus == nil || g.Bus.QueueSize <= 0 {
		return defaultQueueSize
	}

	return g.Bus.QueueSize
}

// LogFile returns the log file path with fallback.
func (g *Global) LogFile() string {
	if g == nil || g.Log == nil || g.Log.File == "" {
		return filepath.Join(BaseDir(), DefaultLogFile)
	}

	return g.Log.File
}

// LogLevel returns the configured level name with fallback.
func (g *Global) LogLevel() string {
	if g == nil || g.Log == nil || g.Log.Level == "" {
		return "INFO"
	}

	return g.Log.Level
}
