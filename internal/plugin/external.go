// Package plugin loads external plugins: standalone executables that
// speak JSON over stdin/stdout.
//
// Protocol:
//   - Discovery: execute with --info, read a JSON plugin.Info document.
//   - Listener: one invocation per event, plugin.HandleRequest on stdin,
//     plugin.HandleResponse on stdout.
//   - Provider: one long-running invocation, one JSON event document per
//     stdout line.
package plugin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"

	internalexec "github.com/smykla-skalski/vigil/internal/exec"
	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
	"github.com/smykla-skalski/vigil/pkg/plugin"
)

var (
	// ErrInfoFailed is returned when the --info handshake fails.
	ErrInfoFailed = errors.New("plugin --info exited with non-zero code")

	// ErrExecFailed is returned when a listener invocation fails.
	ErrExecFailed = errors.New("plugin execution failed with non-zero code")

	// ErrIncompatibleAPI is returned when a plugin targets a different
	// API major version.
	ErrIncompatibleAPI = errors.New("incompatible plugin API version")
)

// providerScanBuffer bounds one stdout line from a provider subprocess.
const providerScanBuffer = 1 << 20

// Loader performs the --info handshake and builds adapters around
// external executables.
type Loader struct {
	runner internalexec.CommandRunner
	logger logger.Logger
}

// NewLoader creates a Loader using runner for one-shot invocations.
func NewLoader(runner internalexec.CommandRunner, log logger.Logger) *Loader {
	return &Loader{
		runner: runner,
		logger: log,
	}
}

// FetchInfo executes path with --info and validates the advertised API
// version against the host's (same major required).
func (l *Loader) FetchInfo(ctx context.Context, path string, args []string) (plugin.Info, error) {
	infoArgs := append([]string{"--info"}, args...)

	result, err := l.runner.Run(ctx, path, infoArgs...)
	if err != nil {
		return plugin.Info{}, errors.Wrapf(err, "failed to execute %s --info", path)
	}

	if result.ExitCode != 0 {
		return plugin.Info{}, errors.Wrapf(
			ErrInfoFailed,
			"%s: exit code %d: %s",
			path,
			result.ExitCode,
			result.Stderr,
		)
	}

	var info plugin.Info
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return plugin.Info{}, errors.Wrapf(err, "failed to parse %s info JSON", path)
	}

	if err := checkAPIVersion(info.APIVersion); err != nil {
		return plugin.Info{}, errors.Wrapf(err, "plugin %s", info.Name)
	}

	return info, nil
}

// NewListener builds a Listener that invokes the executable once per
// event.
func (l *Loader) NewListener(
	info plugin.Info,
	path string,
	args []string,
	timeout time.Duration,
	pluginConfig map[string]any,
) plugin.Listener {
	return &execListener{
		info:    info,
		path:    path,
		args:    args,
		timeout: timeout,
		config:  pluginConfig,
		runner:  l.runner,
	}
}

// NewProvider builds a Provider that runs the executable as a
// long-lived subprocess and emits one event per stdout line.
func (l *Loader) NewProvider(info plugin.Info, path string, args []string) plugin.Provider {
	return &execProvider{
		info:   info,
		path:   path,
		args:   args,
		logger: l.logger.With("plugin", info.Name),
	}
}

// checkAPIVersion enforces a matching major version between host and
// plugin.
func checkAPIVersion(advertised string) error {
	hostVersion, err := semver.NewVersion(plugin.APIVersion)
	if err != nil {
		return errors.Wrap(err, "failed to parse host API version")
	}

	pluginVersion, err := semver.NewVersion(advertised)
	if err != nil {
		return errors.Wrapf(err, "failed to parse advertised API version %q", advertised)
	}

	if pluginVersion.Major() != hostVersion.Major() {
		return errors.Wrapf(
			ErrIncompatibleAPI,
			"plugin targets %s, host speaks %s",
			advertised,
			plugin.APIVersion,
		)
	}

	return nil
}

// execListener invokes an executable once per event.
type execListener struct {
	info    plugin.Info
	path    string
	args    []string
	timeout time.Duration
	config  map[string]any
	runner  internalexec.CommandRunner
}

func (e *execListener) Name() string {
	return e.info.Name
}

func (e *execListener) RequiresElevation() bool {
	return e.info.RequiresElevation
}

func (*execListener) Initialize(context.Context) error {
	return nil
}

func (*execListener) Start(context.Context) error {
	return nil
}

func (*execListener) Stop() error {
	return nil
}

func (e *execListener) DebugSnapshot() map[string]any {
	return map[string]any{
		"path":    e.path,
		"version": e.info.Version,
		"timeout": e.timeout.String(),
	}
}

// Handle serializes the event and pipes it to one plugin invocation.
func (e *execListener) Handle(ctx context.Context, evt *event.Event) error {
	rawEvent, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	req := plugin.HandleRequest{
		Event:  rawEvent,
		Config: e.config,
	}

	reqJSON, err := json.Marshal(&req)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	execCtx := ctx

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && e.timeout > 0 {
		var cancel context.CancelFunc

		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err := e.runner.RunWithStdin(execCtx, bytes.NewReader(reqJSON), e.path, e.args...)
	if err != nil {
		return errors.Wrapf(err, "plugin %s execution failed", e.info.Name)
	}

	if result.ExitCode != 0 {
		return errors.Wrapf(
			ErrExecFailed,
			"%s: exit code %d: %s",
			e.info.Name,
			result.ExitCode,
			result.Stderr,
		)
	}

	var resp plugin.HandleResponse
	if err := json.Unmarshal([]byte(result.Stdout), &resp); err != nil {
		return errors.Wrapf(err, "failed to parse %s response", e.info.Name)
	}

	if !resp.Success {
		return errors.Newf("plugin %s rejected event: %s", e.info.Name, resp.Error)
	}

	return nil
}

// execProvider runs an executable as a subprocess for the lifetime of
// the plugin and parses one event document per stdout line.
type execProvider struct {
	info   plugin.Info
	path   string
	args   []string
	logger logger.Logger

	mu      sync.Mutex
	emit    plugin.EmitFunc
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	lines   uint64
}

func (p *execProvider) Name() string {
	return p.info.Name
}

func (p *execProvider) RequiresElevation() bool {
	return p.info.RequiresElevation
}

func (*execProvider) Initialize(context.Context) error {
	return nil
}

func (p *execProvider) SetEmitter(emit plugin.EmitFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.emit = emit
}

// Start launches the subprocess and begins streaming its stdout.
func (p *execProvider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	if p.emit == nil {
		return errors.New("emitter not wired")
	}

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	cmd := exec.CommandContext(procCtx, p.path, p.args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()

		return errors.Wrapf(err, "failed to open stdout pipe for %s", p.info.Name)
	}

	if err := cmd.Start(); err != nil {
		cancel()

		return errors.Wrapf(err, "failed to start plugin %s", p.info.Name)
	}

	done := make(chan struct{})

	p.cmd = cmd
	p.cancel = cancel
	p.done = done
	p.started = true

	go p.stream(stdout, cmd, done)

	return nil
}

// Stop terminates the subprocess and waits for the stream goroutine.
func (p *execProvider) Stop() error {
	p.mu.Lock()

	if !p.started {
		p.mu.Unlock()

		return nil
	}

	p.started = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done

	return nil
}

func (p *execProvider) DebugSnapshot() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[string]any{
		"path":       p.path,
		"version":    p.info.Version,
		"running":    p.started,
		"lines_read": p.lines,
	}
}

// stream takes cmd and done as arguments so it never races a later
// Start swapping the struct fields.
func (p *execProvider) stream(stdout io.Reader, cmd *exec.Cmd, done chan struct{}) {
	defer close(done)
	defer func() {
		_ = cmd.Wait()
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), providerScanBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var evt event.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			p.logger.Warn("discarding malformed event line", "error", err)

			continue
		}

		if evt.Source == "" {
			evt.Source = p.info.Name
		}

		p.mu.Lock()
		p.lines++
		emit := p.emit
		p.mu.Unlock()

		emit(&evt)
	}

	if err := scanner.Err(); err != nil {
		p.logger.Debug("plugin stdout closed", "error", err)
	}
}
