// Package main provides the CLI entry point for the vigild host daemon.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/smykla-skalski/vigil/internal/bus"
	internalconfig "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/internal/control"
	"github.com/smykla-skalski/vigil/internal/debugdump"
	"github.com/smykla-skalski/vigil/internal/elevation"
	internalexec "github.com/smykla-skalski/vigil/internal/exec"
	"github.com/smykla-skalski/vigil/internal/hostctl"
	"github.com/smykla-skalski/vigil/internal/listeners"
	extplugin "github.com/smykla-skalski/vigil/internal/plugin"
	"github.com/smykla-skalski/vigil/internal/providers"
	"github.com/smykla-skalski/vigil/internal/registry"
	"github.com/smykla-skalski/vigil/pkg/logger"
)

// defaultHandshakeTimeout bounds the --info exchange with external plugins.
const defaultHandshakeTimeout = 5 * time.Second

var debugMode bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vigild",
	Short: "Plugin host daemon",
	Long: `vigild supervises event provider and listener plugins, routes events
between them, and answers control requests on a local socket.`,
	RunE:              runDaemon,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
}

func builtins() []registry.Builtin {
	return []registry.Builtin{
		{Name: providers.HeartbeatName, Kind: registry.KindProvider, New: providers.NewHeartbeat},
		{Name: providers.FileWatchName, Kind: registry.KindProvider, New: providers.NewFileWatch},
		{Name: listeners.JournalName, Kind: registry.KindListener, New: listeners.NewJournal},
		{Name: listeners.WebhookName, Kind: registry.KindListener, New: listeners.NewWebhook},
		{Name: listeners.DesktopNotifyName, Kind: registry.KindListener, New: listeners.NewDesktopNotify},
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	store, err := internalconfig.NewStore()
	if err != nil {
		return errors.Wrap(err, "failed to create config store")
	}

	global, err := store.LoadGlobal()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	log, err := newDaemonLogger(global.LogFile(), global.LogLevel())
	if err != nil {
		return errors.Wrap(err, "failed to create logger")
	}

	log.Info("vigild starting", "version", version, "base_dir", store.BaseDir())

	eventBus := bus.New(global.QueueSize(), log.With("component", "bus"))

	loader := extplugin.NewLoader(
		internalexec.NewCommandRunner(defaultHandshakeTimeout),
		log.With("component", "loader"),
	)

	manager := registry.NewManager(registry.Options{
		Store:    store,
		Bus:      eventBus,
		Checker:  elevation.NewChecker(),
		Loader:   loader,
		Builtins: builtins(),
		Logger:   log.With("component", "registry"),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.LoadAll(ctx); err != nil {
		return errors.Wrap(err, "failed to load plugins")
	}

	manager.StartAll(ctx)

	collector := debugdump.NewCollector(manager, eventBus, version, log.With("component", "debugdump"))
	dumpWriter := debugdump.NewWriter("", log.With("component", "debugdump"))

	server := control.NewServer(
		global.HostSocketPath(),
		global.MaxConnections(),
		log.With("component", "control"),
	)

	handlers := hostctl.NewHandlers(manager, &dumpRunner{collector, dumpWriter}, log)
	handlers.Register(server)

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, control.ErrServerClosed) {
			log.Error("control server failed", "error", err)
		}
	}

	_ = server.Shutdown()
	manager.StopAll()
	eventBus.Close()

	log.Info("vigild stopped")

	return nil
}

// dumpRunner glues the collector and writer behind hostctl.DebugDumper.
type dumpRunner struct {
	collector *debugdump.Collector
	writer    *debugdump.Writer
}

func (d *dumpRunner) Dump() (string, error) {
	return d.writer.Write(d.collector.CollectAll())
}

func newDaemonLogger(logFile string, level string) (logger.Logger, error) {
	logLevel, err := logger.LevelString(level)
	if err != nil {
		logLevel = logger.LevelInfo
	}

	if debugMode {
		logLevel = logger.LevelDebug
	}

	return logger.NewFileLogger(logFile, logLevel)
}
