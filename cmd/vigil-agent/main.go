// Package main provides the CLI entry point for the vigil desktop agent.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/smykla-skalski/vigil/internal/agentctl"
	internalconfig "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/internal/control"
	internalexec "github.com/smykla-skalski/vigil/internal/exec"
	"github.com/smykla-skalski/vigil/pkg/logger"
)

// defaultToolTimeout bounds one desktop tool invocation (zenity,
// notify-send).
const defaultToolTimeout = 30 * time.Second

// Build information set by ldflags at build time.
var version = "dev"

var debugMode bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vigil-agent",
	Short: "Desktop companion for the vigild daemon",
	Long: `vigil-agent runs in the user session and answers the daemon's UI
requests: message boxes, notifications, and program execution.`,
	RunE:              runAgent,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("vigil-agent %s (%s, %s/%s)\n",
				version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	})
}

func runAgent(cmd *cobra.Command, _ []string) error {
	store, err := internalconfig.NewStore()
	if err != nil {
		return errors.Wrap(err, "failed to create config store")
	}

	global, err := store.LoadGlobal()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	level := logger.LevelInfo
	if debugMode {
		level = logger.LevelDebug
	}

	log := logger.NewWriterLogger(os.Stderr, level)

	log.Info("vigil-agent starting", "version", version, "socket", global.AgentSocketPath())

	server := control.NewServer(
		global.AgentSocketPath(),
		global.MaxConnections(),
		log.With("component", "control"),
	)

	handlers := agentctl.NewHandlers(
		internalexec.NewCommandRunner(defaultToolTimeout),
		os.Stdout,
		log,
	)
	handlers.Register(server)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx); err != nil && !errors.Is(err, control.ErrServerClosed) {
		return errors.Wrap(err, "control server failed")
	}

	log.Info("vigil-agent stopped")

	return nil
}
