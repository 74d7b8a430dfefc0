// Package agentctl exposes the desktop agent's control commands: message
// boxes, notifications, and program execution in the user session.
package agentctl

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	"mvdan.cc/sh/v3/shell"

	"github.com/smykla-skalski/vigil/internal/control"
	internalexec "github.com/smykla-skalski/vigil/internal/exec"
	"github.com/smykla-skalski/vigil/pkg/logger"
)

// Command names answered by the agent server.
const (
	CommandShowMessageBox   = "showmessagebox"
	CommandSendNotification = "sendnotification"
	CommandRun              = "run"
)

// Handlers answers agent-side control commands. Dialog and notification
// commands shell out to desktop tools and degrade to plain output when
// those tools are absent.
type Handlers struct {
	runner internalexec.CommandRunner
	out    io.Writer
	logger logger.Logger
}

// NewHandlers creates agent-side handlers. out receives fallback text
// when no desktop tooling is available.
func NewHandlers(runner internalexec.CommandRunner, out io.Writer, log logger.Logger) *Handlers {
	return &Handlers{
		runner: runner,
		out:    out,
		logger: log,
	}
}

// Register installs every agent command on the server.
func (h *Handlers) Register(server *control.Server) {
	server.Handle(CommandShowMessageBox, h.ShowMessageBox)
	server.Handle(CommandSendNotification, h.SendNotification)
	server.Handle(CommandRun, h.Run)
}

type messageBoxParams struct {
	Text    string `mapstructure:"text"`
	Caption string `mapstructure:"caption"`
	Buttons string `mapstructure:"buttons"`
	Icon    string `mapstructure:"icon"`
}

// MessageBoxData is the showmessagebox data document.
type MessageBoxData struct {
	Result string `json:"result"`
}

// ShowMessageBox displays a dialog via zenity, falling back to writing
// the text to the agent's output. The reported result is the button
// pressed; the fallback always reports "ok".
func (h *Handlers) ShowMessageBox(ctx context.Context, req *control.Request) (*control.Response, error) {
	if _, err := control.RequiredParam(req, "text"); err != nil {
		return nil, err
	}

	var params messageBoxParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}

	args := []string{"--info", "--text", params.Text}
	if params.Caption != "" {
		args = append(args, "--title", params.Caption)
	}

	result, err := h.runner.Run(ctx, "zenity", args...)
	if err != nil || result.ExitCode != 0 {
		h.logger.Debug("zenity unavailable, writing to output", "error", err)
		fmt.Fprintf(h.out, "%s: %s\n", params.Caption, params.Text)
	}

	return control.OK(MessageBoxData{Result: "ok"})
}

type notificationParams struct {
	Title   string `mapstructure:"title"`
	Message string `mapstructure:"message"`
}

// SendNotification raises a desktop notification via notify-send,
// falling back to writing the text to the agent's output.
func (h *Handlers) SendNotification(ctx context.Context, req *control.Request) (*control.Response, error) {
	if _, err := control.RequiredParam(req, "title"); err != nil {
		return nil, err
	}

	if _, err := control.RequiredParam(req, "message"); err != nil {
		return nil, err
	}

	var params notificationParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}

	result, err := h.runner.Run(ctx, "notify-send", params.Title, params.Message)
	if err != nil || result.ExitCode != 0 {
		h.logger.Debug("notify-send unavailable, writing to output", "error", err)
		fmt.Fprintf(h.out, "%s: %s\n", params.Title, params.Message)
	}

	return control.OK(nil)
}

type runParams struct {
	App              string `mapstructure:"app"`
	Args             string `mapstructure:"args"`
	WorkingDirectory string `mapstructure:"workingDirectory"`
	WaitForExit      bool   `mapstructure:"waitForExit"`
	UseShellExecute  bool   `mapstructure:"useShellExecute"`
	CreateNoWindow   bool   `mapstructure:"createNoWindow"`
}

// RunData is the run data document when waitForExit is requested.
type RunData struct {
	ExitCode int `json:"exitCode"`
}

// Run executes a program in the agent's session. Arguments are split
// with shell word rules but no shell is involved; the window-visibility
// parameters are accepted for wire compatibility and have no effect on
// this platform.
func (h *Handlers) Run(_ context.Context, req *control.Request) (*control.Response, error) {
	if _, err := control.RequiredParam(req, "app"); err != nil {
		return nil, err
	}

	var params runParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}

	args, err := shell.Fields(params.Args, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to split args %q", params.Args)
	}

	cmd := exec.Command(params.App, args...)
	cmd.Dir = params.WorkingDirectory

	if !params.WaitForExit {
		if err := cmd.Start(); err != nil {
			return nil, errors.Wrapf(err, "failed to start %s", params.App)
		}

		// Reap the process in the background so it never zombies.
		go func() {
			_ = cmd.Wait()
		}()

		return control.OK(nil)
	}

	err = cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return control.OK(RunData{ExitCode: exitErr.ExitCode()})
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to run %s", params.App)
	}

	return control.OK(RunData{ExitCode: 0})
}

// decodeParams maps the flat string parameters onto a typed document.
// Weak typing converts "true"/"false" strings to bools.
func decodeParams(req *control.Request, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to build params decoder")
	}

	if err := decoder.Decode(req.Parameters); err != nil {
		return errors.Wrap(err, "failed to decode params")
	}

	return nil
}
