package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/smykla-skalski/vigil/internal/control"
	"github.com/smykla-skalski/vigil/internal/hostctl"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <provider|listener> <name> <on|off>",
	Short: "Enable or disable a plugin without stopping it",
	Args:  cobra.ExactArgs(3),
	RunE:  runToggle,
}

func init() {
	rootCmd.AddCommand(toggleCmd)
}

func runToggle(cmd *cobra.Command, args []string) error {
	var command string

	switch args[0] {
	case "provider":
		command = hostctl.CommandToggleProvider
	case "listener":
		command = hostctl.CommandToggleListener
	default:
		return errors.Newf("unknown plugin kind %q, expected provider or listener", args[0])
	}

	var enabled string

	switch args[2] {
	case "on":
		enabled = "true"
	case "off":
		enabled = "false"
	default:
		return errors.Newf("unknown toggle value %q, expected on or off", args[2])
	}

	client, err := newHostClient()
	if err != nil {
		return err
	}

	req := control.NewRequest(command, map[string]string{
		"name":    args[1],
		"enabled": enabled,
	})

	if _, err := client.Call(cmd.Context(), req); err != nil {
		return err
	}

	fmt.Printf("%s %s is now %s\n", args[0], args[1], args[2])

	return nil
}
