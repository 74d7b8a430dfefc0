package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smykla-skalski/vigil/internal/control"
	"github.com/smykla-skalski/vigil/internal/hostctl"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration and restart plugins against it",
	RunE:  runReload,
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}

func runReload(cmd *cobra.Command, _ []string) error {
	client, err := newHostClient()
	if err != nil {
		return err
	}

	req := control.NewRequest(hostctl.CommandReloadConfig, nil)
	if _, err := client.Call(cmd.Context(), req); err != nil {
		return err
	}

	fmt.Println("configuration reloaded")

	return nil
}
