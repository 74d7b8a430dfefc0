package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smykla-skalski/vigil/internal/control"
	"github.com/smykla-skalski/vigil/internal/hostctl"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Collect a debug dump from the running daemon",
	RunE:  runDebug,
}

func init() {
	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, _ []string) error {
	client, err := newHostClient()
	if err != nil {
		return err
	}

	var data hostctl.DebugData

	req := control.NewRequest(hostctl.CommandGetDebug, nil)
	if err := client.CallData(cmd.Context(), req, &data); err != nil {
		return err
	}

	fmt.Println(data.FilePath)

	return nil
}
