package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hako/durafmt"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/smykla-skalski/vigil/internal/control"
	"github.com/smykla-skalski/vigil/internal/hostctl"
	"github.com/smykla-skalski/vigil/internal/registry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List plugins and their lifecycle state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var (
	stylePass = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleFail = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleDim  = lipgloss.NewStyle().Faint(true)
)

func runStatus(cmd *cobra.Command, _ []string) error {
	client, err := newHostClient()
	if err != nil {
		return err
	}

	var data hostctl.StatusData
	if err := client.CallData(cmd.Context(), control.NewRequest(hostctl.CommandGetStatus, nil), &data); err != nil {
		return err
	}

	entries := append(append([]registry.StatusEntry{}, data.Providers...), data.Listeners...)
	if len(entries) == 0 {
		fmt.Println("no plugins loaded")

		return nil
	}

	fmt.Print(renderStatusTable(entries, isTerminal()))

	return nil
}

// renderStatusTable builds the plugin table. Styling is skipped when
// stdout is not a terminal.
func renderStatusTable(entries []registry.StatusEntry, styled bool) string {
	var buf bytes.Buffer

	t := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleRounded),
		})),
		tablewriter.WithPadding(tw.Padding{Left: " ", Right: " "}),
	)

	t.Header([]string{"", "Name", "Kind", "State", "Uptime"})

	for _, entry := range entries {
		t.Append([]string{
			stateIcon(entry, styled),
			entry.Name,
			entry.Kind.String(),
			stateCell(entry, styled),
			uptimeCell(entry),
		})
	}

	_ = t.Render()

	return buf.String()
}

func stateIcon(entry registry.StatusEntry, styled bool) string {
	icon, style := "?", styleDim

	switch {
	case entry.State == registry.StateRunning && entry.Enabled:
		icon, style = "✓", stylePass
	case entry.State == registry.StateRunning:
		icon, style = "-", styleDim
	case entry.State == registry.StateFailedInit:
		icon, style = "✗", styleFail
	case entry.State == registry.StateSkippedElevation:
		icon, style = "!", styleWarn
	default:
		icon, style = "-", styleDim
	}

	if !styled {
		return icon
	}

	return style.Render(icon)
}

func stateCell(entry registry.StatusEntry, styled bool) string {
	cell := entry.State.String()

	if !entry.Enabled {
		cell += " (disabled)"
	}

	if entry.Error != "" {
		cell += ": " + entry.Error
	}

	if styled && entry.State == registry.StateFailedInit {
		return styleFail.Render(cell)
	}

	return cell
}

func uptimeCell(entry registry.StatusEntry) string {
	if entry.State != registry.StateRunning || entry.StartedAt.IsZero() {
		return ""
	}

	uptime := time.Since(entry.StartedAt).Truncate(time.Second)

	return durafmt.Parse(uptime).LimitFirstN(2).String()
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) &&
		!strings.EqualFold(os.Getenv("NO_COLOR"), "1")
}
