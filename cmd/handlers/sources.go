package handlers

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/japanese-wolf/brain-stream/internal/config"
	"github.com/japanese-wolf/brain-stream/internal/core"
)

// NewSourcesCmd creates the sources command: the registered plugin fleet
// with each plugin's persisted fetch state.
func NewSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the registered source plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources(cmd)
		},
	}
}

func runSources(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := config.Get()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	statuses, err := a.stateStore.SourceStatuses()
	if err != nil {
		return err
	}
	byName := make(map[string]core.SourceStatus, len(statuses))
	for _, st := range statuses {
		byName[st.PluginName] = st
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "VENDOR", "KIND", "STATUS", "LAST FETCH", "DESCRIPTION")

	for _, plugin := range a.registry.All() {
		info := plugin.Info()
		status, lastFetch := "never", "-"
		if st, ok := byName[info.Name]; ok {
			if st.FetchStatus != "" {
				status = st.FetchStatus
			}
			if !st.LastFetchedAt.IsZero() {
				lastFetch = st.LastFetchedAt.UTC().Format(time.RFC3339)
			}
		}
		t.Row(info.Name, info.Vendor, info.Kind, status, lastFetch, info.Description)
	}

	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}
