package handlers

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/japanese-wolf/brain-stream/internal/config"
)

// NewStatusCmd creates the status command: a snapshot of the stores and
// the cluster topology.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored article counts, clusters and bandit state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := config.Get()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	total, err := a.topo.TotalCount(ctx)
	if err != nil {
		return err
	}
	clusters, err := a.topo.Info(ctx)
	if err != nil {
		return err
	}
	actions, err := a.stateStore.ActionCount()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render("brainstream status"))
	fmt.Fprintf(out, "data dir:  %s\n", cfg.App.DataDir)
	fmt.Fprintf(out, "articles:  %d\n", total)
	fmt.Fprintf(out, "clusters:  %d\n", len(clusters))
	fmt.Fprintf(out, "actions:   %d\n", actions)

	if len(clusters) == 0 {
		fmt.Fprintln(out, faintStyle.Render("no clusters yet; run 'brainstream fetch' to collect"))
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("CLUSTER", "ARTICLES", "DENSITY", "ALPHA", "BETA", "LABEL")
	for _, c := range clusters {
		t.Row(
			fmt.Sprintf("%d", c.ClusterID),
			fmt.Sprintf("%d", c.ArticleCount),
			fmt.Sprintf("%.2f", c.Density),
			fmt.Sprintf("%.1f", c.Alpha),
			fmt.Sprintf("%.1f", c.Beta),
			c.Label,
		)
	}
	fmt.Fprintln(out, t.Render())
	return nil
}
