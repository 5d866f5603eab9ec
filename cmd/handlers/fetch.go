package handlers

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/japanese-wolf/brain-stream/internal/collector"
	"github.com/japanese-wolf/brain-stream/internal/config"
	"github.com/japanese-wolf/brain-stream/internal/core"
)

// NewFetchCmd creates the fetch command: one manual collection run.
func NewFetchCmd() *cobra.Command {
	var skipLLM bool

	cmd := &cobra.Command{
		Use:   "fetch [source]",
		Short: "Run one collection pass, optionally for a single source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := ""
			if len(args) == 1 {
				source = args[0]
			}
			return runFetch(cmd, source, skipLLM)
		},
	}

	cmd.Flags().BoolVar(&skipLLM, "skip-llm", false, "skip the LLM summarizer and use fallback summaries")

	return cmd
}

func runFetch(cmd *cobra.Command, source string, skipLLM bool) error {
	ctx := cmd.Context()
	cfg := config.Get()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := collector.Options{SkipLLM: skipLLM}

	var summary *core.CollectionSummary
	if source != "" {
		summary, err = a.collector.CollectOne(ctx, source, opts)
	} else {
		summary, err = a.collector.CollectAll(ctx, opts)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary))
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// renderSummary formats a collection summary as a table.
func renderSummary(summary *core.CollectionSummary) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SOURCE", "FETCHED", "NEW", "PROCESSED", "ERRORS")

	for _, src := range summary.Sources {
		errText := "-"
		if len(src.Errors) > 0 {
			errText = strings.Join(src.Errors, "; ")
		}
		t.Row(
			src.SourceName,
			fmt.Sprintf("%d", src.Fetched),
			fmt.Sprintf("%d", src.New),
			fmt.Sprintf("%d", src.Processed),
			errText,
		)
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Collection run") + "\n")
	b.WriteString(t.Render() + "\n")
	b.WriteString(faintStyle.Render(fmt.Sprintf(
		"total: %d fetched, %d new, %d processed in %dms",
		summary.TotalFetched, summary.TotalNew, summary.TotalProcessed, summary.DurationMS)))
	return b.String()
}
