package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japanese-wolf/brain-stream/internal/core"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the brainstream version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "brainstream %s\n", core.Version)
		},
	}
}
