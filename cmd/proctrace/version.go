package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/proctrace"
	"github.com/aretw0/proctrace/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of proctrace",
	Run: func(cmd *cobra.Command, args []string) {
		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(cmd.OutOrStdout(), strings.TrimSpace(proctrace.Version))
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "proctrace version %s\n", strings.TrimSpace(proctrace.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
