package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/proctrace/internal/presentation/graph"
	"github.com/aretw0/proctrace/internal/presentation/tui"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [processName]",
	Short: "Render a persisted process snapshot",
	Long: `Renders the snapshot of a finished process as markdown, styled when stdout is a terminal.
Without a name, lists the snapshots in the store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		ctx := context.Background()
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			names, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}
			if len(names) == 0 {
				fmt.Fprintln(out, "No snapshots found.")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		}

		name := args[0]
		process, err := store.Load(ctx, name)
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			return fmt.Errorf("no snapshot for %s", name)
		}
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}

		if mermaid, _ := cmd.Flags().GetBool("mermaid"); mermaid {
			fmt.Fprint(out, graph.GenerateMermaid(name, process))
			return nil
		}

		plain, _ := cmd.Flags().GetBool("plain")
		styled := !plain && tui.IsTerminal(os.Stdout)
		if styled {
			fmt.Fprintf(out, "%s %s\n", name, tui.StatusBadge(process.Status))
		}
		fmt.Fprint(out, strings.TrimLeft(tui.Render(tui.ProcessMarkdown(name, process), styled), "\n"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().Bool("mermaid", false, "Print the step tree as a Mermaid flowchart")
	showCmd.Flags().Bool("plain", false, "Print raw markdown even on a terminal")
}
