package commands

import (
	"fmt"
	"time"

	"catsync/pkg/types"

	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log <target>",
	Short: "Show the audit trail of a logical path",
	Long:  `Display the mutations catsync performed on <target>, newest first.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLocal(); err != nil {
			return err
		}
		target := types.NewLogicalPath(args[0])

		events, err := CS.Repo.FindAuditEvents(cmd.Context(), target, logLimit)
		if err != nil {
			return fmt.Errorf("failed to read audit trail: %w", err)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No audit events yet.")
			return nil
		}

		const (
			colorYellow = "\033[33m"
			colorReset  = "\033[0m"
		)
		out := cmd.OutOrStdout()
		for _, ev := range events {
			fmt.Fprintf(out, "%sevent %s%s\n", colorYellow, ev.ID, colorReset)
			fmt.Fprintf(out, "Action: %s\n", ev.Action)
			fmt.Fprintf(out, "Actor:  %s\n", ev.Actor)
			fmt.Fprintf(out, "Date:   %s\n", ev.CreatedAt.Format(time.RFC1123))
			fmt.Fprintf(out, "\n    %s\n", ev.Path)
			if len(ev.Options) > 0 {
				fmt.Fprintf(out, "    %s\n", ev.Options)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "maximum number of events")
	rootCmd.AddCommand(logCmd)
}
