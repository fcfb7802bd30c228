package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"catsync/pkg/types"

	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat <target>",
	Short: "Show the replicas of a data object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if CS == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		target := types.NewLogicalPath(args[0])

		sess, err := CS.Connector.Open(ctx, CS.Identity)
		if err != nil {
			return err
		}
		defer sess.Close()

		// Collection 没有 replica
		if ok, err := sess.CollectionExists(ctx, target); err != nil {
			return err
		} else if ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is a collection\n", target)
			return nil
		}

		repls, err := sess.Replicas(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", target, err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tRESOURCE\tKIND\tSIZE\tMODIFIED\tSTATUS\tPHYSICAL PATH")
		for _, r := range repls {
			kind := "vault"
			if r.Registered {
				kind = "registered"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
				r.Number, r.ResourceHier, kind, r.Size,
				time.Unix(r.ModifyTime, 0).UTC().Format(time.RFC3339),
				r.Status, r.PhysicalPath)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
