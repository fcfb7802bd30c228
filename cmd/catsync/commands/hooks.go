package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Inspect hook modules",
}

var hooksLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List named hook modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		if CS == nil {
			return fmt.Errorf("app not initialized")
		}
		out := cmd.OutOrStdout()
		def := viper.GetString("hooks.default")

		names := CS.Hooks.Names()
		if len(names) == 0 {
			fmt.Fprintln(out, "No named hook modules (configure hooks.modules).")
		}
		for _, n := range names {
			mark := " "
			if n == def {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %s\n", mark, n)
		}
		if def != "" {
			fmt.Fprintf(out, "default: %s\n", def)
		}
		return nil
	},
}

func init() {
	hooksCmd.AddCommand(hooksLsCmd)
	rootCmd.AddCommand(hooksCmd)
}
