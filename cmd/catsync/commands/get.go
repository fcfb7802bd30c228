package commands

import (
	"fmt"
	"io"

	"catsync/pkg/catalog"
	"catsync/pkg/types"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <target> [dest]",
	Short: "Read the content of a data object",
	Long:  `Copy the first good replica of <target> to [dest], or to stdout when [dest] is omitted.`,
	Args:  cobra.RangeArgs(1, 2),
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

		reader, ok := sess.(catalog.ObjectReader)
		if !ok {
			return fmt.Errorf("reading data objects requires catalog.mode=local")
		}

		rc, repl, err := reader.ReadObject(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", target, err)
		}
		defer rc.Close()

		// 1. 没有 dest 时直接写到 stdout
		if len(args) == 1 {
			_, err = io.Copy(cmd.OutOrStdout(), rc)
			return err
		}

		// 2. 写入本地文件
		f, err := CS.Fs.Create(args[1])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[1], err)
		}
		n, err := io.Copy(f, rc)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", args[1], err)
		}

		CS.Log.Debug().Stringer("target", target).Int("replica", repl.Number).Msg("object read")
		fmt.Fprintf(cmd.ErrOrStderr(), "✅ %s -> %s (%d bytes from %s)\n", target, args[1], n, repl.ResourceName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
