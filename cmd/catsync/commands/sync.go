package commands

import (
	"fmt"
	"path/filepath"

	"catsync/pkg/catalog"
	"catsync/pkg/reconcile"
	"catsync/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	syncHooks          string
	syncContentChanged bool
	syncOpts           map[string]string
	syncDestResource   string
)

var syncCmd = &cobra.Command{
	Use:   "sync <path> <target>",
	Short: "Reconcile one local file with one logical catalog path",
	Long: `Reconcile the file at <path> with the catalog entry <target>.

Depending on the catalog state and the hook module this registers the file in place,
uploads it, registers an additional replica, re-uploads it or refreshes its size and
modification time. Missing parent collections are created.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if CS == nil {
			return fmt.Errorf("app not initialized")
		}
		req, err := buildRequest(args[0], args[1])
		if err != nil {
			return err
		}
		req.ContentChanged = syncContentChanged

		res, err := CS.Engine.Sync(cmd.Context(), req)
		if err != nil {
			return err
		}
		printResult(cmd, req.Target, res)
		return nil
	},
}

var syncMetaCmd = &cobra.Command{
	Use:   "sync-meta <path> <target>",
	Short: "Reconcile a metadata-only change (size, modification time)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if CS == nil {
			return fmt.Errorf("app not initialized")
		}
		req, err := buildRequest(args[0], args[1])
		if err != nil {
			return err
		}

		res, err := CS.Engine.SyncMetadata(cmd.Context(), req.Target, req.Path, req.Hooks, req.Options)
		if err != nil {
			return err
		}
		printResult(cmd, req.Target, res)
		return nil
	},
}

// buildRequest 合并命令行参数与配置中的默认 hook 模块
func buildRequest(path, target string) (reconcile.Request, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return reconcile.Request{}, err
	}

	opts := catalog.Options{}
	for k, v := range syncOpts {
		opts[k] = v
	}
	if syncDestResource != "" {
		opts[catalog.OptDestResource] = syncDestResource
	}

	hooksID := syncHooks
	if hooksID == "" {
		hooksID = viper.GetString("hooks.default")
	}

	return reconcile.Request{
		Target:  types.NewLogicalPath(target),
		Path:    abs,
		Hooks:   hooksID,
		Options: opts,
	}, nil
}

func printResult(cmd *cobra.Command, target types.LogicalPath, res reconcile.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: %s (was %s, as %s)\n", target, res.Decision, res.State, res.Identity)
}

func addSyncFlags(c *cobra.Command) {
	c.Flags().StringVar(&syncHooks, "hooks", "", "hook module name or policy file (default hooks.default)")
	c.Flags().StringToStringVar(&syncOpts, "opt", nil, "extra sync option key=value (repeatable)")
	c.Flags().StringVarP(&syncDestResource, "resource", "R", "", "destination resource (destRescName)")
}

func init() {
	addSyncFlags(syncCmd)
	syncCmd.Flags().BoolVar(&syncContentChanged, "content-changed", true, "the file content changed (false: metadata only)")
	addSyncFlags(syncMetaCmd)

	rootCmd.AddCommand(syncCmd, syncMetaCmd)
}
