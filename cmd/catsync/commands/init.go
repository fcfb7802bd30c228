package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const configTemplate = `# catsync configuration
catalog:
  mode: local            # local | remote
  endpoint: localhost:7070
  zone: ""
  user: ""
  default_resource: ""
database:
  driver: sqlite         # sqlite | postgres
  path: .catsync/catalog.db
log:
  level: info
  format: console
hooks:
  default: ""            # module name or policy file (.toml / .yaml)
  modules: {}            # name: policy file
watch:
  prefix: /
  workers: 4
  debounce: 200ms
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a catsync workspace",
	Long:  `Create .catsync/config.yaml in the current directory and prepare the catalog root.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		// 1. 配置文件
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfgPath := filepath.Join(wd, ".catsync", "config.yaml")
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Fprintf(out, "⚠️  catsync config already exists in %s\n", cfgPath)
		} else {
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(cfgPath, []byte(configTemplate), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(out, "✅ Wrote %s\n", cfgPath)
		}

		// 2. 打开一次 session，catalog 根会被自动创建
		sess, err := CS.Connector.Open(cmd.Context(), CS.Identity)
		if err != nil {
			return fmt.Errorf("failed to reach catalog: %w", err)
		}
		defer sess.Close()
		ok, err := sess.CollectionExists(cmd.Context(), "/")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("catalog root is missing")
		}

		// 本地 catalog 顺便报告已有的 collection 数量
		if CS.Repo != nil {
			n, err := CS.Repo.CountCollections(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Catalog is ready (%d collections)\n", n)
			return nil
		}
		fmt.Fprintln(out, "✅ Catalog is ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
