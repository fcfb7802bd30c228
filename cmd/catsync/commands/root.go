package commands

import (
	"context"
	"fmt"
	"os"

	"catsync/pkg/app"
	"catsync/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	CS *app.App
)

var rootCmd = &cobra.Command{
	Use:   "catsync",
	Short: "catsync: reconcile local files with a remote data catalog",
	// 所有子命令执行前统一组装 App
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 测试中 App 已经被注入
		if CS != nil {
			return nil
		}
		var err error
		CS, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize catsync: %w", err)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			CS.Log.Debug().Str("file", used).Msg("using config file")
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute 是入口
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)
	// 命令失败时 PostRun 不会执行，所以在 finalize 中释放 App
	cobra.OnFinalize(closeApp)

	// 1. 全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.catsync/config.yaml or $HOME/.catsync/config.yaml)")

	// 2. 常用配置项也可以用参数覆盖，并绑定到 Viper
	flags := []struct {
		name, key, usage string
	}{
		{"mode", "catalog.mode", "catalog mode: local | remote"},
		{"endpoint", "catalog.endpoint", "catsyncd address in remote mode"},
		{"zone", "catalog.zone", "ambient catalog zone"},
		{"user", "catalog.user", "ambient catalog user"},
		{"log-level", "log.level", "log level: trace, debug, info, warn, error"},
	}
	for _, f := range flags {
		rootCmd.PersistentFlags().String(f.name, "", f.usage)
		if err := viper.BindPFlag(f.key, rootCmd.PersistentFlags().Lookup(f.name)); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}

func closeApp() {
	if CS == nil {
		return
	}
	if err := CS.Close(); err != nil {
		CS.Log.Warn().Err(err).Msg("failed to close catsync")
	}
	CS = nil
}

// requireLocal 某些命令直接操作 catalog 数据库，只能在 local 模式下使用
func requireLocal() error {
	if CS == nil {
		return fmt.Errorf("app not initialized")
	}
	if CS.Repo == nil {
		return fmt.Errorf("this command requires catalog.mode=local")
	}
	return nil
}
