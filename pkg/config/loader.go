package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 CATSYNC_DATABASE_HOST
const EnvPrefix = "CATSYNC"

var envReplacer = strings.NewReplacer(".", "_")

// Load 初始化 Viper 配置，返回实际使用的配置文件 (没找到时为空)
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) (string, error) {
	// 1. 设置默认值
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序: 当前目录 -> ./.catsync -> ~/.catsync
		viper.AddConfigPath(".")
		viper.AddConfigPath(".catsync")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".catsync"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量，"database.host" -> CATSYNC_DATABASE_HOST
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(envReplacer)
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 只是没找到配置文件时，默认值和环境变量仍然可用
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("fatal error config file: %w", err)
	}
	return viper.ConfigFileUsed(), nil
}

func setDefaults() {
	// catalog
	viper.SetDefault("catalog.mode", "local") // local | remote
	viper.SetDefault("catalog.endpoint", "localhost:7070")
	viper.SetDefault("catalog.zone", "")
	viper.SetDefault("catalog.user", "")
	viper.SetDefault("catalog.default_resource", "")

	// 数据库
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", filepath.Join(".catsync", "catalog.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.log_level", "silent")

	// s3 resource 的凭证与 endpoint，bucket 来自 resource 自身
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.endpoint", "")

	// 审计
	viper.SetDefault("audit.db", true)
	viper.SetDefault("audit.redis_url", "")
	viper.SetDefault("audit.stream", "catsync:audit")

	// 日志
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	// hook 模块
	viper.SetDefault("hooks.default", "")
	viper.SetDefault("hooks.modules", map[string]string{}) // 名字 -> 策略文件

	// watch
	viper.SetDefault("watch.root", ".")
	viper.SetDefault("watch.prefix", "/")
	viper.SetDefault("watch.workers", 4)
	viper.SetDefault("watch.debounce", 200*time.Millisecond)

	// 服务端
	viper.SetDefault("server.addr", ":7070")
	viper.SetDefault("metrics.addr", "")
}
