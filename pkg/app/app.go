// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"catsync/pkg/audit"
	"catsync/pkg/catalog"
	"catsync/pkg/catalog/local"
	"catsync/pkg/client"
	"catsync/pkg/hooks"
	"catsync/pkg/logging"
	"catsync/pkg/meta"
	"catsync/pkg/metrics"
	"catsync/pkg/reconcile"
	"catsync/pkg/storage/s3"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Catalog 模式
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// App 是整个应用程序的依赖容器，持有所有"单例"服务
type App struct {
	Log       zerolog.Logger
	Fs        afero.Fs
	DB        *meta.DB         // remote 模式下为 nil
	Repo      *meta.Repository // remote 模式下为 nil
	Connector catalog.Connector
	Audit     audit.Sink
	Metrics   *metrics.Metrics
	Hooks     *hooks.Registry
	Engine    *reconcile.Engine
	Identity  catalog.Identity

	closers []io.Closer
}

// NewApp 按 Viper 中的配置组装应用，不关心具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	a := &App{
		Log: logging.New(logging.Config{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		}),
		Fs:      afero.NewOsFs(),
		Metrics: metrics.Init(nil),
		Identity: catalog.Identity{
			Zone: viper.GetString("catalog.zone"),
			User: viper.GetString("catalog.user"),
		},
	}
	a.Hooks = hooks.NewRegistry(a.Fs)
	if err := a.initHooks(); err != nil {
		return nil, err
	}

	// 1. catalog
	if err := a.initCatalog(ctx); err != nil {
		a.Close()
		return nil, err
	}

	// 2. 审计
	if err := a.initAudit(); err != nil {
		a.Close()
		return nil, err
	}

	// 3. 引擎
	a.Engine = reconcile.NewEngine(reconcile.Config{
		Connector: a.Connector,
		Registry:  a.Hooks,
		Fs:        a.Fs,
		Logger:    a.Log,
		Audit:     a.Audit,
		Metrics:   a.Metrics,
		Identity:  a.Identity,
	})
	return a, nil
}

// initHooks 把 hooks.modules 中的策略文件注册成命名模块 (名字 -> 文件)
// 命名模块在启动时加载一次，直接用文件路径引用的策略每次同步都会重新读取
func (a *App) initHooks() error {
	modules := viper.GetStringMapString("hooks.modules")
	for _, name := range slices.Sorted(maps.Keys(modules)) {
		p, err := hooks.LoadPolicy(a.Fs, modules[name])
		if err != nil {
			return fmt.Errorf("hook module %s: %w", name, err)
		}
		if err := a.Hooks.Register(p.Module(name)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initCatalog(ctx context.Context) error {
	switch mode := viper.GetString("catalog.mode"); mode {
	case "", ModeLocal:
		db, err := initDB(ctx)
		if err != nil {
			return err
		}
		a.DB = db
		a.closers = append(a.closers, db)
		a.Repo = meta.NewRepository(db)
		a.Connector = local.NewConnector(a.Repo, a.Fs, local.Config{
			DefaultResource: viper.GetString("catalog.default_resource"),
			S3: s3.Config{
				Endpoint:        viper.GetString("s3.endpoint"),
				Region:          viper.GetString("s3.region"),
				AccessKeyID:     viper.GetString("s3.access_key_id"),
				SecretAccessKey: viper.GetString("s3.secret_access_key"),
			},
		})
	case ModeRemote:
		endpoint := viper.GetString("catalog.endpoint")
		if endpoint == "" {
			return fmt.Errorf("catalog.endpoint is required in remote mode")
		}
		c, err := client.New(endpoint, a.Fs)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, c)
		a.Connector = c
	default:
		return fmt.Errorf("unsupported catalog mode: %s", mode)
	}
	return nil
}

// initDB 打开 catalog 数据库，sqlite 文件所在目录不存在时自动创建
func initDB(ctx context.Context) (*meta.DB, error) {
	cfg := meta.Config{
		Driver:   viper.GetString("database.driver"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
		Path:     viper.GetString("database.path"),
		LogLevel: viper.GetString("database.log_level"),
	}
	if cfg.Driver == "sqlite" && cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := meta.NewDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init catalog database: %w", err)
	}
	return db, nil
}

func (a *App) initAudit() error {
	var sinks audit.Multi
	if a.Repo != nil && viper.GetBool("audit.db") {
		sinks = append(sinks, audit.NewDBSink(a.Repo))
	}
	if url := viper.GetString("audit.redis_url"); url != "" {
		rs, err := audit.NewRedisSink(audit.RedisConfig{
			RedisURL: url,
			Stream:   viper.GetString("audit.stream"),
			MaxLen:   viper.GetInt64("audit.max_len"),
		})
		if err != nil {
			return fmt.Errorf("failed to init audit stream: %w", err)
		}
		a.closers = append(a.closers, rs)
		sinks = append(sinks, rs)
	}

	switch len(sinks) {
	case 0:
		a.Audit = audit.Nop{}
	case 1:
		a.Audit = sinks[0]
	default:
		a.Audit = sinks
	}
	return nil
}

// Close 按与创建相反的顺序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
