package commands

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"catsync/pkg/ignore"
	"catsync/pkg/reconcile"
	"catsync/pkg/types"
	"catsync/pkg/watcher"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var watchCmd = &cobra.Command{
	Use:   "watch [root]",
	Short: "Watch a directory and reconcile every changed file",
	Long: `Watch [root] (default watch.root) recursively. Each changed file is reconciled with
<watch.prefix>/<relative path>. Deletions are not propagated. Files matching .syncignore
are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if CS == nil {
			return fmt.Errorf("app not initialized")
		}
		root := viper.GetString("watch.root")
		if len(args) > 0 {
			root = args[0]
		}
		prefix := types.NewLogicalPath(viper.GetString("watch.prefix"))
		hooksID := syncHooks
		if hooksID == "" {
			hooksID = viper.GetString("hooks.default")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// 1. 启动监听
		matcher, err := ignore.NewMatcher(CS.Fs, root)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", ignore.FileName, err)
		}
		w, err := watcher.New(watcher.Config{
			Root:     root,
			Debounce: viper.GetDuration("watch.debounce"),
			Matcher:  matcher,
			Logger:   CS.Log,
		})
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		CS.Log.Info().Str("root", w.Root).Stringer("prefix", prefix).Msg("watching for changes")

		// 2. 分发: 不同文件并发，同一文件串行
		d := newDispatcher(CS.Engine, CS.Log, prefix, hooksID, viper.GetInt("watch.workers"))
		go func() {
			<-ctx.Done()
			w.Stop()
		}()
		for ev := range w.Events {
			d.submit(ctx, ev)
		}
		d.wait()

		CS.Log.Info().Msg("watch stopped")
		return nil
	},
}

// syncer 是 dispatcher 需要的引擎能力
type syncer interface {
	Sync(ctx context.Context, req reconcile.Request) (reconcile.Result, error)
}

type dispatcher struct {
	engine  syncer
	prefix  types.LogicalPath
	hooksID string
	log     zerolog.Logger
	g       errgroup.Group

	mu    sync.Mutex
	locks map[string]*pathLock
}

// pathLock 串行化同一路径的同步，refs 归零时从表中移除
type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newDispatcher(engine syncer, log zerolog.Logger, prefix types.LogicalPath, hooksID string, workers int) *dispatcher {
	d := &dispatcher{
		engine:  engine,
		prefix:  prefix,
		hooksID: hooksID,
		log:     log,
		locks:   make(map[string]*pathLock),
	}
	if workers < 1 {
		workers = 1
	}
	d.g.SetLimit(workers)
	return d
}

func (d *dispatcher) lock(path string) {
	d.mu.Lock()
	l, ok := d.locks[path]
	if !ok {
		l = &pathLock{}
		d.locks[path] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
}

func (d *dispatcher) unlock(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.locks[path]
	l.mu.Unlock()
	if l.refs--; l.refs == 0 {
		delete(d.locks, path)
	}
}

// submit 在 worker 满时阻塞，单个文件失败只记录日志，不中断监听
func (d *dispatcher) submit(ctx context.Context, ev watcher.Event) {
	d.g.Go(func() error {
		d.lock(ev.Path)
		defer d.unlock(ev.Path)

		req := reconcile.Request{
			Target:         ev.Target(d.prefix),
			Path:           ev.Path,
			Hooks:          d.hooksID,
			ContentChanged: ev.ContentChanged,
		}
		// 退出信号之后仍然把已收到的事件处理完
		res, err := d.engine.Sync(context.WithoutCancel(ctx), req)
		if err != nil {
			d.log.Error().Err(err).Str("path", ev.Path).Stringer("target", req.Target).Msg("sync failed")
			return nil
		}
		d.log.Debug().Str("path", ev.Path).Str("decision", string(res.Decision)).Msg("synced")
		return nil
	})
}

func (d *dispatcher) wait() { _ = d.g.Wait() }

func init() {
	watchCmd.Flags().StringVar(&syncHooks, "hooks", "", "hook module name or policy file (default hooks.default)")
	watchCmd.Flags().String("prefix", "", "logical collection mirrored by the root (default watch.prefix)")
	watchCmd.Flags().Int("workers", 0, "concurrent reconciliations (default watch.workers)")
	_ = viper.BindPFlag("watch.prefix", watchCmd.Flags().Lookup("prefix"))
	_ = viper.BindPFlag("watch.workers", watchCmd.Flags().Lookup("workers"))
	rootCmd.AddCommand(watchCmd)
}
