// Package watcher 监听本地目录，把文件系统事件整理成逐文件的同步事件
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"catsync/pkg/ignore"
	"catsync/pkg/types"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce 是同一个文件两次事件之间的静默时间
const DefaultDebounce = 200 * time.Millisecond

// Event 描述一个需要同步的文件
type Event struct {
	Path           string // 绝对物理路径
	Rel            string // 相对于监听根目录的路径
	ContentChanged bool   // false 表示只有元数据 (权限/时间戳) 变化
}

// Target 把事件映射到 catalog 中的逻辑路径
func (e Event) Target(prefix types.LogicalPath) types.LogicalPath {
	return prefix.Join(filepath.ToSlash(e.Rel))
}

type Config struct {
	Root     string
	Debounce time.Duration
	Matcher  *ignore.Matcher
	Logger   zerolog.Logger
}

type pending struct {
	at      time.Time
	content bool
}

// Watcher 递归监听 Root 下的所有目录
// 同一文件在 Debounce 窗口内的多次事件会合并成一个 Event
type Watcher struct {
	Root   string
	Events <-chan Event

	events   chan Event
	done     chan struct{}
	fw       *fsnotify.Watcher
	matcher  *ignore.Matcher
	debounce time.Duration
	log      zerolog.Logger
	pending  map[string]*pending
}

func New(cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ch := make(chan Event, 64)
	return &Watcher{
		Root:     root,
		Events:   ch,
		events:   ch,
		done:     make(chan struct{}),
		fw:       fw,
		matcher:  cfg.Matcher,
		debounce: debounce,
		log:      cfg.Logger,
		pending:  make(map[string]*pending),
	}, nil
}

// Start 注册所有子目录并启动事件循环
func (w *Watcher) Start() error {
	if err := w.addTree(w.Root); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Stop 关闭 fsnotify，等待循环退出后关闭 Events
// 尚在防抖窗口中的事件会在退出前全部发出
func (w *Watcher) Stop() {
	w.fw.Close()
	<-w.done
	close(w.events)
}

// addTree 为 dir 及其所有未被忽略的子目录注册监听
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// 目录在遍历过程中被删除
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.Root && w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.fw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) rel(p string) string {
	rel, err := filepath.Rel(w.Root, p)
	if err != nil {
		return p
	}
	return rel
}

func (w *Watcher) ignored(p string) bool {
	return w.matcher.Matches(w.rel(p))
}

// minTick 防止极小的 debounce 产生非正的 ticker 周期
const minTick = time.Millisecond

func tickInterval(debounce time.Duration) time.Duration {
	if tick := debounce / 2; tick >= minTick {
		return tick
	}
	return minTick
}

func (w *Watcher) loop() {
	defer close(w.done)

	ticker := time.NewTicker(tickInterval(w.debounce))
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				w.flush(time.Time{})
				return
			}
			w.handle(event, time.Now())

		case now := <-ticker.C:
			w.flush(now)

		case err, ok := <-w.fw.Errors:
			if !ok {
				w.flush(time.Time{})
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// handle 把一个 fsnotify 事件记入 pending
func (w *Watcher) handle(event fsnotify.Event, now time.Time) {
	if w.ignored(event.Name) {
		return
	}

	// 删除与重命名: catalog 中的对象保持不变，只丢弃未发出的事件
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		delete(w.pending, event.Name)
		return
	}

	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			// 新目录: 补注册监听，并把已经出现在里面的文件当作新文件
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
			}
			w.scanNew(event.Name, now)
			return
		}
	}

	content := event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
	if !content && !event.Has(fsnotify.Chmod) {
		return
	}
	w.mark(event.Name, content, now)
}

func (w *Watcher) mark(p string, content bool, now time.Time) {
	if pe, ok := w.pending[p]; ok {
		pe.at = now
		pe.content = pe.content || content
		return
	}
	w.pending[p] = &pending{at: now, content: content}
}

func (w *Watcher) scanNew(dir string, now time.Time) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && w.ignored(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.ignored(p) {
			w.mark(p, true, now)
		}
		return nil
	})
}

// flush 发出所有静默超过 debounce 的事件，零值 now 表示全部发出
func (w *Watcher) flush(now time.Time) {
	for p, pe := range w.pending {
		if !now.IsZero() && now.Sub(pe.at) < w.debounce {
			continue
		}
		delete(w.pending, p)

		// 事件发出前文件可能已经消失或变成了目录
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		w.events <- Event{Path: p, Rel: w.rel(p), ContentChanged: pe.content}
	}
}
