package hooks

import (
	"context"

	"catsync/pkg/catalog"
	"catsync/pkg/types"

	"github.com/rs/zerolog"
)

// Recorder 记录每一次 hook 分发走的是哪条路径
type Recorder interface {
	HookCalled(point, mode string)
}

const (
	ModeHook    = "hook"
	ModeDefault = "default"
)

// Dispatcher 把 hook 点与能力查询路由到 Module，未定义时执行默认行为。
// hook 返回的错误原样向上传递。
type Dispatcher struct {
	module *Module
	log    zerolog.Logger
	rec    Recorder
}

// NewDispatcher module 可以为 nil (没有 hook 模块)，rec 可以为 nil
func NewDispatcher(module *Module, log zerolog.Logger, rec Recorder) *Dispatcher {
	return &Dispatcher{module: module, log: log, rec: rec}
}

func (d *Dispatcher) record(point string, hooked bool) {
	mode := ModeDefault
	if hooked {
		mode = ModeHook
	}
	d.log.Debug().Str("point", point).Str("mode", mode).Msg("dispatch")
	if d.rec != nil {
		d.rec.HookCalled(point, mode)
	}
}

// Call 执行 hook 点: 模块定义了 handler 就交给它 (并把默认动作作为 next 传入)，否则直接执行默认动作
func (d *Dispatcher) Call(ctx context.Context, point string, def Action, ev Event) error {
	h := d.module.handler(point)
	d.record(point, h != nil)
	if h == nil {
		return def(ctx, ev)
	}
	return h(ctx, def, ev)
}

// AsUser 返回 hook 指定的身份，ok=false 表示使用环境身份
func (d *Dispatcher) AsUser(ctx context.Context, target types.LogicalPath, path string, opts catalog.Options) (catalog.Identity, bool, error) {
	if d.module == nil || d.module.AsUser == nil {
		d.record(ProbeAsUser, false)
		return catalog.Identity{}, false, nil
	}
	d.record(ProbeAsUser, true)
	id, err := d.module.AsUser(ctx, target, path, opts.Clone())
	if err != nil {
		return catalog.Identity{}, false, err
	}
	return id, true, nil
}

// Put 默认 false (登记而不是传输)
func (d *Dispatcher) Put(ctx context.Context, ev Event) (bool, error) {
	return d.boolProbe(ctx, ProbePut, d.moduleBool(func(m *Module) BoolProbe { return m.Put }), false, ev)
}

// AsReplica 默认 false
func (d *Dispatcher) AsReplica(ctx context.Context, ev Event) (bool, error) {
	return d.boolProbe(ctx, ProbeAsReplica, d.moduleBool(func(m *Module) BoolProbe { return m.AsReplica }), false, ev)
}

// Sync 默认 true
func (d *Dispatcher) Sync(ctx context.Context, ev Event) (bool, error) {
	return d.boolProbe(ctx, ProbeSync, d.moduleBool(func(m *Module) BoolProbe { return m.Sync }), true, ev)
}

// RootResource 返回 (资源名, 是否由 hook 提供, error)
func (d *Dispatcher) RootResource(ctx context.Context, ev Event) (string, bool, error) {
	return d.stringProbe(ctx, ProbeRootResource, d.moduleString(func(m *Module) StringProbe { return m.ToRootResource }), ev)
}

func (d *Dispatcher) LeafResource(ctx context.Context, ev Event) (string, bool, error) {
	return d.stringProbe(ctx, ProbeLeafResource, d.moduleString(func(m *Module) StringProbe { return m.ToLeafResource }), ev)
}

func (d *Dispatcher) ResourceHier(ctx context.Context, ev Event) (string, bool, error) {
	return d.stringProbe(ctx, ProbeResourceHier, d.moduleString(func(m *Module) StringProbe { return m.ToResourceHier }), ev)
}

func (d *Dispatcher) moduleBool(get func(*Module) BoolProbe) BoolProbe {
	if d.module == nil {
		return nil
	}
	return get(d.module)
}

func (d *Dispatcher) moduleString(get func(*Module) StringProbe) StringProbe {
	if d.module == nil {
		return nil
	}
	return get(d.module)
}

func (d *Dispatcher) boolProbe(ctx context.Context, name string, fn BoolProbe, def bool, ev Event) (bool, error) {
	d.record(name, fn != nil)
	if fn == nil {
		return def, nil
	}
	ev.Options = ev.Options.Clone()
	return fn(ctx, ev)
}

func (d *Dispatcher) stringProbe(ctx context.Context, name string, fn StringProbe, ev Event) (string, bool, error) {
	d.record(name, fn != nil)
	if fn == nil {
		return "", false, nil
	}
	ev.Options = ev.Options.Clone()
	v, err := fn(ctx, ev)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
