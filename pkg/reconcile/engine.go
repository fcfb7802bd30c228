// Package reconcile 把一个物理文件与 catalog 中的一个逻辑路径对齐。
//
// 每次调用只处理一个目标路径：重新查询 catalog 判定目标状态，
// 通过 hook 解析策略 (put / as_replica / resource)，
// 然后经由 hook 点 on_coll_create / on_data_obj_create / on_data_obj_modify 执行变更。
package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"catsync/pkg/audit"
	"catsync/pkg/catalog"
	"catsync/pkg/hooks"
	"catsync/pkg/metrics"
	"catsync/pkg/types"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// State 是目标逻辑路径在 catalog 中的状态
type State int

const (
	StateAbsent State = iota
	StateCollection
	StateDataObject
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCollection:
		return "collection"
	case StateDataObject:
		return "data_object"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Decision 是引擎选择的默认动作 (hook 可以替换它)
type Decision string

const (
	DecisionUpload          Decision = "upload"
	DecisionRegister        Decision = "register"
	DecisionRegisterReplica Decision = "register_replica"
	DecisionResync          Decision = "resync"
	DecisionUpdateMetadata  Decision = "update_metadata"
	DecisionMetadataOnly    Decision = "metadata_only"
	DecisionSkipped         Decision = "skipped"
)

type Request struct {
	Target types.LogicalPath
	Path   string // 本地物理文件路径
	Hooks  string // hook 模块标识符，空表示没有模块

	// ContentChanged 为 false 表示只有元数据变化 (例如 chmod)
	ContentChanged bool

	Options catalog.Options
}

type Result struct {
	State    State
	Decision Decision
	Identity catalog.Identity
}

// Config 引擎依赖。Connector 必填，其余可以为零值
type Config struct {
	Connector catalog.Connector
	Registry  *hooks.Registry
	Fs        afero.Fs
	Logger    zerolog.Logger
	Audit     audit.Sink
	Metrics   *metrics.Metrics

	// Identity 是没有 as_user hook 时使用的环境身份
	Identity catalog.Identity
}

type Engine struct {
	connector catalog.Connector
	registry  *hooks.Registry
	fs        afero.Fs
	log       zerolog.Logger
	audit     audit.Sink
	metrics   *metrics.Metrics
	identity  catalog.Identity
}

func NewEngine(cfg Config) *Engine {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = hooks.NewRegistry(fs)
	}
	sink := cfg.Audit
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Engine{
		connector: cfg.Connector,
		registry:  reg,
		fs:        fs,
		log:       cfg.Logger,
		audit:     sink,
		metrics:   cfg.Metrics,
		identity:  cfg.Identity,
	}
}

// run 持有一次调用期间的状态，不跨调用复用
type run struct {
	e    *Engine
	d    *hooks.Dispatcher
	sess catalog.Session
	log  zerolog.Logger
}

func (r *run) event(target types.LogicalPath, path string, opts catalog.Options) hooks.Event {
	return hooks.Event{Session: r.sess, Target: target, Path: path, Options: opts.Clone()}
}

// Sync 对齐一个物理文件与一个逻辑路径
func (e *Engine) Sync(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() {
		decision := res.Decision
		if decision == "" {
			decision = "none"
		}
		e.metrics.ObserveReconcile(string(decision), err, time.Since(start))
	}()

	target := types.NewLogicalPath(req.Target.String())
	if target.IsZero() || target.IsRoot() {
		return res, fmt.Errorf("invalid target %q", req.Target)
	}
	if req.Path == "" {
		return res, fmt.Errorf("physical path is required")
	}
	path := req.Path
	opts := req.Options.Clone()

	log := e.log.With().Str("target", target.String()).Str("path", path).Logger()

	module, err := e.registry.Lookup(req.Hooks)
	if err != nil {
		return res, err
	}
	d := hooks.NewDispatcher(module, log, e.metrics)

	// 1. 身份与 session
	id := e.identity
	hid, ok, err := d.AsUser(ctx, target, path, opts)
	if err != nil {
		return res, err
	}
	if ok {
		id = hid
	}
	res.Identity = id

	sess, err := e.connector.Open(ctx, id)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close catalog session")
		}
	}()

	r := &run{e: e, d: d, sess: sess, log: log}

	// 2. 判定状态
	res.State, err = r.classify(ctx, target)
	if err != nil {
		return res, err
	}
	if res.State == StateCollection {
		return res, &ConflictError{Target: target.String(), Path: path, Reason: "target is a collection"}
	}

	// 3. 策略
	put, err := d.Put(ctx, r.event(target, path, opts))
	if err != nil {
		return res, err
	}

	create := res.State == StateAbsent
	if res.State == StateDataObject && !put {
		added, err := r.needsReplica(ctx, target, path, opts)
		if err != nil {
			return res, err
		}
		if added {
			create = true
			opts[catalog.OptRegisterReplica] = ""
		}
	}

	log.Debug().
		Stringer("state", res.State).
		Bool("put", put).
		Bool("create", create).
		Bool("content_changed", req.ContentChanged).
		Msg("reconcile plan")

	// 4. 执行
	switch {
	case create:
		switch {
		case put:
			res.Decision = DecisionUpload
		case opts.Has(catalog.OptRegisterReplica):
			res.Decision = DecisionRegisterReplica
		default:
			res.Decision = DecisionRegister
		}

		if err := r.ensureCollections(ctx, target.Dir(), filepath.Dir(path), opts); err != nil {
			return res, err
		}
		action := r.register
		if put {
			action = r.upload
		}
		err = d.Call(ctx, hooks.PointDataObjCreate, action, r.event(target, path, opts))

	case req.ContentChanged:
		var proceed bool
		proceed, err = d.Sync(ctx, r.event(target, path, opts))
		if err != nil {
			return res, err
		}
		if !proceed {
			res.Decision = DecisionSkipped
			log.Info().Msg("sync declined by hook, skipping")
			return res, nil
		}

		res.Decision = DecisionUpdateMetadata
		action := r.updateMetadata
		if put {
			res.Decision = DecisionResync
			action = r.resync
		}
		err = d.Call(ctx, hooks.PointDataObjModify, action, r.event(target, path, opts))

	default:
		res.Decision = DecisionMetadataOnly
		err = d.Call(ctx, hooks.PointDataObjModify, syncMetaOnly, r.event(target, path, opts))
	}

	return res, err
}

// SyncMetadata 处理只有元数据变化的事件，等价于 ContentChanged=false 的 Sync。
// 传输模式仍然由 put hook 决定。
func (e *Engine) SyncMetadata(ctx context.Context, target types.LogicalPath, path, hooksID string, opts catalog.Options) (Result, error) {
	return e.Sync(ctx, Request{
		Target:         target,
		Path:           path,
		Hooks:          hooksID,
		ContentChanged: false,
		Options:        opts,
	})
}

// classify 先查 DataObject 再查 Collection
func (r *run) classify(ctx context.Context, target types.LogicalPath) (State, error) {
	ok, err := r.sess.DataObjectExists(ctx, target)
	if err != nil {
		return StateAbsent, err
	}
	if ok {
		return StateDataObject, nil
	}

	ok, err = r.sess.CollectionExists(ctx, target)
	if err != nil {
		return StateAbsent, err
	}
	if ok {
		return StateCollection, nil
	}
	return StateAbsent, nil
}

// needsReplica 只在对象已存在且 put=false 时调用。
// as_replica 为 true 且目标 leaf resource 上还没有 replica 时返回 true
func (r *run) needsReplica(ctx context.Context, target types.LogicalPath, path string, opts catalog.Options) (bool, error) {
	ev := r.event(target, path, opts)

	asReplica, err := r.d.AsReplica(ctx, ev)
	if err != nil || !asReplica {
		return false, err
	}

	leaf, ok, err := r.d.LeafResource(ctx, ev)
	if err != nil {
		return false, err
	}
	if !ok || leaf == "" {
		return false, &PolicyError{Probe: hooks.ProbeLeafResource, Target: target.String(), Reason: "no resource name defined"}
	}

	replicas, err := r.sess.Replicas(ctx, target)
	if err != nil {
		return false, err
	}
	for _, repl := range replicas {
		if repl.OnResource(types.ResourceName(leaf)) {
			return false, nil
		}
	}
	return true, nil
}

// syncMetaOnly 是元数据事件的默认动作: 什么都不做，完全交给 hook
func syncMetaOnly(context.Context, hooks.Event) error { return nil }

// record 在每个变更动作之前输出结构化日志并写入审计
func (r *run) record(ctx context.Context, action, msg string, ev hooks.Event, opts catalog.Options) {
	r.log.Info().
		Str("action", action).
		Str("target", ev.Target.String()).
		Str("path", ev.Path).
		Stringer("options", opts).
		Msg(msg)

	actor := r.sess.Identity().String()
	if err := r.e.audit.Record(ctx, audit.NewEvent(action, ev.Target.String(), ev.Path, actor, opts)); err != nil {
		r.log.Warn().Err(err).Str("action", action).Msg("failed to record audit event")
	}
}
