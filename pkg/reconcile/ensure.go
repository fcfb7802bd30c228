package reconcile

import (
	"context"
	"errors"
	"path/filepath"

	"catsync/pkg/audit"
	"catsync/pkg/catalog"
	"catsync/pkg/hooks"
	"catsync/pkg/types"
)

// ensureCollections 自顶向下保证 coll 及其全部祖先存在。
// dir 是与 coll 对应的物理目录，只用于传给 hook。
// 已经存在时不做任何写入。
func (r *run) ensureCollections(ctx context.Context, coll types.LogicalPath, dir string, opts catalog.Options) error {
	ok, err := r.sess.CollectionExists(ctx, coll)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	// 根必须预先存在，走到这里说明 catalog 配置有问题
	if coll.IsRoot() {
		return &ConflictError{Target: coll.String(), Reason: "cannot create root"}
	}

	if err := r.ensureCollections(ctx, coll.Dir(), filepath.Dir(dir), opts); err != nil {
		return err
	}

	return r.d.Call(ctx, hooks.PointCollCreate, r.createCollection, r.event(coll, dir, opts))
}

// createCollection 是 on_coll_create 的默认动作
// 并发创建同一个 collection 时 catalog 可能返回 "already exists"，视为成功
func (r *run) createCollection(ctx context.Context, ev hooks.Event) error {
	r.record(ctx, audit.ActionCreateCollection, "creating collection", ev, ev.Options)

	err := ev.Session.CreateCollection(ctx, ev.Target)
	if errors.Is(err, catalog.ErrAlreadyExists) {
		return nil
	}
	return err
}
