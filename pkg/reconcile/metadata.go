package reconcile

import (
	"context"
	"fmt"

	"catsync/pkg/audit"
	"catsync/pkg/catalog"
	"catsync/pkg/hooks"
	"catsync/pkg/types"
)

// updateMetadata 用物理文件的 size / mtime 更新已存在的对象。
// 写入之前必须确认: 选中的 resource 上确实有一个 replica 的物理路径等于 ev.Path。
func (r *run) updateMetadata(ctx context.Context, ev hooks.Event) error {
	fi, err := r.e.fs.Stat(ev.Path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", ev.Path, err)
	}
	size := fi.Size()
	mtime := fi.ModTime().Unix()

	// 1. 构造 selector
	sel := catalog.ObjectSelector{Path: ev.Target}
	hier, ok, err := r.d.ResourceHier(ctx, ev)
	if err != nil {
		return err
	}
	if ok && hier != "" {
		sel.ResourceHier = types.ResourceHier(hier)
	}
	leaf, ok, err := r.d.LeafResource(ctx, ev)
	if err != nil {
		return err
	}
	if ok && leaf != "" {
		sel.ResourceName = types.ResourceName(leaf)
	}

	r.log.Info().Stringer("options", ev.Options).Msg("updating object")

	// 2. 一致性检查
	replicas, err := ev.Session.Replicas(ctx, ev.Target)
	if err != nil {
		return err
	}
	if !matchesReplica(replicas, sel.ResourceName, ev.Path) {
		r.log.Error().
			Str("resource", sel.ResourceName.String()).
			Stringer("options", ev.Options).
			Msg("updating object: wrong resource or path")
		return &ConsistencyError{Target: ev.Target.String(), Path: ev.Path, Resource: sel.ResourceName.String()}
	}

	// 3. 写入
	opts := ev.Options.Clone()
	r.record(ctx, audit.ActionUpdateMetadata, "updating object metadata", ev, opts)
	return ev.Session.ModifyMetadata(ctx, sel, catalog.MetadataUpdate{Size: &size, ModifyTime: &mtime}, opts)
}

// matchesReplica leaf 为空时任何 resource 都可以，父 resource 覆盖其下所有 leaf
func matchesReplica(replicas []catalog.Replica, leaf types.ResourceName, path string) bool {
	for _, repl := range replicas {
		if (leaf.IsZero() || repl.OnResource(leaf)) && repl.PhysicalPath == path {
			return true
		}
	}
	return false
}
