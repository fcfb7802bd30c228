package reconcile

import (
	"context"
	"fmt"

	"catsync/pkg/audit"
	"catsync/pkg/catalog"
	"catsync/pkg/hooks"
	"catsync/pkg/types"
)

// register 登记物理文件 (不拷贝字节)，然后用物理文件的大小更新 size
func (r *run) register(ctx context.Context, ev hooks.Event) error {
	opts := ev.Options.Clone()

	leaf, ok, err := r.d.LeafResource(ctx, ev)
	if err != nil {
		return err
	}
	if ok && leaf != "" {
		opts[catalog.OptDestResource] = leaf
	}

	r.record(ctx, audit.ActionRegister, "registering object", ev, opts)
	if err := ev.Session.Register(ctx, ev.Path, ev.Target, opts); err != nil {
		return err
	}

	fi, err := r.e.fs.Stat(ev.Path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", ev.Path, err)
	}
	size := fi.Size()

	// 只修改刚刚登记的那个 replica
	sel := catalog.ObjectSelector{Path: ev.Target, PhysicalPath: ev.Path}
	if resc := opts.DestResource(); resc != "" {
		sel.ResourceName = types.ResourceName(resc)
	}
	return ev.Session.ModifyMetadata(ctx, sel, catalog.MetadataUpdate{Size: &size}, opts)
}

// upload 把字节传输到 catalog 管理的存储中
func (r *run) upload(ctx context.Context, ev hooks.Event) error {
	return r.transfer(ctx, audit.ActionUpload, ev)
}

// resync 与 upload 相同，但目标是已存在的对象
func (r *run) resync(ctx context.Context, ev hooks.Event) error {
	r.log.Info().Stringer("options", ev.Options).Msg("syncing object")
	return r.transfer(ctx, audit.ActionResync, ev)
}

func (r *run) transfer(ctx context.Context, action string, ev hooks.Event) error {
	opts := ev.Options.Clone()

	root, ok, err := r.d.RootResource(ctx, ev)
	if err != nil {
		return err
	}
	if ok && root != "" {
		opts[catalog.OptDestResource] = root
	}

	r.record(ctx, action, "uploading object", ev, opts)
	return ev.Session.Put(ctx, ev.Path, ev.Target, opts)
}
