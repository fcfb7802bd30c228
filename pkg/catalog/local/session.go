package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"catsync/pkg/catalog"
	"catsync/pkg/meta"
	"catsync/pkg/types"
)

// Session 实现 catalog.Session 与 catalog.StreamPutter
type Session struct {
	conn   *Connector
	id     catalog.Identity
	closed bool
}

var (
	_ catalog.Session      = (*Session)(nil)
	_ catalog.StreamPutter = (*Session)(nil)
	_ catalog.ObjectReader = (*Session)(nil)
)

func (s *Session) Identity() catalog.Identity { return s.id }

func (s *Session) check() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) CollectionExists(ctx context.Context, p types.LogicalPath) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.conn.repo.CollectionExists(ctx, p)
}

func (s *Session) CreateCollection(ctx context.Context, p types.LogicalPath) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.conn.repo.CreateCollection(ctx, p, s.id)
}

func (s *Session) DataObjectExists(ctx context.Context, p types.LogicalPath) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.conn.repo.DataObjectExists(ctx, p)
}

// Register 登记一个已存在的物理文件，字节不会被拷贝
// 带 regRepl 时为已存在的 DataObject 追加 replica
// 带 forceFlag 时已存在的 DataObject 在该 resource 上的 replica 被重新登记
func (s *Session) Register(ctx context.Context, physicalPath string, target types.LogicalPath, opts catalog.Options) error {
	if err := s.check(); err != nil {
		return err
	}

	leaf, err := s.conn.resolveLeaf(ctx, opts.DestResource())
	if err != nil {
		return err
	}
	hier, err := s.conn.repo.Hierarchy(ctx, leaf.Name)
	if err != nil {
		return err
	}

	fi, err := s.conn.fs.Stat(physicalPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", physicalPath, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("cannot register directory %s as a data object", physicalPath)
	}

	repl := meta.Replica{
		ResourceName: leaf.Name,
		ResourceHier: hier.String(),
		PhysicalPath: physicalPath,
		Size:         fi.Size(),
		ModifyTime:   fi.ModTime().Unix(),
		Status:       string(catalog.ReplicaGood),
		Registered:   true,
	}

	if opts.Has(catalog.OptRegisterReplica) {
		return s.conn.repo.AddReplica(ctx, target, repl)
	}
	if opts.Has(catalog.OptForce) {
		exists, err := s.conn.repo.DataObjectExists(ctx, target)
		if err != nil {
			return err
		}
		if exists {
			return s.conn.repo.PutReplica(ctx, target, repl)
		}
	}
	return s.conn.repo.CreateDataObject(ctx, target, s.id, repl)
}

// Put 把物理文件传输到 resource 的 vault 中
func (s *Session) Put(ctx context.Context, physicalPath string, target types.LogicalPath, opts catalog.Options) error {
	if err := s.check(); err != nil {
		return err
	}

	f, err := s.conn.fs.Open(physicalPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", physicalPath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("cannot put directory %s as a data object", physicalPath)
	}

	return s.PutStream(ctx, f, fi.Size(), target, opts)
}

// PutStream 写入 vault 并更新 catalog
// 1. 已存在的对象: 覆盖该 resource 上的 replica，其它 replica 变为 stale
// 2. 新对象: 创建 DataObject，replica 编号为 0
func (s *Session) PutStream(ctx context.Context, r io.Reader, size int64, target types.LogicalPath, opts catalog.Options) error {
	if err := s.check(); err != nil {
		return err
	}

	leaf, err := s.conn.resolveLeaf(ctx, opts.DestResource())
	if err != nil {
		return err
	}
	hier, err := s.conn.repo.Hierarchy(ctx, leaf.Name)
	if err != nil {
		return err
	}
	vault, err := s.conn.vault(ctx, leaf)
	if err != nil {
		return err
	}

	// 父 Collection 必须在写字节之前确认，避免 vault 中留下孤儿文件
	ok, err := s.conn.repo.CollectionExists(ctx, target.Dir())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("put %s: %w", target, catalog.ErrParentNotFound)
	}

	key := target.String()
	h := sha256.New()
	cr := &countingReader{r: io.TeeReader(r, h)}
	if err := vault.Put(ctx, key, cr, size); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}

	repl := meta.Replica{
		ResourceName: leaf.Name,
		ResourceHier: hier.String(),
		PhysicalPath: vault.Locate(key),
		Size:         cr.n,
		ModifyTime:   time.Now().Unix(),
		Checksum:     "sha256:" + hex.EncodeToString(h.Sum(nil)),
		Status:       string(catalog.ReplicaGood),
	}

	exists, err := s.conn.repo.DataObjectExists(ctx, target)
	if err != nil {
		return err
	}
	if exists {
		return s.conn.repo.PutReplica(ctx, target, repl)
	}
	return s.conn.repo.CreateDataObject(ctx, target, s.id, repl)
}

func (s *Session) Replicas(ctx context.Context, target types.LogicalPath) ([]catalog.Replica, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	obj, err := s.conn.repo.GetDataObject(ctx, target)
	if err != nil {
		return nil, err
	}

	out := make([]catalog.Replica, 0, len(obj.Replicas))
	for _, r := range obj.Replicas {
		out = append(out, toReplica(r))
	}
	return out, nil
}

func toReplica(r meta.Replica) catalog.Replica {
	return catalog.Replica{
		Number:       r.Number,
		ResourceName: types.ResourceName(r.ResourceName),
		ResourceHier: types.ResourceHier(r.ResourceHier),
		PhysicalPath: r.PhysicalPath,
		Size:         r.Size,
		ModifyTime:   r.ModifyTime,
		Checksum:     r.Checksum,
		Status:       catalog.ReplicaStatus(r.Status),
		Registered:   r.Registered,
	}
}

// ReadObject 打开编号最小的 good replica
// 1. 登记的 replica 直接读物理文件
// 2. 其余 replica 从所在 resource 的 vault 中读取，key 与写入时相同
func (s *Session) ReadObject(ctx context.Context, target types.LogicalPath) (io.ReadCloser, catalog.Replica, error) {
	if err := s.check(); err != nil {
		return nil, catalog.Replica{}, err
	}
	obj, err := s.conn.repo.GetDataObject(ctx, target)
	if err != nil {
		return nil, catalog.Replica{}, err
	}

	var repl *meta.Replica
	for i := range obj.Replicas {
		if obj.Replicas[i].Status == string(catalog.ReplicaGood) {
			repl = &obj.Replicas[i]
			break
		}
	}
	if repl == nil {
		return nil, catalog.Replica{}, fmt.Errorf("%s has no good replica: %w", target, catalog.ErrNotFound)
	}
	out := toReplica(*repl)

	if repl.Registered {
		f, err := s.conn.fs.Open(repl.PhysicalPath)
		if err != nil {
			return nil, out, fmt.Errorf("failed to open registered replica %s: %w", repl.PhysicalPath, err)
		}
		return f, out, nil
	}

	res, err := s.conn.repo.GetResource(ctx, repl.ResourceName)
	if err != nil {
		return nil, out, err
	}
	vault, err := s.conn.vault(ctx, res)
	if err != nil {
		return nil, out, err
	}
	key := target.String()
	ok, err := vault.Has(ctx, key)
	if err != nil {
		return nil, out, fmt.Errorf("failed to check vault of resource %s: %w", res.Name, err)
	}
	if !ok {
		return nil, out, fmt.Errorf("replica %d of %s is missing from resource %s: %w", repl.Number, target, res.Name, catalog.ErrNotFound)
	}
	rc, err := vault.Get(ctx, key)
	if err != nil {
		return nil, out, fmt.Errorf("failed to read vault of resource %s: %w", res.Name, err)
	}
	return rc, out, nil
}

// ModifyMetadata 在一个事务内修改匹配的 replica
func (s *Session) ModifyMetadata(ctx context.Context, sel catalog.ObjectSelector, upd catalog.MetadataUpdate, _ catalog.Options) error {
	if err := s.check(); err != nil {
		return err
	}
	if upd.IsEmpty() {
		return nil
	}

	_, err := s.conn.repo.UpdateReplicaMetadata(ctx, meta.ReplicaFilter{
		Path:         sel.Path,
		ResourceName: sel.ResourceName.String(),
		ResourceHier: sel.ResourceHier.String(),
		PhysicalPath: sel.PhysicalPath,
	}, upd.Size, upd.ModifyTime)
	return err
}

func (s *Session) Close() error {
	s.closed = true
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
