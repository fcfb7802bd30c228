// Package catalog 定义了 reconciliation engine 所消费的 catalog 服务契约。
// 具体实现见 catalog/local (SQL + vault) 与 client (gRPC 远程)。
package catalog

import (
	"context"
	"errors"
	"io"

	"catsync/pkg/types"
)

var (
	ErrNotFound         = errors.New("catalog entry not found")
	ErrAlreadyExists    = errors.New("catalog entry already exists")
	ErrParentNotFound   = errors.New("parent collection does not exist")
	ErrResourceNotFound = errors.New("resource not found")
	ErrPathConflict     = errors.New("path is already used by an entry of another kind")
)

// Identity 是 session 所代表的用户
// 零值表示使用环境默认身份 (ambient identity)
type Identity struct {
	Zone string
	User string
}

func (i Identity) IsZero() bool { return i.Zone == "" && i.User == "" }

func (i Identity) String() string {
	if i.IsZero() {
		return "<ambient>"
	}
	return i.User + "#" + i.Zone
}

// Replica 记录某个 DataObject 在某个 resource 上的一份物理拷贝
type Replica struct {
	Number       int
	ResourceName types.ResourceName
	ResourceHier types.ResourceHier
	PhysicalPath string
	Size         int64
	ModifyTime   int64 // unix seconds
	Checksum     string
	Status       ReplicaStatus
	// Registered 表示 replica 是登记进来的外部文件，字节不在 vault 中
	Registered bool
}

// OnResource 判断 replica 是否位于 name 之上 (name 是它的 leaf 或任意一级父 resource)
func (r Replica) OnResource(name types.ResourceName) bool {
	return r.ResourceName == name || r.ResourceHier.Contains(name)
}

type ReplicaStatus string

const (
	ReplicaGood  ReplicaStatus = "good"
	ReplicaStale ReplicaStatus = "stale"
)

// ObjectSelector 选择要修改元数据的 replica(s)，空字段不参与过滤
// ResourceName 可以是层级中的任意一级，父 resource 选中其下所有 replica
type ObjectSelector struct {
	Path         types.LogicalPath
	ResourceName types.ResourceName
	ResourceHier types.ResourceHier
	PhysicalPath string
}

// MetadataUpdate 中为 nil 的字段不会被修改
type MetadataUpdate struct {
	Size       *int64
	ModifyTime *int64
}

func (u MetadataUpdate) IsEmpty() bool { return u.Size == nil && u.ModifyTime == nil }

// Session 是一次 reconciliation 期间持有的、已认证的 catalog 会话。
// 每个操作都被视为原子操作。
type Session interface {
	Identity() Identity

	CollectionExists(ctx context.Context, p types.LogicalPath) (bool, error)
	CreateCollection(ctx context.Context, p types.LogicalPath) error
	DataObjectExists(ctx context.Context, p types.LogicalPath) (bool, error)

	// Register 将已存在的物理文件绑定到逻辑路径，不拷贝字节
	Register(ctx context.Context, physicalPath string, target types.LogicalPath, opts Options) error
	// Put 将物理文件的字节传输到 catalog 管理的存储中
	Put(ctx context.Context, physicalPath string, target types.LogicalPath, opts Options) error

	Replicas(ctx context.Context, target types.LogicalPath) ([]Replica, error)
	ModifyMetadata(ctx context.Context, sel ObjectSelector, upd MetadataUpdate, opts Options) error

	Close() error
}

// StreamPutter 由能够直接接收字节流的 session 实现 (gRPC 服务端需要它)
type StreamPutter interface {
	PutStream(ctx context.Context, r io.Reader, size int64, target types.LogicalPath, opts Options) error
}

// ObjectReader 由能读回 DataObject 字节的 session 实现 (目前只有本地 catalog)
// 返回的 Replica 是实际被读取的那一份
type ObjectReader interface {
	ReadObject(ctx context.Context, target types.LogicalPath) (io.ReadCloser, Replica, error)
}

// Connector 负责建立 session
type Connector interface {
	Open(ctx context.Context, id Identity) (Session, error)
}
