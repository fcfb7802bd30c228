// Package local 在本进程内实现 catalog 服务：
// 元数据存放在 SQL (pkg/meta)，字节存放在 resource 对应的 vault (pkg/storage)。
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"catsync/pkg/catalog"
	"catsync/pkg/meta"
	"catsync/pkg/storage"
	"catsync/pkg/storage/disk"
	"catsync/pkg/storage/s3"

	"github.com/spf13/afero"
)

var ErrSessionClosed = errors.New("catalog session is closed")

// Resource 类型
const (
	TypeDisk     = "disk"
	TypeS3       = "s3"
	TypePassthru = "passthru"
)

// Config 本地 catalog 的配置
type Config struct {
	// DefaultResource 在 options 中没有 destRescName 时使用
	DefaultResource string
	// S3 是 s3 类型 resource 的公共参数，Bucket / Prefix 由 resource 自己提供
	S3 s3.Config
}

// Connector 实现 catalog.Connector
type Connector struct {
	repo *meta.Repository
	fs   afero.Fs
	cfg  Config

	mu     sync.Mutex
	vaults map[string]storage.Store
}

func NewConnector(repo *meta.Repository, fs afero.Fs, cfg Config) *Connector {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Connector{
		repo:   repo,
		fs:     fs,
		cfg:    cfg,
		vaults: make(map[string]storage.Store),
	}
}

// Open 建立一个 session，零值 Identity 表示匿名的环境身份
func (c *Connector) Open(ctx context.Context, id catalog.Identity) (catalog.Session, error) {
	if err := c.repo.EnsureRoot(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare catalog root: %w", err)
	}
	return &Session{conn: c, id: id}, nil
}

// resolveLeaf 把 resource 名解析为一个叶子 resource
// 有子节点的 resource 只负责路由，选择名字最小的子节点
func (c *Connector) resolveLeaf(ctx context.Context, name string) (*meta.Resource, error) {
	if name == "" {
		name = c.cfg.DefaultResource
	}
	if name == "" {
		return nil, fmt.Errorf("no resource selected and no default resource: %w", catalog.ErrResourceNotFound)
	}

	res, err := c.repo.GetResource(ctx, name)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for {
		if seen[res.Name] {
			return nil, fmt.Errorf("resource hierarchy cycle at %s", res.Name)
		}
		seen[res.Name] = true

		children, err := c.repo.Children(ctx, res.Name)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return res, nil
		}
		res = &children[0]
	}
}

// vault 返回 resource 对应的 Store，按名字缓存
func (c *Connector) vault(ctx context.Context, res *meta.Resource) (storage.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.vaults[res.Name]; ok {
		return v, nil
	}

	var (
		v   storage.Store
		err error
	)
	switch res.Type {
	case TypeDisk:
		v, err = disk.NewAdapter(res.Location)
	case TypeS3:
		cfg := c.cfg.S3
		cfg.Bucket = res.Location
		var rc resourceContext
		if len(res.Context) > 0 {
			if err := json.Unmarshal(res.Context, &rc); err != nil {
				return nil, fmt.Errorf("invalid context of resource %s: %w", res.Name, err)
			}
		}
		cfg.Prefix = rc.Prefix
		v, err = s3.NewAdapter(ctx, cfg)
	default:
		return nil, fmt.Errorf("resource %s of type %q has no vault", res.Name, res.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open vault of resource %s: %w", res.Name, err)
	}

	c.vaults[res.Name] = v
	return v, nil
}

// resourceContext 是 Resource.Context 中已知的字段
type resourceContext struct {
	Prefix string `json:"prefix,omitempty"`
}

// NewResourceContext 构建 Resource.Context，供 CLI 使用
func NewResourceContext(prefix string) ([]byte, error) {
	if prefix == "" {
		return nil, nil
	}
	return json.Marshal(resourceContext{Prefix: prefix})
}
