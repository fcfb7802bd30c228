// Package client 实现远程 catalog: 通过 gRPC 连接 catsyncd。
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"catsync/pkg/catalog"
	"catsync/pkg/rpc"
	"catsync/pkg/types"

	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// ChunkSize 是 Put 流中每一帧的数据大小
const ChunkSize = 1 << 20

var ErrSessionClosed = errors.New("remote catalog session is closed")

// Client 持有一条到 catsyncd 的连接，实现 catalog.Connector
// 连接在所有 session 之间共享，session 只携带身份
type Client struct {
	conn *grpc.ClientConn
	rpc  *rpc.CatalogClient
	fs   afero.Fs
}

var _ catalog.Connector = (*Client)(nil)

// New 创建客户端。它会立即返回，连接在后台建立
func New(addr string, fs afero.Fs) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(64*1024*1024),
			grpc.MaxCallSendMsgSize(64*1024*1024),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		// 这里的 err 通常只是配置错误 (如地址格式不对)，网络不通不会在这里报错
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}
	return NewWithConn(conn, fs), nil
}

// NewWithConn 复用已有连接 (测试中使用 bufconn)
func NewWithConn(conn *grpc.ClientConn, fs afero.Fs) *Client {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Client{conn: conn, rpc: rpc.NewCatalogClient(conn), fs: fs}
}

func (c *Client) Open(_ context.Context, id catalog.Identity) (catalog.Session, error) {
	return &Session{c: c, id: id}, nil
}

// Close 关闭底层连接
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Session 实现 catalog.Session，所有错误都还原为 catalog sentinel
type Session struct {
	c      *Client
	id     catalog.Identity
	closed bool
}

var (
	_ catalog.Session      = (*Session)(nil)
	_ catalog.StreamPutter = (*Session)(nil)
)

func (s *Session) Identity() catalog.Identity { return s.id }

func (s *Session) ctx(ctx context.Context) (context.Context, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return rpc.WithIdentity(ctx, s.id), nil
}

func (s *Session) CollectionExists(ctx context.Context, p types.LogicalPath) (bool, error) {
	ctx, err := s.ctx(ctx)
	if err != nil {
		return false, err
	}
	resp, err := s.c.rpc.CollectionExists(ctx, &rpc.PathRequest{Path: p.String()})
	if err != nil {
		return false, rpc.FromStatus(err)
	}
	return resp.Exists, nil
}

func (s *Session) CreateCollection(ctx context.Context, p types.LogicalPath) error {
	ctx, err := s.ctx(ctx)
	if err != nil {
		return err
	}
	_, err = s.c.rpc.CreateCollection(ctx, &rpc.PathRequest{Path: p.String()})
	return rpc.FromStatus(err)
}

func (s *Session) DataObjectExists(ctx context.Context, p types.LogicalPath) (bool, error) {
	ctx, err := s.ctx(ctx)
	if err != nil {
		return false, err
	}
	resp, err := s.c.rpc.DataObjectExists(ctx, &rpc.PathRequest{Path: p.String()})
	if err != nil {
		return false, rpc.FromStatus(err)
	}
	return resp.Exists, nil
}

// Register 中的 physicalPath 必须对服务端可见
func (s *Session) Register(ctx context.Context, physicalPath string, target types.LogicalPath, opts catalog.Options) error {
	ctx, err := s.ctx(ctx)
	if err != nil {
		return err
	}
	_, err = s.c.rpc.Register(ctx, &rpc.RegisterRequest{
		PhysicalPath: physicalPath,
		Target:       target.String(),
		Options:      opts,
	})
	return rpc.FromStatus(err)
}

// Put 读取本地文件并以流的形式上传
func (s *Session) Put(ctx context.Context, physicalPath string, target types.LogicalPath, opts catalog.Options) error {
	f, err := s.c.fs.Open(physicalPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", physicalPath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	return s.PutStream(ctx, f, fi.Size(), target, opts)
}

func (s *Session) PutStream(ctx context.Context, r io.Reader, size int64, target types.LogicalPath, opts catalog.Options) error {
	ctx, err := s.ctx(ctx)
	if err != nil {
		return err
	}

	stream, err := s.c.rpc.Put(ctx)
	if err != nil {
		return rpc.FromStatus(err)
	}

	// 1. 元信息
	if err := stream.Send(&rpc.PutFrame{Meta: &rpc.PutMeta{Target: target.String(), Size: size, Options: opts}}); err != nil {
		return s.finish(stream, err)
	}

	// 2. 数据块
	buf := make([]byte, ChunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := stream.Send(&rpc.PutFrame{Chunk: buf[:n]}); err != nil {
				return s.finish(stream, err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("failed to read upload source: %w", rerr)
		}
	}

	_, err = stream.CloseAndRecv()
	return rpc.FromStatus(err)
}

// finish Send 返回 io.EOF 表示服务端已经结束了流，真正的错误要从 CloseAndRecv 拿
func (s *Session) finish(stream rpc.PutClient, sendErr error) error {
	if sendErr != io.EOF {
		return rpc.FromStatus(sendErr)
	}
	_, err := stream.CloseAndRecv()
	return rpc.FromStatus(err)
}

func (s *Session) Replicas(ctx context.Context, target types.LogicalPath) ([]catalog.Replica, error) {
	ctx, err := s.ctx(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.c.rpc.Replicas(ctx, &rpc.PathRequest{Path: target.String()})
	if err != nil {
		return nil, rpc.FromStatus(err)
	}

	out := make([]catalog.Replica, 0, len(resp.Replicas))
	for _, r := range resp.Replicas {
		out = append(out, catalog.Replica{
			Number:       r.Number,
			ResourceName: types.ResourceName(r.ResourceName),
			ResourceHier: types.ResourceHier(r.ResourceHier),
			PhysicalPath: r.PhysicalPath,
			Size:         r.Size,
			ModifyTime:   r.ModifyTime,
			Checksum:     r.Checksum,
			Status:       catalog.ReplicaStatus(r.Status),
			Registered:   r.Registered,
		})
	}
	return out, nil
}

func (s *Session) ModifyMetadata(ctx context.Context, sel catalog.ObjectSelector, upd catalog.MetadataUpdate, opts catalog.Options) error {
	ctx, err := s.ctx(ctx)
	if err != nil {
		return err
	}
	_, err = s.c.rpc.ModifyMetadata(ctx, &rpc.ModifyMetadataRequest{
		Path:         sel.Path.String(),
		ResourceName: sel.ResourceName.String(),
		ResourceHier: sel.ResourceHier.String(),
		PhysicalPath: sel.PhysicalPath,
		Size:         upd.Size,
		ModifyTime:   upd.ModifyTime,
		Options:      opts,
	})
	return rpc.FromStatus(err)
}

func (s *Session) Close() error {
	s.closed = true
	return nil
}
