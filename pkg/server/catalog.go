package server

import (
	"context"
	"io"

	"catsync/pkg/catalog"
	"catsync/pkg/metrics"
	"catsync/pkg/rpc"
	"catsync/pkg/types"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CatalogService 把 gRPC 请求转发给一个 catalog.Connector (通常是 catalog/local)。
// 每个请求使用调用方 metadata 中的身份打开一个独立的 session。
type CatalogService struct {
	conn catalog.Connector
	log  zerolog.Logger
}

var _ rpc.CatalogServer = (*CatalogService)(nil)

func NewCatalogService(conn catalog.Connector, log zerolog.Logger) *CatalogService {
	return &CatalogService{conn: conn, log: log}
}

// NewGRPCServer 创建已注册 catalog 服务的 gRPC server
// 拦截器顺序: recovery 在最外层，保证 logging 自身的 panic 也能被捕获
func NewGRPCServer(svc *CatalogService, log zerolog.Logger, m *metrics.Metrics, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryRecoveryInterceptor(log), UnaryLoggingInterceptor(log, m)),
		grpc.ChainStreamInterceptor(StreamRecoveryInterceptor(log), StreamLoggingInterceptor(log, m)),
		grpc.MaxRecvMsgSize(64 * 1024 * 1024),
	}, opts...)

	s := grpc.NewServer(opts...)
	rpc.RegisterCatalogServer(s, svc)
	return s
}

// withSession 打开 session，执行 fn，然后关闭 session
func (s *CatalogService) withSession(ctx context.Context, fn func(catalog.Session) error) error {
	sess, err := s.conn.Open(ctx, rpc.IdentityFromContext(ctx))
	if err != nil {
		return rpc.ToStatus(err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("failed to close catalog session")
		}
	}()
	return rpc.ToStatus(fn(sess))
}

// logicalPath 只接受清洗过的绝对路径，客户端负责规范化
func logicalPath(p string) (types.LogicalPath, error) {
	lp := types.LogicalPath(p)
	if lp.IsZero() {
		return "", status.Error(codes.InvalidArgument, "logical path is required")
	}
	if !lp.IsValid() {
		return "", status.Errorf(codes.InvalidArgument, "logical path %q is not absolute and clean", p)
	}
	return lp, nil
}

func (s *CatalogService) CollectionExists(ctx context.Context, req *rpc.PathRequest) (*rpc.ExistsResponse, error) {
	p, err := logicalPath(req.Path)
	if err != nil {
		return nil, err
	}
	resp := &rpc.ExistsResponse{}
	err = s.withSession(ctx, func(sess catalog.Session) error {
		resp.Exists, err = sess.CollectionExists(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *CatalogService) CreateCollection(ctx context.Context, req *rpc.PathRequest) (*rpc.Empty, error) {
	p, err := logicalPath(req.Path)
	if err != nil {
		return nil, err
	}
	err = s.withSession(ctx, func(sess catalog.Session) error {
		return sess.CreateCollection(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func (s *CatalogService) DataObjectExists(ctx context.Context, req *rpc.PathRequest) (*rpc.ExistsResponse, error) {
	p, err := logicalPath(req.Path)
	if err != nil {
		return nil, err
	}
	resp := &rpc.ExistsResponse{}
	err = s.withSession(ctx, func(sess catalog.Session) error {
		resp.Exists, err = sess.DataObjectExists(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *CatalogService) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.Empty, error) {
	p, err := logicalPath(req.Target)
	if err != nil {
		return nil, err
	}
	if req.PhysicalPath == "" {
		return nil, status.Error(codes.InvalidArgument, "physical path is required")
	}
	err = s.withSession(ctx, func(sess catalog.Session) error {
		return sess.Register(ctx, req.PhysicalPath, p, catalog.Options(req.Options))
	})
	if err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func (s *CatalogService) Replicas(ctx context.Context, req *rpc.PathRequest) (*rpc.ReplicasResponse, error) {
	p, err := logicalPath(req.Path)
	if err != nil {
		return nil, err
	}
	resp := &rpc.ReplicasResponse{}
	err = s.withSession(ctx, func(sess catalog.Session) error {
		repls, err := sess.Replicas(ctx, p)
		if err != nil {
			return err
		}
		for _, r := range repls {
			resp.Replicas = append(resp.Replicas, rpc.Replica{
				Number:       r.Number,
				ResourceName: r.ResourceName.String(),
				ResourceHier: r.ResourceHier.String(),
				PhysicalPath: r.PhysicalPath,
				Size:         r.Size,
				ModifyTime:   r.ModifyTime,
				Checksum:     r.Checksum,
				Status:       string(r.Status),
				Registered:   r.Registered,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *CatalogService) ModifyMetadata(ctx context.Context, req *rpc.ModifyMetadataRequest) (*rpc.Empty, error) {
	p, err := logicalPath(req.Path)
	if err != nil {
		return nil, err
	}
	sel := catalog.ObjectSelector{
		Path:         p,
		ResourceName: types.ResourceName(req.ResourceName),
		ResourceHier: types.ResourceHier(req.ResourceHier),
		PhysicalPath: req.PhysicalPath,
	}
	upd := catalog.MetadataUpdate{Size: req.Size, ModifyTime: req.ModifyTime}

	err = s.withSession(ctx, func(sess catalog.Session) error {
		return sess.ModifyMetadata(ctx, sel, upd, catalog.Options(req.Options))
	})
	if err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

// Put 接收客户端流: 第一帧是 PutMeta，之后是数据块
func (s *CatalogService) Put(stream rpc.PutServer) error {
	ctx := stream.Context()

	// 1. 读取元信息
	first, err := stream.Recv()
	if err == io.EOF {
		return status.Error(codes.InvalidArgument, "empty put stream")
	}
	if err != nil {
		return err
	}
	if first.Meta == nil {
		return status.Error(codes.InvalidArgument, "first frame must carry put metadata")
	}
	p, err := logicalPath(first.Meta.Target)
	if err != nil {
		return err
	}

	// 2. 把剩余的流交给 session
	err = s.withSession(ctx, func(sess catalog.Session) error {
		sp, ok := sess.(catalog.StreamPutter)
		if !ok {
			return status.Error(codes.Unimplemented, "catalog backend does not accept streamed puts")
		}
		r := newStreamReader(stream)
		if len(first.Chunk) > 0 {
			r.buf = first.Chunk
		}
		return sp.PutStream(ctx, r, first.Meta.Size, p, catalog.Options(first.Meta.Options))
	})
	if err != nil {
		return err
	}
	return stream.SendAndClose(&rpc.Empty{})
}
