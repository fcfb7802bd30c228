package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "catsync.catalog.v1.Catalog"

// 方法名
const (
	MethodCollectionExists = "CollectionExists"
	MethodCreateCollection = "CreateCollection"
	MethodDataObjectExists = "DataObjectExists"
	MethodRegister         = "Register"
	MethodReplicas         = "Replicas"
	MethodModifyMetadata   = "ModifyMetadata"
	MethodPut              = "Put"
)

// FullMethod 返回 "/catsync.catalog.v1.Catalog/<method>"
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type PutServer = grpc.ClientStreamingServer[PutFrame, Empty]
type PutClient = grpc.ClientStreamingClient[PutFrame, Empty]

// CatalogServer 是服务端需要实现的接口
type CatalogServer interface {
	CollectionExists(context.Context, *PathRequest) (*ExistsResponse, error)
	CreateCollection(context.Context, *PathRequest) (*Empty, error)
	DataObjectExists(context.Context, *PathRequest) (*ExistsResponse, error)
	Register(context.Context, *RegisterRequest) (*Empty, error)
	Replicas(context.Context, *PathRequest) (*ReplicasResponse, error)
	ModifyMetadata(context.Context, *ModifyMetadataRequest) (*Empty, error)
	Put(PutServer) error
}

// unary 为一个一元方法生成 MethodDesc
func unary[Req, Resp any](name string, call func(CatalogServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CatalogServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CatalogServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func putHandler(srv any, stream grpc.ServerStream) error {
	return srv.(CatalogServer).Put(&grpc.GenericServerStream[PutFrame, Empty]{ServerStream: stream})
}

var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCollectionExists, CatalogServer.CollectionExists),
		unary(MethodCreateCollection, CatalogServer.CreateCollection),
		unary(MethodDataObjectExists, CatalogServer.DataObjectExists),
		unary(MethodRegister, CatalogServer.Register),
		unary(MethodReplicas, CatalogServer.Replicas),
		unary(MethodModifyMetadata, CatalogServer.ModifyMetadata),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodPut,
			Handler:       putHandler,
			ClientStreams: true,
		},
	},
	Metadata: "catsync/catalog/v1",
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}

// CatalogClient 是对 ClientConn 的薄封装，所有调用都使用 CBOR codec
type CatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *CatalogClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, FullMethod(method), in, out, callOptions(opts)...)
}

func (c *CatalogClient) CollectionExists(ctx context.Context, in *PathRequest, opts ...grpc.CallOption) (*ExistsResponse, error) {
	out := new(ExistsResponse)
	if err := c.invoke(ctx, MethodCollectionExists, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) CreateCollection(ctx context.Context, in *PathRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, MethodCreateCollection, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) DataObjectExists(ctx context.Context, in *PathRequest, opts ...grpc.CallOption) (*ExistsResponse, error) {
	out := new(ExistsResponse)
	if err := c.invoke(ctx, MethodDataObjectExists, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, MethodRegister, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) Replicas(ctx context.Context, in *PathRequest, opts ...grpc.CallOption) (*ReplicasResponse, error) {
	out := new(ReplicasResponse)
	if err := c.invoke(ctx, MethodReplicas, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) ModifyMetadata(ctx context.Context, in *ModifyMetadataRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, MethodModifyMetadata, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) Put(ctx context.Context, opts ...grpc.CallOption) (PutClient, error) {
	stream, err := c.cc.NewStream(ctx, &CatalogServiceDesc.Streams[0], FullMethod(MethodPut), callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[PutFrame, Empty]{ClientStream: stream}, nil
}
