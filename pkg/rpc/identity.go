package rpc

import (
	"context"

	"catsync/pkg/catalog"

	"google.golang.org/grpc/metadata"
)

// session 身份通过 gRPC metadata 传递
const (
	MetadataUser = "x-catalog-user"
	MetadataZone = "x-catalog-zone"
)

// WithIdentity 把身份附加到出站 context，零值 Identity 不附加任何东西
func WithIdentity(ctx context.Context, id catalog.Identity) context.Context {
	if id.IsZero() {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, MetadataUser, id.User, MetadataZone, id.Zone)
}

// IdentityFromContext 读取入站 metadata 中的身份
func IdentityFromContext(ctx context.Context) catalog.Identity {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return catalog.Identity{}
	}
	var id catalog.Identity
	if v := md.Get(MetadataUser); len(v) > 0 {
		id.User = v[0]
	}
	if v := md.Get(MetadataZone); len(v) > 0 {
		id.Zone = v[0]
	}
	return id
}
