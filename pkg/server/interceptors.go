package server

import (
	"context"
	"path"
	"runtime/debug"
	"time"

	"catsync/pkg/metrics"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// =============================================================================
// 1. Logging Interceptor (结构化日志 + 指标)
// =============================================================================

func UnaryLoggingInterceptor(log zerolog.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logRPC(log, m, "unary", info.FullMethod, time.Since(start), err)
		return resp, err
	}
}

func StreamLoggingInterceptor(log zerolog.Logger, m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logRPC(log, m, "stream", info.FullMethod, time.Since(start), err)
		return err
	}
}

// logRPC 非 OK 的状态记为 warn，Internal / Unknown 记为 error
func logRPC(log zerolog.Logger, m *metrics.Metrics, kind, method string, duration time.Duration, err error) {
	code := status.Code(err)
	m.ObserveRPC(path.Base(method), code.String())

	ev := log.Info()
	switch code {
	case codes.OK:
	case codes.Internal, codes.Unknown:
		ev = log.Error().Err(err)
	default:
		ev = log.Warn().Err(err)
	}
	ev.Str("kind", kind).
		Str("method", method).
		Str("code", code.String()).
		Dur("dur", duration).
		Msg("gRPC request")
}

// =============================================================================
// 2. Recovery Interceptor
// =============================================================================

func UnaryRecoveryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recoverFromPanic(log, info.FullMethod, r)
			}
		}()
		return handler(ctx, req)
	}
}

func StreamRecoveryInterceptor(log zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recoverFromPanic(log, info.FullMethod, r)
			}
		}()
		return handler(srv, ss)
	}
}

// recoverFromPanic 返回 Internal 错误给客户端，而不是直接断开连接
func recoverFromPanic(log zerolog.Logger, method string, p any) error {
	log.Error().
		Str("method", method).
		Interface("panic", p).
		Str("stack", string(debug.Stack())).
		Msg("panic recovered")
	return status.Errorf(codes.Internal, "internal server error: panic recovered")
}
