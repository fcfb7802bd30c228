package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catsync/pkg/catalog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// 按匹配优先级排列: 更具体的 sentinel 在前
var sentinels = []struct {
	err  error
	code codes.Code
}{
	{catalog.ErrResourceNotFound, codes.NotFound},
	{catalog.ErrParentNotFound, codes.FailedPrecondition},
	{catalog.ErrPathConflict, codes.FailedPrecondition},
	{catalog.ErrAlreadyExists, codes.AlreadyExists},
	{catalog.ErrNotFound, codes.NotFound},
}

// ToStatus 把 catalog 错误转换为 gRPC status，消息中保留完整的错误链文本
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return status.Error(s.code, err.Error())
		}
	}
	return status.Error(codes.Unknown, err.Error())
}

// FromStatus 是 ToStatus 的逆过程: 还原 catalog sentinel，使调用方可以继续使用 errors.Is
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	msg := st.Message()
	for _, s := range sentinels {
		if st.Code() == s.code && strings.Contains(msg, s.err.Error()) {
			return fmt.Errorf("%s: %w", msg, s.err)
		}
	}
	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("%s: %w", msg, context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", msg, context.DeadlineExceeded)
	}
	return err
}
