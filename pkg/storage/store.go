package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid vault key")
)

// Store 是 resource 背后的 vault (物理存储)。
// 实现可以是本地磁盘或 S3 兼容的对象存储。
type Store interface {
	// Put 以 key 写入字节流，已存在时覆盖
	// size 仅作为提示 (S3 需要 Content-Length)，<0 表示未知
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get 返回 io.ReadCloser 以支持大文件流式读取
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	Has(ctx context.Context, key string) (bool, error)

	// Locate 返回 key 对应的物理路径，这个值会作为 replica 的 PhysicalPath 记录在 catalog 中
	Locate(key string) string
}

// CleanKey 把逻辑路径转换成 vault key: 去掉开头的 "/"，拒绝 ".." 逃逸
func CleanKey(key string) (string, error) {
	k := strings.TrimLeft(key, "/")
	if k == "" {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(k, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	return k, nil
}
