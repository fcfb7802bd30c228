package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"catsync/pkg/storage"
)

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	rootPath string // 比如: /var/lib/catsync/vault/rescA
}

// NewAdapter 创建一个新的磁盘 vault
func NewAdapter(root string) (*Adapter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	// 确保根目录存在
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault dir: %w", err)
	}
	return &Adapter{rootPath: abs}, nil
}

// layout 返回 key 对应的物理路径，vault 内部目录结构与逻辑路径一致
func (s *Adapter) layout(key string) (string, error) {
	k, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.rootPath, filepath.FromSlash(k)), nil
}

func (s *Adapter) Locate(key string) string {
	p, err := s.layout(key)
	if err != nil {
		return ""
	}
	return p
}

func (s *Adapter) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	targetPath, err := s.layout(key)
	if err != nil {
		return err
	}

	// 1. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 2. 原子写入 (Atomic Write)
	// 先写到临时文件，然后 Rename。
	// 这样保证要么旧内容完整，要么新内容完整。
	tempFile, err := os.CreateTemp(dir, ".temp-*")
	if err != nil {
		return err
	}
	// 成功 Rename 之后这个删除是无害的
	defer os.Remove(tempFile.Name())

	n, err := io.Copy(tempFile, r)
	if err != nil {
		tempFile.Close()
		return err
	}
	if size >= 0 && n != size {
		tempFile.Close()
		return fmt.Errorf("short write to vault: wrote %d of %d bytes", n, size)
	}
	if err := tempFile.Close(); err != nil { // 必须先关闭才能 Rename
		return err
	}

	// 3. 移动到最终位置
	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	targetPath, err := s.layout(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(targetPath)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, key string) (bool, error) {
	targetPath, err := s.layout(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(targetPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
