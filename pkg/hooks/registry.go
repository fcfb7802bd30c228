package hooks

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

var ErrUnknownModule = errors.New("unknown hook module")

// Registry 按标识符解析 hook 模块:
//   - ""                      没有模块
//   - 已注册的名字             对应的 Module
//   - *.toml / *.yaml / *.yml  策略文件
//
// 策略文件每次 Lookup 都会重新读取，修改后立即生效。
type Registry struct {
	fs afero.Fs

	mu      sync.RWMutex
	modules map[string]*Module
}

func NewRegistry(fs afero.Fs) *Registry {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Registry{fs: fs, modules: make(map[string]*Module)}
}

// Register 注册一个命名模块
func (r *Registry) Register(m *Module) error {
	if m == nil || m.Name == "" {
		return fmt.Errorf("hook module must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[m.Name]; ok {
		return fmt.Errorf("hook module %q already registered", m.Name)
	}
	r.modules[m.Name] = m
	return nil
}

func (r *Registry) Lookup(id string) (*Module, error) {
	if id == "" {
		return nil, nil
	}

	r.mu.RLock()
	m, ok := r.modules[id]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	switch strings.ToLower(filepath.Ext(id)) {
	case ".toml", ".yaml", ".yml":
		p, err := LoadPolicy(r.fs, id)
		if err != nil {
			return nil, err
		}
		return p.Module(id), nil
	}

	return nil, fmt.Errorf("%q: %w", id, ErrUnknownModule)
}

// Names 返回已注册的模块名 (排序)
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
