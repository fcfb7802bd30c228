package hooks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"catsync/pkg/catalog"
	"catsync/pkg/types"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrReadOnly 由 readonly 策略在任何写入 hook 点返回
var ErrReadOnly = errors.New("hook policy is read-only")

// Policy 是声明式的 hook 模块，从 TOML / YAML 文件加载。
// 只有文件中出现的字段才会变成 hook 函数，其余能力保持默认。
type Policy struct {
	User string `toml:"user" yaml:"user"`
	Zone string `toml:"zone" yaml:"zone"`

	Put       *bool `toml:"put" yaml:"put"`
	AsReplica *bool `toml:"as_replica" yaml:"as_replica"`
	Sync      *bool `toml:"sync" yaml:"sync"`

	RootResource string `toml:"root_resource" yaml:"root_resource"`
	LeafResource string `toml:"leaf_resource" yaml:"leaf_resource"`
	ResourceHier string `toml:"resource_hier" yaml:"resource_hier"`

	// ReadOnly 拒绝所有写入 (collection 创建、对象创建与修改)
	ReadOnly bool `toml:"readonly" yaml:"readonly"`

	Rules []Rule `toml:"rules" yaml:"rules"`
}

// Rule 按物理路径前缀覆盖顶层设置，最长前缀优先
type Rule struct {
	Prefix       string `toml:"prefix" yaml:"prefix"`
	Put          *bool  `toml:"put" yaml:"put"`
	RootResource string `toml:"root_resource" yaml:"root_resource"`
	LeafResource string `toml:"leaf_resource" yaml:"leaf_resource"`
}

// LoadPolicy 根据扩展名解析策略文件
func LoadPolicy(fs afero.Fs, path string) (*Policy, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hook policy: %w", err)
	}

	var p Policy
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &p)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownModule)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse hook policy %s: %w", path, err)
	}

	for i, r := range p.Rules {
		if r.Prefix == "" {
			return nil, fmt.Errorf("hook policy %s: rule %d has empty prefix", path, i)
		}
	}
	return &p, nil
}

// match 返回前缀最长的规则
func (p *Policy) match(physicalPath string) *Rule {
	var (
		best    *Rule
		bestLen int
	)
	clean := filepath.Clean(physicalPath)
	for i := range p.Rules {
		r := &p.Rules[i]
		prefix := filepath.Clean(r.Prefix)
		if !underPrefix(clean, prefix) {
			continue
		}
		// 长度按清洗后的前缀比较
		if best == nil || len(prefix) > bestLen {
			best, bestLen = r, len(prefix)
		}
	}
	return best
}

// underPrefix 只在路径边界上匹配: "/data/ab" 不属于 "/data/a"
func underPrefix(p, prefix string) bool {
	if p == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

func (p *Policy) rulesSet(field func(*Rule) bool) bool {
	for i := range p.Rules {
		if field(&p.Rules[i]) {
			return true
		}
	}
	return false
}

// Module 把策略转换成 hook 模块
func (p *Policy) Module(name string) *Module {
	m := &Module{Name: name}

	if p.User != "" || p.Zone != "" {
		id := catalog.Identity{Zone: p.Zone, User: p.User}
		m.AsUser = func(context.Context, types.LogicalPath, string, catalog.Options) (catalog.Identity, error) {
			return id, nil
		}
	}

	if p.Put != nil || p.rulesSet(func(r *Rule) bool { return r.Put != nil }) {
		m.Put = func(_ context.Context, ev Event) (bool, error) {
			if r := p.match(ev.Path); r != nil && r.Put != nil {
				return *r.Put, nil
			}
			return p.Put != nil && *p.Put, nil
		}
	}

	if p.AsReplica != nil {
		v := *p.AsReplica
		m.AsReplica = func(context.Context, Event) (bool, error) { return v, nil }
	}
	if p.Sync != nil {
		v := *p.Sync
		m.Sync = func(context.Context, Event) (bool, error) { return v, nil }
	}

	if p.RootResource != "" || p.rulesSet(func(r *Rule) bool { return r.RootResource != "" }) {
		m.ToRootResource = func(_ context.Context, ev Event) (string, error) {
			if r := p.match(ev.Path); r != nil && r.RootResource != "" {
				return r.RootResource, nil
			}
			return p.RootResource, nil
		}
	}
	if p.LeafResource != "" || p.rulesSet(func(r *Rule) bool { return r.LeafResource != "" }) {
		m.ToLeafResource = func(_ context.Context, ev Event) (string, error) {
			if r := p.match(ev.Path); r != nil && r.LeafResource != "" {
				return r.LeafResource, nil
			}
			return p.LeafResource, nil
		}
	}
	if p.ResourceHier != "" {
		v := p.ResourceHier
		m.ToResourceHier = func(context.Context, Event) (string, error) { return v, nil }
	}

	if p.ReadOnly {
		veto := func(_ context.Context, _ Action, ev Event) error {
			return fmt.Errorf("%s -> %s: %w", ev.Path, ev.Target, ErrReadOnly)
		}
		m.OnCollCreate = veto
		m.OnDataObjCreate = veto
		m.OnDataObjModify = veto
	}

	return m
}
