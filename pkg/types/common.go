// pkg/types/common.go
package types

import (
	"path"
	"strings"
)

// LogicalPath 是 catalog 命名空间中的路径 (例如 "/zoneA/home/alice/out.txt")
// 它既可能指向 Collection，也可能指向 DataObject，但不会同时是两者。
// 这是一个"值对象"，应当是不可变的。
type LogicalPath string

// Root 是 catalog 的根 Collection，永远预先存在
const Root LogicalPath = "/"

// NewLogicalPath 清洗输入并返回绝对路径
// 注意：catalog 路径永远使用 "/"，与本地操作系统无关，所以这里用 path 而不是 filepath
func NewLogicalPath(p string) LogicalPath {
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return LogicalPath(path.Clean(p))
}

func (p LogicalPath) String() string { return string(p) }

func (p LogicalPath) IsZero() bool { return p == "" }
func (p LogicalPath) IsRoot() bool { return p == Root }

// IsValid 只接受已清洗过的绝对路径
func (p LogicalPath) IsValid() bool {
	s := string(p)
	return strings.HasPrefix(s, "/") && path.Clean(s) == s
}

// Dir 返回父 Collection 的路径，根的父节点还是根
func (p LogicalPath) Dir() LogicalPath {
	return LogicalPath(path.Dir(string(p)))
}

// Base 返回最后一段名字 (DataObject 的 name)
func (p LogicalPath) Base() string {
	return path.Base(string(p))
}

// Join 追加子路径
func (p LogicalPath) Join(elem ...string) LogicalPath {
	parts := append([]string{string(p)}, elem...)
	return NewLogicalPath(path.Join(parts...))
}

// ResourceName 标识一个存储后端 (catalog resource)
type ResourceName string

func (r ResourceName) String() string { return string(r) }
func (r ResourceName) IsZero() bool   { return r == "" }

// HierarchySeparator 分隔 resource hierarchy 中的各级，例如 "rootResc;leafResc"
const HierarchySeparator = ";"

// ResourceHier 是 resource 从根到叶子的层级路径
type ResourceHier string

func (h ResourceHier) String() string { return string(h) }

// Contains 判断 name 是否是层级中的某一级
// "root;leaf" 同时属于 root 与 leaf
func (h ResourceHier) Contains(name ResourceName) bool {
	if h == "" || name == "" {
		return false
	}
	for _, seg := range strings.Split(string(h), HierarchySeparator) {
		if seg == string(name) {
			return true
		}
	}
	return false
}
