// Package hooks 实现可插拔的策略模块 (hook module)。
// 模块是一组可选的函数，未定义的能力由 Dispatcher 退回默认行为。
package hooks

import (
	"context"

	"catsync/pkg/catalog"
	"catsync/pkg/types"
)

// Hook 点与能力名
const (
	PointCollCreate    = "on_coll_create"
	PointDataObjCreate = "on_data_obj_create"
	PointDataObjModify = "on_data_obj_modify"

	ProbeAsUser       = "as_user"
	ProbePut          = "put"
	ProbeAsReplica    = "as_replica"
	ProbeRootResource = "to_root_resource"
	ProbeLeafResource = "to_leaf_resource"
	ProbeResourceHier = "to_resource_hier"
	ProbeSync         = "sync"
)

// Event 是传递给 hook 的上下文
// Options 是一份拷贝，hook 可以修改它来影响默认动作
type Event struct {
	Session catalog.Session
	Target  types.LogicalPath
	Path    string
	Options catalog.Options
}

// Action 是默认动作，hook 可以在自己的逻辑前后调用它，也可以完全替换它
type Action func(ctx context.Context, ev Event) error

// Handler 包裹某个 hook 点的默认动作
type Handler func(ctx context.Context, next Action, ev Event) error

// BoolProbe / StringProbe 是能力查询函数
type (
	BoolProbe   func(ctx context.Context, ev Event) (bool, error)
	StringProbe func(ctx context.Context, ev Event) (string, error)
)

// UserProbe 决定 session 的身份，此时还没有 session，所以不接收 Event
type UserProbe func(ctx context.Context, target types.LogicalPath, path string, opts catalog.Options) (catalog.Identity, error)

// Module 是一个 hook 模块，nil 字段表示 "未定义"
type Module struct {
	Name string

	AsUser         UserProbe
	Put            BoolProbe
	AsReplica      BoolProbe
	ToRootResource StringProbe
	ToLeafResource StringProbe
	ToResourceHier StringProbe
	Sync           BoolProbe

	OnCollCreate    Handler
	OnDataObjCreate Handler
	OnDataObjModify Handler
}

func (m *Module) handler(point string) Handler {
	if m == nil {
		return nil
	}
	switch point {
	case PointCollCreate:
		return m.OnCollCreate
	case PointDataObjCreate:
		return m.OnDataObjCreate
	case PointDataObjModify:
		return m.OnDataObjModify
	}
	return nil
}
