// Package audit 记录每一个变更动作 (创建 collection、登记、上传、修改元数据)。
// 记录发生在动作之前，动作失败也不会回滚审计记录。
package audit

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
)

// 动作名
const (
	ActionCreateCollection = "create_collection"
	ActionRegister         = "register"
	ActionUpload           = "upload"
	ActionResync           = "resync"
	ActionUpdateMetadata   = "update_metadata"
)

type Event struct {
	ID      string
	Time    time.Time
	Action  string
	Target  string
	Path    string
	Actor   string
	Options map[string]string
}

func NewEvent(action, target, path, actor string, opts map[string]string) Event {
	return Event{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Action:  action,
		Target:  target,
		Path:    path,
		Actor:   actor,
		Options: maps.Clone(opts),
	}
}

// Sink 是审计记录的去处
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Multi 把记录发送给所有 sink，收集全部错误
type Multi []Sink

func (m Multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop 丢弃所有记录
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
