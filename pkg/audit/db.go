package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"catsync/pkg/meta"

	"gorm.io/datatypes"
)

// DBSink 把审计记录写入 audit_events 表
type DBSink struct {
	repo *meta.Repository
}

func NewDBSink(repo *meta.Repository) *DBSink {
	return &DBSink{repo: repo}
}

func (s *DBSink) Record(ctx context.Context, ev Event) error {
	var opts datatypes.JSON
	if len(ev.Options) > 0 {
		b, err := json.Marshal(ev.Options)
		if err != nil {
			return fmt.Errorf("failed to encode audit options: %w", err)
		}
		opts = datatypes.JSON(b)
	}

	return s.repo.RecordAudit(ctx, &meta.AuditEvent{
		ID:        ev.ID,
		Action:    ev.Action,
		Target:    ev.Target,
		Path:      ev.Path,
		Actor:     ev.Actor,
		Options:   opts,
		CreatedAt: ev.Time,
	})
}
