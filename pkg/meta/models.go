package meta

import (
	"time"

	"gorm.io/datatypes"
)

// Resource 是一个命名的存储后端
// 有 Parent 的 resource 组成层级 (hierarchy)，例如 "rootResc;leafResc"
type Resource struct {
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// Type 决定 vault 的实现: "disk" | "s3" | "passthru" (只负责路由，没有 vault)
	Type string `gorm:"type:varchar(32);not null"`

	Parent string `gorm:"index;type:varchar(255)"`

	// Location 对 disk 是 vault 根目录，对 s3 是 bucket
	Location string `gorm:"type:text"`

	// Context 存储后端相关的附加参数 (例如 s3 prefix)
	Context datatypes.JSON

	CreatedAt time.Time
}

// Collection 对应一个目录
type Collection struct {
	Path   string `gorm:"primaryKey;type:varchar(2048)"`
	Parent string `gorm:"index;type:varchar(2048)"`

	Owner string `gorm:"type:varchar(255)"`
	Zone  string `gorm:"type:varchar(255)"`

	CreatedAt time.Time
}

// DataObject 对应一个逻辑文件，(CollPath, Name) 唯一
type DataObject struct {
	ID       uint   `gorm:"primaryKey"`
	CollPath string `gorm:"uniqueIndex:idx_data_obj_path;type:varchar(2048);not null"`
	Name     string `gorm:"uniqueIndex:idx_data_obj_path;type:varchar(1024);not null"`

	Owner string `gorm:"type:varchar(255)"`
	Zone  string `gorm:"type:varchar(255)"`

	Replicas []Replica `gorm:"foreignKey:DataObjectID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Replica 记录一份物理拷贝，同一个 DataObject 在同一个 resource 上最多一份
type Replica struct {
	ID           uint   `gorm:"primaryKey"`
	DataObjectID uint   `gorm:"uniqueIndex:idx_replica_resc;not null"`
	ResourceName string `gorm:"uniqueIndex:idx_replica_resc;type:varchar(255);not null"`

	Number       int
	ResourceHier string `gorm:"type:text"`
	PhysicalPath string `gorm:"type:text;not null"`

	Size       int64
	ModifyTime int64 // unix seconds
	Checksum   string `gorm:"type:varchar(80)"`
	Status     string `gorm:"type:varchar(16)"`

	// Registered 表示只是登记了外部文件 (没有经过 vault)
	Registered bool

	UpdatedAt time.Time
}

// AuditEvent 是每次变更动作之前写下的审计记录
type AuditEvent struct {
	ID      string `gorm:"primaryKey;type:char(36)"`
	Action  string `gorm:"index;type:varchar(64)"`
	Target  string `gorm:"index;type:varchar(2048)"`
	Path    string `gorm:"type:text"`
	Actor   string `gorm:"type:varchar(255)"`
	Options datatypes.JSON

	CreatedAt time.Time `gorm:"index"`
}

// TableName 强制指定表名
func (AuditEvent) TableName() string {
	return "audit_events"
}
