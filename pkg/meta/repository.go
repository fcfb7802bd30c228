package meta

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"catsync/pkg/catalog"
	"catsync/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// isDuplicate 兼容不同数据库 (PG 与 SQLite) 的唯一约束错误
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// -----------------------------------------------------------------------------
// 1. Collections
// -----------------------------------------------------------------------------

// EnsureRoot 创建根 Collection (幂等)，只应该在初始化时调用
func (r *Repository) EnsureRoot(ctx context.Context) error {
	root := Collection{Path: types.Root.String()}
	return r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&root).Error
}

func (r *Repository) CollectionExists(ctx context.Context, p types.LogicalPath) (bool, error) {
	var count int64
	err := r.db.GetConn().WithContext(ctx).
		Model(&Collection{}).
		Where("path = ?", p.String()).
		Count(&count).Error
	return count > 0, err
}

// CreateCollection 创建一个 Collection，父节点必须已经存在
// 已存在时什么都不做 (可重入，兄弟路径并发创建同一个祖先是安全的)
func (r *Repository) CreateCollection(ctx context.Context, p types.LogicalPath, owner catalog.Identity) error {
	if p.IsRoot() {
		return fmt.Errorf("refusing to create root collection: %w", catalog.ErrPathConflict)
	}

	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 父节点必须存在
		var parents int64
		if err := tx.Model(&Collection{}).Where("path = ?", p.Dir().String()).Count(&parents).Error; err != nil {
			return err
		}
		if parents == 0 {
			return fmt.Errorf("create collection %s: %w", p, catalog.ErrParentNotFound)
		}

		// 2. 不能与 DataObject 重名
		var objs int64
		if err := tx.Model(&DataObject{}).
			Where("coll_path = ? AND name = ?", p.Dir().String(), p.Base()).
			Count(&objs).Error; err != nil {
			return err
		}
		if objs > 0 {
			return fmt.Errorf("create collection %s: %w", p, catalog.ErrPathConflict)
		}

		// 3. 幂等写入
		coll := Collection{
			Path:   p.String(),
			Parent: p.Dir().String(),
			Owner:  owner.User,
			Zone:   owner.Zone,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoNothing: true,
		}).Create(&coll).Error
	})
}

// CountCollections 返回 Collection 总数 (含根)，init 命令用它报告 catalog 状态
func (r *Repository) CountCollections(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetConn().WithContext(ctx).Model(&Collection{}).Count(&count).Error
	return count, err
}

// -----------------------------------------------------------------------------
// 2. Data objects & replicas
// -----------------------------------------------------------------------------

func (r *Repository) DataObjectExists(ctx context.Context, p types.LogicalPath) (bool, error) {
	var count int64
	err := r.db.GetConn().WithContext(ctx).
		Model(&DataObject{}).
		Where("coll_path = ? AND name = ?", p.Dir().String(), p.Base()).
		Count(&count).Error
	return count > 0, err
}

// GetDataObject 读取 DataObject 及其全部 replica (按 Number 排序)
func (r *Repository) GetDataObject(ctx context.Context, p types.LogicalPath) (*DataObject, error) {
	return getDataObject(r.db.GetConn().WithContext(ctx), p)
}

func getDataObject(tx *gorm.DB, p types.LogicalPath) (*DataObject, error) {
	var obj DataObject
	err := tx.Preload("Replicas", func(db *gorm.DB) *gorm.DB {
		return db.Order("number ASC")
	}).
		Where("coll_path = ? AND name = ?", p.Dir().String(), p.Base()).
		First(&obj).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("data object %s: %w", p, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// CreateDataObject 创建 DataObject 以及它的第一个 replica (事务)
func (r *Repository) CreateDataObject(ctx context.Context, p types.LogicalPath, owner catalog.Identity, first Replica) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 父 Collection 必须存在，且目标路径不能是 Collection
		var colls []Collection
		if err := tx.Where("path IN ?", []string{p.Dir().String(), p.String()}).Find(&colls).Error; err != nil {
			return err
		}
		parentFound := false
		for _, c := range colls {
			if c.Path == p.String() {
				return fmt.Errorf("create data object %s: %w", p, catalog.ErrPathConflict)
			}
			parentFound = true
		}
		if !parentFound {
			return fmt.Errorf("create data object %s: %w", p, catalog.ErrParentNotFound)
		}

		// 2. 写入 DataObject
		obj := DataObject{
			CollPath: p.Dir().String(),
			Name:     p.Base(),
			Owner:    owner.User,
			Zone:     owner.Zone,
		}
		if err := tx.Create(&obj).Error; err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("create data object %s: %w", p, catalog.ErrAlreadyExists)
			}
			return fmt.Errorf("failed to create data object: %w", err)
		}

		// 3. 写入第一个 replica
		first.ID = 0
		first.DataObjectID = obj.ID
		first.Number = 0
		return tx.Create(&first).Error
	})
}

// AddReplica 为已存在的 DataObject 登记一个额外的 replica
// 同一个 resource 上已有 replica 时返回 ErrAlreadyExists
func (r *Repository) AddReplica(ctx context.Context, p types.LogicalPath, repl Replica) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		obj, err := getDataObject(tx, p)
		if err != nil {
			return err
		}
		for _, existing := range obj.Replicas {
			if existing.ResourceName == repl.ResourceName {
				return fmt.Errorf("replica of %s on %s: %w", p, repl.ResourceName, catalog.ErrAlreadyExists)
			}
		}

		repl.ID = 0
		repl.DataObjectID = obj.ID
		repl.Number = nextReplicaNumber(obj.Replicas)
		if err := tx.Create(&repl).Error; err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("replica of %s on %s: %w", p, repl.ResourceName, catalog.ErrAlreadyExists)
			}
			return err
		}
		return nil
	})
}

// PutReplica 写入 (或覆盖) 某个 resource 上的 replica，并把其它 replica 标记为 stale
// DataObject 必须已经存在
func (r *Repository) PutReplica(ctx context.Context, p types.LogicalPath, repl Replica) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		obj, err := getDataObject(tx, p)
		if err != nil {
			return err
		}

		repl.DataObjectID = obj.ID
		repl.ID = 0
		repl.Number = nextReplicaNumber(obj.Replicas)
		for _, existing := range obj.Replicas {
			if existing.ResourceName == repl.ResourceName {
				repl.ID = existing.ID
				repl.Number = existing.Number
			}
		}

		// Save: ID 为 0 时 insert，否则 update 全部字段
		if err := tx.Save(&repl).Error; err != nil {
			return fmt.Errorf("failed to save replica: %w", err)
		}

		// 其它 resource 上的拷贝已经过期
		return tx.Model(&Replica{}).
			Where("data_object_id = ? AND id <> ?", obj.ID, repl.ID).
			Update("status", string(catalog.ReplicaStale)).Error
	})
}

func nextReplicaNumber(replicas []Replica) int {
	next := 0
	for _, r := range replicas {
		if r.Number >= next {
			next = r.Number + 1
		}
	}
	return next
}

// ReplicaFilter 选择要修改的 replica，空字段不参与过滤
// ResourceName 匹配 replica 的 leaf 或层级中的任意一级
type ReplicaFilter struct {
	Path         types.LogicalPath
	ResourceName string
	ResourceHier string
	PhysicalPath string
}

func (f ReplicaFilter) match(r *Replica) bool {
	if f.ResourceName != "" && r.ResourceName != f.ResourceName &&
		!types.ResourceHier(r.ResourceHier).Contains(types.ResourceName(f.ResourceName)) {
		return false
	}
	if f.ResourceHier != "" && r.ResourceHier != f.ResourceHier {
		return false
	}
	if f.PhysicalPath != "" && r.PhysicalPath != f.PhysicalPath {
		return false
	}
	return true
}

// UpdateReplicaMetadata 在一个事务内修改匹配 replica 的 size / modify time
// 没有任何 replica 匹配时返回 ErrNotFound，且不写入任何数据
func (r *Repository) UpdateReplicaMetadata(ctx context.Context, f ReplicaFilter, size, modifyTime *int64) (int64, error) {
	fields := map[string]any{}
	if size != nil {
		fields["size"] = *size
	}
	if modifyTime != nil {
		fields["modify_time"] = *modifyTime
	}
	if len(fields) == 0 {
		return 0, nil
	}

	var affected int64
	err := r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		obj, err := getDataObject(tx, f.Path)
		if err != nil {
			return err
		}

		var ids []uint
		for i := range obj.Replicas {
			if f.match(&obj.Replicas[i]) {
				ids = append(ids, obj.Replicas[i].ID)
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("no replica of %s matches resource %q hier %q: %w",
				f.Path, f.ResourceName, f.ResourceHier, catalog.ErrNotFound)
		}

		result := tx.Model(&Replica{}).Where("id IN ?", ids).Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	return affected, err
}

// -----------------------------------------------------------------------------
// 3. Resources
// -----------------------------------------------------------------------------

func (r *Repository) CreateResource(ctx context.Context, res *Resource) error {
	if res.Parent != "" {
		if _, err := r.GetResource(ctx, res.Parent); err != nil {
			return err
		}
	}
	if err := r.db.GetConn().WithContext(ctx).Create(res).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("resource %s: %w", res.Name, catalog.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

func (r *Repository) GetResource(ctx context.Context, name string) (*Resource, error) {
	var res Resource
	err := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		First(&res).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("resource %s: %w", name, catalog.ErrResourceNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) ListResources(ctx context.Context) ([]Resource, error) {
	var out []Resource
	err := r.db.GetConn().WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}

// Children 返回直接子 resource (按名字排序)
func (r *Repository) Children(ctx context.Context, name string) ([]Resource, error) {
	var out []Resource
	err := r.db.GetConn().WithContext(ctx).
		Where("parent = ?", name).
		Order("name ASC").
		Find(&out).Error
	return out, err
}

// Hierarchy 沿 Parent 向上拼出 "root;...;name"
func (r *Repository) Hierarchy(ctx context.Context, name string) (types.ResourceHier, error) {
	chain := []string{}
	seen := map[string]bool{}
	for cur := name; cur != ""; {
		if seen[cur] {
			return "", fmt.Errorf("resource hierarchy cycle at %s", cur)
		}
		seen[cur] = true

		res, err := r.GetResource(ctx, cur)
		if err != nil {
			return "", err
		}
		chain = append(chain, res.Name)
		cur = res.Parent
	}

	// chain 是 leaf -> root，需要反转
	slices.Reverse(chain)
	return types.ResourceHier(strings.Join(chain, types.HierarchySeparator)), nil
}

// -----------------------------------------------------------------------------
// 4. Audit
// -----------------------------------------------------------------------------

func (r *Repository) RecordAudit(ctx context.Context, ev *AuditEvent) error {
	if err := r.db.GetConn().WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// FindAuditEvents 按时间倒序返回某个 target 的审计记录
func (r *Repository) FindAuditEvents(ctx context.Context, target types.LogicalPath, limit int) ([]AuditEvent, error) {
	var out []AuditEvent
	err := r.db.GetConn().WithContext(ctx).
		Where("target = ?", target.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
