package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"catsync/pkg/audit"
	"catsync/pkg/catalog"
	"catsync/pkg/catalog/local"
	"catsync/pkg/hooks"
	"catsync/pkg/meta"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupLocalRepo(t *testing.T) *meta.Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	metaDB := meta.NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(meta.Models()...))
	return meta.NewRepository(metaDB)
}

// 使用真实的本地 catalog (SQLite + 磁盘 vault) 跑完整流程
func TestEngine_LocalCatalog(t *testing.T) {
	ctx := context.Background()
	repo := setupLocalRepo(t)

	vaultDir := t.TempDir()
	require.NoError(t, repo.CreateResource(ctx, &meta.Resource{Name: "rescA", Type: local.TypeDisk, Location: filepath.Join(vaultDir, "a")}))
	require.NoError(t, repo.CreateResource(ctx, &meta.Resource{Name: "rescB", Type: local.TypeDisk, Location: filepath.Join(vaultDir, "b")}))

	// 物理文件在真实磁盘上
	dataDir := t.TempDir()
	phys := filepath.Join(dataDir, "out.txt")
	require.NoError(t, os.WriteFile(phys, []byte("hello"), 0644))

	fs := afero.NewOsFs()
	reg := hooks.NewRegistry(fs)
	require.NoError(t, reg.Register(&hooks.Module{Name: "leafA", ToLeafResource: constString("rescA")}))
	require.NoError(t, reg.Register(&hooks.Module{Name: "putB", Put: constBool(true), ToRootResource: constString("rescB")}))

	engine := NewEngine(Config{
		Connector: local.NewConnector(repo, fs, local.Config{DefaultResource: "rescA"}),
		Registry:  reg,
		Fs:        fs,
		Logger:    zerolog.Nop(),
		Audit:     audit.NewDBSink(repo),
		Identity:  catalog.Identity{Zone: "zoneA", User: "alice"},
	})

	// 1. 登记
	res, err := engine.Sync(ctx, Request{Target: target, Path: phys, Hooks: "leafA", ContentChanged: true})
	require.NoError(t, err)
	assert.Equal(t, DecisionRegister, res.Decision)

	obj, err := repo.GetDataObject(ctx, target)
	require.NoError(t, err)
	require.Len(t, obj.Replicas, 1)
	assert.Equal(t, phys, obj.Replicas[0].PhysicalPath)
	assert.Equal(t, int64(5), obj.Replicas[0].Size)
	assert.Equal(t, "alice", obj.Owner)

	// 2. 内容变化 -> 更新元数据
	require.NoError(t, os.WriteFile(phys, []byte("hello world"), 0644))
	res, err = engine.Sync(ctx, Request{Target: target, Path: phys, Hooks: "leafA", ContentChanged: true})
	require.NoError(t, err)
	assert.Equal(t, DecisionUpdateMetadata, res.Decision)

	obj, err = repo.GetDataObject(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(11), obj.Replicas[0].Size)

	// 3. 另一个物理路径指向同一个目标 -> 一致性错误
	other := filepath.Join(dataDir, "other.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))
	_, err = engine.Sync(ctx, Request{Target: target, Path: other, Hooks: "leafA", ContentChanged: true})
	assert.ErrorIs(t, err, ErrConsistencyViolation)

	obj, err = repo.GetDataObject(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(11), obj.Replicas[0].Size)

	// 4. 上传到 rescB
	res, err = engine.Sync(ctx, Request{Target: "/zoneA/home/alice/up.bin", Path: phys, Hooks: "putB", ContentChanged: true})
	require.NoError(t, err)
	assert.Equal(t, DecisionUpload, res.Decision)

	data, err := os.ReadFile(filepath.Join(vaultDir, "b", "zoneA", "home", "alice", "up.bin"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	// 5. 目标是 collection
	_, err = engine.Sync(ctx, Request{Target: "/zoneA/home", Path: phys})
	assert.ErrorIs(t, err, ErrStructuralConflict)

	// 审计记录写入了数据库
	events, err := repo.FindAuditEvents(ctx, target, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2) // register + update_metadata
}

// destRescName 指向一个 passthru 父 resource 时，replica 落在它的 leaf 上，
// 后续的元数据更新和 replica 判断都要把父 resource 当作同一个层级
func TestEngine_LocalHierarchicalResource(t *testing.T) {
	ctx := context.Background()
	repo := setupLocalRepo(t)

	vaultDir := t.TempDir()
	require.NoError(t, repo.CreateResource(ctx, &meta.Resource{Name: "rootResc", Type: local.TypePassthru}))
	require.NoError(t, repo.CreateResource(ctx, &meta.Resource{Name: "leafResc", Type: local.TypeDisk, Parent: "rootResc", Location: filepath.Join(vaultDir, "leaf")}))
	require.NoError(t, repo.CreateResource(ctx, &meta.Resource{Name: "leafZ", Type: local.TypeDisk, Parent: "rootResc", Location: filepath.Join(vaultDir, "z")}))

	phys := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(phys, []byte("hello"), 0644))

	fs := afero.NewOsFs()
	reg := hooks.NewRegistry(fs)
	require.NoError(t, reg.Register(&hooks.Module{
		Name:           "parent",
		AsReplica:      constBool(true),
		ToLeafResource: constString("rootResc"),
	}))
	engine := NewEngine(Config{
		Connector: local.NewConnector(repo, fs, local.Config{}),
		Registry:  reg,
		Fs:        fs,
		Logger:    zerolog.Nop(),
	})
	const f = "/z/f.txt"

	// 1. 登记到父 resource: 成功，replica 在 leaf 上
	res, err := engine.Sync(ctx, Request{
		Target:         f,
		Path:           phys,
		ContentChanged: true,
		Options:        catalog.Options{catalog.OptDestResource: "rootResc"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionRegister, res.Decision)

	obj, err := repo.GetDataObject(ctx, f)
	require.NoError(t, err)
	require.Len(t, obj.Replicas, 1)
	assert.Equal(t, "leafResc", obj.Replicas[0].ResourceName)
	assert.Equal(t, "rootResc;leafResc", obj.Replicas[0].ResourceHier)
	assert.Equal(t, int64(5), obj.Replicas[0].Size)

	// 2. leaf hook 返回父 resource: 已有的 replica 被认出来，不会重复追加
	require.NoError(t, os.WriteFile(phys, []byte("hello world"), 0644))
	for i := 0; i < 2; i++ {
		res, err = engine.Sync(ctx, Request{Target: f, Path: phys, Hooks: "parent", ContentChanged: true})
		require.NoError(t, err)
		assert.Equal(t, DecisionUpdateMetadata, res.Decision)
	}

	obj, err = repo.GetDataObject(ctx, f)
	require.NoError(t, err)
	require.Len(t, obj.Replicas, 1)
	assert.Equal(t, int64(11), obj.Replicas[0].Size)
}
