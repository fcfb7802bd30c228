package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"catsync/pkg/catalog"
	"catsync/pkg/meta"
	"catsync/pkg/types"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	repo  *meta.Repository
	fs    afero.Fs
	conn  *Connector
	vault string
}

func setupTestEnv(t *testing.T) *testEnv {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	metaDB := meta.NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(meta.Models()...))
	repo := meta.NewRepository(metaDB)

	ctx := context.Background()
	vaultDir := t.TempDir()
	require.NoError(t, repo.CreateResource(ctx, &meta.Resource{Name: "rescA", Type: TypeDisk, Location: filepath.Join(vaultDir, "a")}))
	require.NoError(t, repo.CreateResource(ctx, &meta.Resource{Name: "tier", Type: TypePassthru}))
	require.NoError(t, repo.CreateResource(ctx, &meta.Resource{Name: "tierLeaf", Type: TypeDisk, Parent: "tier", Location: filepath.Join(vaultDir, "leaf")}))

	fs := afero.NewMemMapFs()
	conn := NewConnector(repo, fs, Config{DefaultResource: "rescA"})
	return &testEnv{repo: repo, fs: fs, conn: conn, vault: vaultDir}
}

func (e *testEnv) session(t *testing.T) catalog.Session {
	t.Helper()
	sess, err := e.conn.Open(context.Background(), catalog.Identity{Zone: "zoneA", User: "alice"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	require.NoError(t, sess.CreateCollection(context.Background(), "/zoneA"))
	return sess
}

func TestSession_Register(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	sess := env.session(t)

	require.NoError(t, afero.WriteFile(env.fs, "/data/out.txt", []byte("hello"), 0644))
	target := types.NewLogicalPath("/zoneA/out.txt")

	// 1. 新对象
	require.NoError(t, sess.Register(ctx, "/data/out.txt", target, catalog.Options{catalog.OptDestResource: "rescA"}))

	ok, err := sess.DataObjectExists(ctx, target)
	require.NoError(t, err)
	assert.True(t, ok)

	repls, err := sess.Replicas(ctx, target)
	require.NoError(t, err)
	require.Len(t, repls, 1)
	assert.Equal(t, "/data/out.txt", repls[0].PhysicalPath)
	assert.Equal(t, types.ResourceName("rescA"), repls[0].ResourceName)
	assert.Equal(t, int64(5), repls[0].Size)

	// 2. 追加 replica (passthru 解析到叶子)
	require.NoError(t, sess.Register(ctx, "/data/out.txt", target, catalog.Options{
		catalog.OptDestResource:    "tier",
		catalog.OptRegisterReplica: "",
	}))
	repls, err = sess.Replicas(ctx, target)
	require.NoError(t, err)
	require.Len(t, repls, 2)
	assert.Equal(t, types.ResourceName("tierLeaf"), repls[1].ResourceName)
	assert.Equal(t, types.ResourceHier("tier;tierLeaf"), repls[1].ResourceHier)

	// 3. 没有 regRepl 时重复登记失败
	err = sess.Register(ctx, "/data/out.txt", target, nil)
	assert.ErrorIs(t, err, catalog.ErrAlreadyExists)

	// 4. 物理文件不存在
	err = sess.Register(ctx, "/data/missing", "/zoneA/missing", nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// 5. resource 不存在
	err = sess.Register(ctx, "/data/out.txt", "/zoneA/other", catalog.Options{catalog.OptDestResource: "nope"})
	assert.ErrorIs(t, err, catalog.ErrResourceNotFound)
}

func TestSession_Put(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	sess := env.session(t)

	require.NoError(t, afero.WriteFile(env.fs, "/data/out.txt", []byte("v1"), 0644))
	target := types.NewLogicalPath("/zoneA/out.txt")

	// 1. 上传
	require.NoError(t, sess.Put(ctx, "/data/out.txt", target, nil))

	repls, err := sess.Replicas(ctx, target)
	require.NoError(t, err)
	require.Len(t, repls, 1)
	assert.Equal(t, filepath.Join(env.vault, "a", "zoneA", "out.txt"), repls[0].PhysicalPath)
	assert.Equal(t, int64(2), repls[0].Size)
	assert.Contains(t, repls[0].Checksum, "sha256:")

	data, err := os.ReadFile(repls[0].PhysicalPath)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	// 2. 在另一个 resource 上登记 replica，然后重新上传到 rescA
	require.NoError(t, sess.Register(ctx, "/data/out.txt", target, catalog.Options{
		catalog.OptDestResource:    "tierLeaf",
		catalog.OptRegisterReplica: "",
	}))
	require.NoError(t, afero.WriteFile(env.fs, "/data/out.txt", []byte("version2"), 0644))
	require.NoError(t, sess.Put(ctx, "/data/out.txt", target, catalog.Options{catalog.OptDestResource: "rescA"}))

	repls, err = sess.Replicas(ctx, target)
	require.NoError(t, err)
	require.Len(t, repls, 2)
	assert.Equal(t, int64(8), repls[0].Size)
	assert.Equal(t, catalog.ReplicaGood, repls[0].Status)
	assert.Equal(t, catalog.ReplicaStale, repls[1].Status)

	// 3. 父 Collection 不存在时不会写 vault
	err = sess.Put(ctx, "/data/out.txt", "/zoneB/out.txt", nil)
	assert.ErrorIs(t, err, catalog.ErrParentNotFound)
	_, statErr := os.Stat(filepath.Join(env.vault, "a", "zoneB"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSession_RegisterForce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	sess := env.session(t)

	target := types.NewLogicalPath("/zoneA/out.txt")
	require.NoError(t, afero.WriteFile(env.fs, "/data/v1.txt", []byte("v1"), 0644))
	require.NoError(t, afero.WriteFile(env.fs, "/data/v2.txt", []byte("second"), 0644))
	require.NoError(t, sess.Register(ctx, "/data/v1.txt", target, nil))

	// forceFlag 覆盖同一 resource 上的 replica，不新增编号
	require.NoError(t, sess.Register(ctx, "/data/v2.txt", target, catalog.Options{catalog.OptForce: ""}))

	repls, err := sess.Replicas(ctx, target)
	require.NoError(t, err)
	require.Len(t, repls, 1)
	assert.Equal(t, 0, repls[0].Number)
	assert.Equal(t, "/data/v2.txt", repls[0].PhysicalPath)
	assert.Equal(t, int64(6), repls[0].Size)
	assert.True(t, repls[0].Registered)

	// 对象不存在时 forceFlag 等同于普通登记
	require.NoError(t, sess.Register(ctx, "/data/v1.txt", "/zoneA/fresh.txt", catalog.Options{catalog.OptForce: ""}))
	ok, err := sess.DataObjectExists(ctx, "/zoneA/fresh.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSession_ReadObject(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	sess := env.session(t).(*Session)

	// 1. 登记的 replica 读物理文件
	require.NoError(t, afero.WriteFile(env.fs, "/data/reg.txt", []byte("registered"), 0644))
	require.NoError(t, sess.Register(ctx, "/data/reg.txt", "/zoneA/reg.txt", nil))

	rc, repl, err := sess.ReadObject(ctx, "/zoneA/reg.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "registered", string(data))
	assert.True(t, repl.Registered)

	// 2. 上传的 replica 从 vault 读回
	require.NoError(t, afero.WriteFile(env.fs, "/data/put.txt", []byte("uploaded"), 0644))
	require.NoError(t, sess.Put(ctx, "/data/put.txt", "/zoneA/put.txt", nil))

	rc, repl, err = sess.ReadObject(ctx, "/zoneA/put.txt")
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "uploaded", string(data))
	assert.False(t, repl.Registered)
	assert.Equal(t, types.ResourceName("rescA"), repl.ResourceName)

	// 3. vault 中的字节丢失
	require.NoError(t, os.Remove(repl.PhysicalPath))
	_, _, err = sess.ReadObject(ctx, "/zoneA/put.txt")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	// 4. 对象不存在
	_, _, err = sess.ReadObject(ctx, "/zoneA/ghost.txt")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSession_ModifyMetadata(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	sess := env.session(t)

	require.NoError(t, afero.WriteFile(env.fs, "/data/out.txt", []byte("hello"), 0644))
	target := types.NewLogicalPath("/zoneA/out.txt")
	require.NoError(t, sess.Register(ctx, "/data/out.txt", target, nil))

	size, mtime := int64(99), int64(1700000000)
	err := sess.ModifyMetadata(ctx,
		catalog.ObjectSelector{Path: target, ResourceName: "rescA"},
		catalog.MetadataUpdate{Size: &size, ModifyTime: &mtime}, nil)
	require.NoError(t, err)

	repls, err := sess.Replicas(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(99), repls[0].Size)
	assert.Equal(t, int64(1700000000), repls[0].ModifyTime)

	// 不匹配的 selector
	err = sess.ModifyMetadata(ctx,
		catalog.ObjectSelector{Path: target, ResourceName: "tierLeaf"},
		catalog.MetadataUpdate{Size: &size}, nil)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSession_Closed(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	sess, err := env.conn.Open(ctx, catalog.Identity{})
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	_, err = sess.CollectionExists(ctx, types.Root)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestConnector_ResolveLeaf(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	res, err := env.conn.resolveLeaf(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "rescA", res.Name)

	res, err = env.conn.resolveLeaf(ctx, "tier")
	require.NoError(t, err)
	assert.Equal(t, "tierLeaf", res.Name)

	// passthru 叶子没有 vault
	require.NoError(t, env.repo.CreateResource(ctx, &meta.Resource{Name: "empty", Type: TypePassthru}))
	leaf, err := env.conn.resolveLeaf(ctx, "empty")
	require.NoError(t, err)
	_, err = env.conn.vault(ctx, leaf)
	assert.Error(t, err)
}
