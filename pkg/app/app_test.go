package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"catsync/pkg/audit"
	"catsync/pkg/client"
	"catsync/pkg/meta"
	"catsync/pkg/reconcile"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useLocal 配置一个基于临时 sqlite 文件的本地 catalog
func useLocal(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	viper.Set("catalog.mode", ModeLocal)
	viper.Set("catalog.zone", "zoneA")
	viper.Set("catalog.user", "alice")
	viper.Set("catalog.default_resource", "rescA")
	viper.Set("database.driver", "sqlite")
	viper.Set("database.path", filepath.Join(dir, "state", "catalog.db"))
	viper.Set("audit.db", true)
	viper.Set("log.level", "error")
	return dir
}

func TestNewApp_Local(t *testing.T) {
	dir := useLocal(t)
	ctx := context.Background()

	a, err := NewApp(ctx)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Repo)
	assert.IsType(t, &audit.DBSink{}, a.Audit)
	assert.Equal(t, "alice#zoneA", a.Identity.String())

	// 1. 准备 resource 与物理文件
	require.NoError(t, a.Repo.CreateResource(ctx, &meta.Resource{
		Name: "rescA", Type: "disk", Location: filepath.Join(dir, "vault"),
	}))
	phys := filepath.Join(dir, "data", "out.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(phys), 0755))
	require.NoError(t, os.WriteFile(phys, []byte("hello"), 0644))

	// 2. 引擎已经接好 catalog 与审计
	res, err := a.Engine.Sync(ctx, reconcile.Request{
		Target:         "/zoneA/home/alice/out.txt",
		Path:           phys,
		ContentChanged: true,
	})
	require.NoError(t, err)
	assert.Equal(t, reconcile.DecisionRegister, res.Decision)

	obj, err := a.Repo.GetDataObject(ctx, "/zoneA/home/alice/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "alice", obj.Owner)

	events, err := a.Repo.FindAuditEvents(ctx, "/zoneA/home/alice/out.txt", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestNewApp_AuditDisabled(t *testing.T) {
	useLocal(t)
	viper.Set("audit.db", false)

	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, audit.Nop{}, a.Audit)
}

func TestNewApp_Remote(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("catalog.mode", ModeRemote)
	viper.Set("catalog.endpoint", "localhost:7070")

	// gRPC 客户端惰性连接，这里不需要服务端
	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Repo)
	assert.IsType(t, &client.Client{}, a.Connector)
	assert.Equal(t, audit.Nop{}, a.Audit)
}

func TestNewApp_UnknownMode(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("catalog.mode", "ftp")

	a, err := NewApp(context.Background())
	assert.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "unsupported catalog mode")
}

func TestNewApp_NamedHookModules(t *testing.T) {
	dir := useLocal(t)
	policy := filepath.Join(dir, "scratch.toml")
	require.NoError(t, os.WriteFile(policy, []byte("put = true\nroot_resource = \"scratch\"\n"), 0644))
	viper.Set("hooks.modules", map[string]string{"scratch": policy})

	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"scratch"}, a.Hooks.Names())
	m, err := a.Hooks.Lookup("scratch")
	require.NoError(t, err)
	assert.NotNil(t, m.Put)
	assert.NotNil(t, m.ToRootResource)
}

func TestNewApp_BadHookModule(t *testing.T) {
	dir := useLocal(t)
	viper.Set("hooks.modules", map[string]string{"broken": filepath.Join(dir, "missing.toml")})

	_, err := NewApp(context.Background())
	assert.ErrorContains(t, err, "hook module broken")
}

func TestNewApp_BadRedis(t *testing.T) {
	useLocal(t)
	viper.Set("audit.redis_url", "not-a-url")

	_, err := NewApp(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "audit stream")
}
