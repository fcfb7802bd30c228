package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_File(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
catalog:
  zone: zoneA
  user: alice
database:
  driver: postgres
watch:
  debounce: 1s
`), 0644))

	used, err := Load(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, cfgFile, used)

	assert.Equal(t, "zoneA", viper.GetString("catalog.zone"))
	assert.Equal(t, "postgres", viper.GetString("database.driver"))
	assert.Equal(t, time.Second, viper.GetDuration("watch.debounce"))

	// 未写在文件里的键回落到默认值
	assert.Equal(t, "local", viper.GetString("catalog.mode"))
	assert.Equal(t, 4, viper.GetInt("watch.workers"))
}

func TestLoad_Env(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("CATSYNC_CATALOG_USER", "bob")
	t.Setenv("CATSYNC_LOG_LEVEL", "debug")

	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("catalog:\n  user: alice\n"), 0644))

	_, err := Load(cfgFile)
	require.NoError(t, err)

	// 环境变量优先于配置文件
	assert.Equal(t, "bob", viper.GetString("catalog.user"))
	assert.Equal(t, "debug", viper.GetString("log.level"))
}

func TestLoad_BadFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("catalog: [unclosed"), 0644))

	_, err := Load(cfgFile)
	assert.Error(t, err)
}
