package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osamaflash/catalog/internal/infrastructure/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func useDataDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "file")
	t.Setenv("STORE_DATA_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestStatsOnFreshDataDir(t *testing.T) {
	dir := useDataDir(t)

	out, err := run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Visitors:        0")
	assert.Contains(t, out, "Items:           0")

	for _, name := range []string{"items.txt", "stats.txt", "config.txt"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestSetPassword(t *testing.T) {
	dir := useDataDir(t)

	_, err := run(t, "admin", "set-password", "--password", "hunter2")
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(dir, "config.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"adminPass": "hunter2"`)

	_, err = run(t, "admin", "set-password", "--password", "hunter2", "--hash")
	require.NoError(t, err)

	body, err = os.ReadFile(filepath.Join(dir, "config.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "hunter2")
	assert.Contains(t, string(body), `"adminPass": "$2`)

	_, err = run(t, "admin", "set-password")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "catalog "+Version))
}

func TestBadConfigFile(t *testing.T) {
	useDataDir(t)

	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "stats")
	assert.Error(t, err)
}

func TestOpenBackendRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := &config.Config{
		Store: config.StoreConfig{Driver: config.StoreDriverRedis, KeyPrefix: "test:"},
		Redis: config.RedisConfig{Host: mr.Host(), Port: port},
	}

	backend, err := openBackend(context.Background(), cfg, afero.NewMemMapFs())
	require.NoError(t, err)
	defer backend.Close()
	assert.Equal(t, "redis", backend.Name())
}

func TestOpenBackendRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	cfg := &config.Config{
		Store: config.StoreConfig{Driver: config.StoreDriverRedis},
		Redis: config.RedisConfig{Host: "127.0.0.1", Port: port},
	}

	_, err = openBackend(context.Background(), cfg, afero.NewMemMapFs())
	assert.Error(t, err)
}

func TestOpenBackendFileAndUnknown(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreDriverFile, DataDir: "/data"}}

	backend, err := openBackend(context.Background(), cfg, afero.NewMemMapFs())
	require.NoError(t, err)
	assert.Equal(t, "file", backend.Name())

	cfg.Store.Driver = "s3"
	_, err = openBackend(context.Background(), cfg, afero.NewMemMapFs())
	assert.Error(t, err)
}
