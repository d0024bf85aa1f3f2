package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreDriverFile, cfg.Store.Driver)
	assert.Equal(t, "./material", cfg.Store.DataDir)
	assert.Equal(t, "Osama Flash", cfg.Site.Title)
	assert.Contains(t, cfg.Site.AboutContent, "About Osama")
	assert.Equal(t, 12*time.Hour, cfg.Security.TokenExpiresIn)
	assert.False(t, cfg.Security.RequireAdminToken)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("SITE_TITLE", "Downloads")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, StoreDriverRedis, cfg.Store.Driver)
	assert.Equal(t, "Downloads", cfg.Site.Title)
	assert.Equal(t, 30*time.Second, cfg.Security.RateLimitWindow)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := "store:\n  data_dir: /srv/material\nsite:\n  title: From File\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/material", cfg.Store.DataDir)
	assert.Equal(t, "From File", cfg.Site.Title)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "sqlite"}},
		{name: "port out of range", env: map[string]string{"SERVER_PORT": "70000"}},
		{name: "token required without secret", env: map[string]string{"REQUIRE_ADMIN_TOKEN": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestAddresses(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.GetAddr())

	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.GetDSN())
}
