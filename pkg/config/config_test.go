package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TASKFLOW_TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TASKFLOW_TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetEnvTypedHelpers(t *testing.T) {
	t.Setenv("TASKFLOW_TEST_BOOL", "1")
	t.Setenv("TASKFLOW_TEST_INT", "not-a-number")
	t.Setenv("TASKFLOW_TEST_DURATION", "90s")
	t.Setenv("TASKFLOW_TEST_LIST", " a, b ,,c ")

	assert.True(t, getEnvBool("TASKFLOW_TEST_BOOL", false))
	assert.Equal(t, 7, getEnvInt("TASKFLOW_TEST_INT", 7), "invalid ints fall back to the default")
	assert.Equal(t, 90*time.Second, getEnvDuration("TASKFLOW_TEST_DURATION", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TASKFLOW_TEST_LIST", nil))
}

func TestLoad_DefaultsRequireSecret(t *testing.T) {
	t.Setenv("TASKFLOW_JWT_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
database:
  driver: sqlite3
  url: "file:taskflow.db"
auth:
  jwt_secret: "`+testSecret+`"
  lockout_duration: 30m
observability:
  log_level: debug
`), 0644))

	t.Setenv("TASKFLOW_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9191", cfg.Server.Port, "env overrides the file")
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Auth.LockoutDuration)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.Auth.IdentityCacheTTL, "unset keys keep their defaults")
	assert.Equal(t, 5, cfg.Auth.MaxFailedLogins)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.JWTSecret = testSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with secret", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "bucket"},
		{"redis cache without url", func(c *Config) { c.Auth.IdentityCacheBackend = "redis" }, "redis url"},
		{"zero lockout", func(c *Config) { c.Auth.LockoutDuration = 0 }, "lockout duration"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "otel endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskflow.yaml")
	write := func(level string) {
		require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: \""+testSecret+"\"\nobservability:\n  log_level: "+level+"\n"), 0644))
	}
	write("info")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	go Watch(ctx, path, func(cfg *Config) { changes <- cfg }, nil)

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	write("debug")

	select {
	case cfg := <-changes:
		assert.Equal(t, "debug", cfg.Observability.LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload after the file changed")
	}
}
