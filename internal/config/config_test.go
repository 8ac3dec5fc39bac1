package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Notify.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Notify.BackoffBase())
	assert.Equal(t, time.Second, cfg.Notify.SMSPartDelay())
	assert.Equal(t, 10*time.Second, cfg.Notify.SMSStatusCheckDelay())
	assert.Equal(t, 4, cfg.Worker.NumWorkers)
	assert.Equal(t, 25, cfg.Worker.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval())
	assert.Equal(t, "postgres", cfg.EventLog.Backend)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
notify:
  default_from_email: alerts@example.com
  max_retries: 5
  backoff_base_seconds: 30
worker:
  num_workers: 8
event_log:
  backend: dynamodb
  dynamodb_table: notify-events
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "alerts@example.com", cfg.Notify.DefaultFromEmail)
	assert.Equal(t, 5, cfg.Notify.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Notify.BackoffBase())
	assert.Equal(t, 8, cfg.Worker.NumWorkers)
	assert.Equal(t, "dynamodb", cfg.EventLog.Backend)
	assert.Equal(t, "notify-events", cfg.EventLog.DynamoDBTable)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  url: postgres://file-value\n")

	t.Setenv("DATABASE_URL", "postgres://env-value")
	t.Setenv("NOTIFY_DEBUG_MODE", "true")
	t.Setenv("NOTIFY_DEBUG_PHONE", "+15550001111")
	t.Setenv("AWS_SES_ACCESS_KEY", "AKIA")
	t.Setenv("AWS_SES_SECRET_KEY", "secret")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-value", cfg.Database.URL)
	assert.True(t, cfg.Notify.DebugMode)
	assert.Equal(t, "+15550001111", cfg.Notify.DebugPhone)
	assert.True(t, cfg.SES.Configured())
}

func TestConfiguredHelpers(t *testing.T) {
	assert.False(t, SESConfig{}.Configured())
	assert.True(t, SESConfig{AccessKey: "a", SecretKey: "b"}.Configured())
	assert.False(t, SMSGatewayConfig{AccountID: "acct"}.Configured())
	assert.True(t, SMSGatewayConfig{AccountID: "acct", AuthToken: "tok"}.Configured())
}
