package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/orders", cfg.Paths.OrdersDir)
	assert.Equal(t, "data/results", cfg.Paths.ResultsDir)
	assert.Equal(t, "data/ocr", cfg.Paths.OCRDir)
	assert.Equal(t, "data/crm_ready", cfg.Paths.CRMDir)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, UpdatePolicyMerge, cfg.Portal.UpdatePolicy)
	assert.False(t, cfg.Portal.StrictProviderSelection)
	assert.Equal(t, 300, cfg.Portal.ProcessTimeoutSecs)
	assert.Equal(t, "local", cfg.OCR.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500, cfg.Retry.InitialBackoffMs)
	assert.InDelta(t, 0.25, cfg.Retry.JitterFraction, 0.001)
	assert.Equal(t, 480, cfg.Auth.TokenTTLMins)
	assert.Equal(t, "Referral_Order__c", cfg.Salesforce.Object)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
paths:
  orders_dir: /srv/referrals/orders
  results_dir: /srv/referrals/results
server:
  port: 8081
log:
  level: debug
  format: console
portal:
  update_policy: replace
  strict_provider_selection: true
auth:
  users:
    - id: u1
      email: ops@clarity-dx.com
      name: Ops User
      role: admin
      salt: abc
      password_sha256: deadbeef
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/referrals/orders", cfg.Paths.OrdersDir)
	assert.Equal(t, "/srv/referrals/results", cfg.Paths.ResultsDir)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, UpdatePolicyReplace, cfg.Portal.UpdatePolicy)
	assert.True(t, cfg.Portal.StrictProviderSelection)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "ops@clarity-dx.com", cfg.Auth.Users[0].Email)
	assert.Equal(t, "admin", cfg.Auth.Users[0].Role)

	// Untouched sections keep their defaults.
	assert.Equal(t, "data/crm_ready", cfg.Paths.CRMDir)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
