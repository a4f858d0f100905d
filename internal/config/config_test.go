package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolated(t *testing.T) Options {
	t.Helper()
	return Options{SearchPaths: []string{t.TempDir()}}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(isolated(t))
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "https://neo.vpbank.com.vn", cfg.VPBank.BaseURL)
	assert.Equal(t, 15*time.Minute, cfg.VPBank.TokenTTL)
	assert.Equal(t, 200, cfg.VPBank.PageSize)
	assert.Equal(t, time.Second, cfg.ACB.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.ACB.PageTimeout)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 100, cfg.Webhook.BatchSize)
	assert.Equal(t, "json", cfg.Captcha.Mode)
	assert.Equal(t, 60*time.Millisecond, cfg.Facebook.KeyDelay)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".bank-sync", "accounts.json"), cfg.Store.Accounts)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".bank-sync.yaml"), []byte(`
acb:
  page_timeout: 30s
webhook:
  url: https://hooks.example.test/bank
`), 0o644))

	cfg, err := Load(Options{SearchPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ACB.PageTimeout)
	assert.Equal(t, time.Second, cfg.ACB.PollInterval, "unset keys keep their defaults")
	assert.Equal(t, "https://hooks.example.test/bank", cfg.Webhook.URL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("webhook:\n  url: https://from-file.test\n"), 0o644))
	t.Setenv("BANKSYNC_WEBHOOK_URL", "https://from-env.test")
	t.Setenv("BANKSYNC_BROWSER_HEADLESS", "false")

	cfg, err := Load(Options{File: file})
	require.NoError(t, err)

	assert.Equal(t, "https://from-env.test", cfg.Webhook.URL)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BANKSYNC_CAPTCHA_URL=https://captcha.test/solve\n"), 0o644))
	// godotenv sets variables for the whole process; restore afterwards.
	t.Setenv("BANKSYNC_CAPTCHA_URL", "")
	require.NoError(t, os.Unsetenv("BANKSYNC_CAPTCHA_URL"))

	opts := isolated(t)
	opts.EnvFiles = []string{envFile, filepath.Join(t.TempDir(), "missing.env")}
	cfg, err := Load(opts)
	require.NoError(t, err)

	assert.Equal(t, "https://captcha.test/solve", cfg.Captcha.URL)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("BANKSYNC_CAPTCHA_MODE", "carrier-pigeon")

	_, err := Load(isolated(t))
	assert.ErrorContains(t, err, "captcha.mode")
}

func TestLocation(t *testing.T) {
	tests := []struct {
		tz         string
		wantOffset int
		wantErr    bool
	}{
		{tz: "", wantOffset: 7 * 3600},
		{tz: "ICT", wantOffset: 7 * 3600},
		{tz: "Asia/Ho_Chi_Minh", wantOffset: 7 * 3600},
		{tz: "Mars/Olympus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.tz, func(t *testing.T) {
			cfg := &Config{Timezone: tt.tz}
			loc, err := cfg.Location()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_, offset := time.Date(2025, 10, 11, 12, 0, 0, 0, loc).Zone()
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x.json"), expandHome("~/x.json"))
	assert.Equal(t, "/abs/x.json", expandHome("/abs/x.json"))
	assert.Equal(t, "rel/x.json", expandHome("rel/x.json"))
}
