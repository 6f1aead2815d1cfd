package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"Image", "Font", "Media"}, cfg.Browser.BlockedResourceTypes)
	assert.Equal(t, 6, cfg.OTP.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.OTP.MaxDelay)
	assert.Equal(t, "text", cfg.Portal.BodyFormat)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NOTICESYNC_PORT", "9191")
	t.Setenv("NOTICESYNC_OTP_MAX_ATTEMPTS", "9")
	t.Setenv("NOTICESYNC_OTP_INITIAL_DELAY", "250ms")
	t.Setenv("NOTICESYNC_BLOCKED_RESOURCES", "Image, Stylesheet ,")
	t.Setenv("NOTICESYNC_HEADLESS", "false")
	t.Setenv("NOTICESYNC_RUN_RECORDS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 9, cfg.OTP.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.OTP.InitialDelay)
	assert.Equal(t, []string{"Image", "Stylesheet"}, cfg.Browser.BlockedResourceTypes)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 500, cfg.Runs.MaxEntries, "unparseable values fall back to the default")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown mode", func(c *Config) { c.Server.Mode = "verbose" }},
		{"unknown body format", func(c *Config) { c.Portal.BodyFormat = "pdf" }},
		{"zero otp attempts", func(c *Config) { c.OTP.MaxAttempts = 0 }},
		{"zero concurrent runs", func(c *Config) { c.Runs.MaxConcurrent = 0 }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown time zone", func(c *Config) { c.Portal.TimeZone = "Nowhere/Invalid" }},
		{"empty time zone", func(c *Config) { c.Portal.TimeZone = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateEndpoints(t *testing.T) {
	cfg := Load()
	cfg.Portal.ListingURL = "https://portal.example.com/notices"
	cfg.OTP.URL = "https://otp.example.com/otp"
	cfg.Delivery.URL = "https://api.example.com/notices/webhook"
	require.NoError(t, cfg.ValidateEndpoints())

	missing := *cfg
	missing.Delivery.URL = ""
	assert.Error(t, missing.ValidateEndpoints())

	malformed := *cfg
	malformed.OTP.URL = "not a url"
	assert.Error(t, malformed.ValidateEndpoints())

	noListing := *cfg
	noListing.Portal.ListingURL = ""
	assert.Error(t, noListing.ValidateEndpoints())
}

func TestPortalLocation(t *testing.T) {
	p := PortalConfig{TimeZone: "Asia/Kolkata"}
	_, offset := time.Date(2025, 7, 10, 0, 0, 0, 0, p.Location()).Zone()
	assert.Equal(t, 5*3600+1800, offset)

	bad := PortalConfig{TimeZone: "Nowhere/Invalid"}
	assert.Equal(t, time.UTC, bad.Location(), "no guessed offset for an unknown zone")
}

type fileCreds struct {
	RollNo          string            `json:"rollNo"`
	Password        string            `json:"password"`
	SecurityAnswers map[string]string `json:"securityAnswers"`
}

func TestReadFile_LocalOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "creds.json5")
	require.NoError(t, os.WriteFile(base, []byte(`{
		// committed defaults
		rollNo: "23XX10012",
		password: "placeholder",
		securityAnswers: {"q1": "a1", "q2": "a2", "q3": "a3"},
	}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "creds.local.json5"), []byte(`{password: "real"}`), 0o600))

	got, err := ReadFile[fileCreds](base)
	require.NoError(t, err)
	assert.Equal(t, "23XX10012", got.RollNo)
	assert.Equal(t, "real", got.Password)
	assert.Len(t, got.SecurityAnswers, 3)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile[fileCreds](filepath.Join(t.TempDir(), "absent.json5"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, filepath.Join("etc", "creds.local.json5"), localPath(filepath.Join("etc", "creds.json5")))
	assert.Equal(t, "creds.local", localPath("creds"))
}
