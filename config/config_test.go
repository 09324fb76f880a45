package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	req.NoError(err)
	req.Equal(":3002", cfg.ListenAddr)
	req.Equal("info", cfg.LogLevel)
	req.Equal("memory", cfg.StorageType)
	req.Equal(10*time.Second, cfg.StoreTimeout)
	req.Equal([]string{"http://localhost:3000"}, cfg.AllowedOrigins)
	req.Equal(1048576, cfg.MaxContentLength)
}

func TestLoad_FromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_TYPE", "sqlite")
	t.Setenv("DATA_SOURCE_NAME", "/tmp/notes.db")
	t.Setenv("STORE_TIMEOUT", "250ms")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000|https://notes.example.com")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("sqlite", cfg.StorageType)
	req.Equal("/tmp/notes.db", cfg.DataSourceName)
	req.Equal(250*time.Millisecond, cfg.StoreTimeout)
	req.Equal([]string{"http://localhost:3000", "https://notes.example.com"}, cfg.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	base := Config{LogLevel: "info", StorageType: "memory", StoreTimeout: time.Second}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"s3 without bucket", func(c *Config) { c.StorageType = "s3" }, true},
		{"s3 with bucket", func(c *Config) { c.StorageType = "s3"; c.S3BucketName = "notes" }, false},
		{"unknown storage", func(c *Config) { c.StorageType = "mongo" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"zero timeout", func(c *Config) { c.StoreTimeout = 0 }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllowOrigin(t *testing.T) {
	cfg := Config{AllowedOrigins: []string{"https://notes.example.com"}}

	testCases := []struct {
		origin string
		want   bool
	}{
		{"https://notes.example.com", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1", true},
		{"http://[::1]:3000", true},
		{"https://evil.example.com", false},
		{"ftp://localhost", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(tc.origin, func(t *testing.T) {
			require.Equal(t, tc.want, cfg.AllowOrigin(tc.origin))
		})
	}

	require.True(t, LoopbackOrigin.MatchString("http://localhost:3000"))
	require.False(t, LoopbackOrigin.MatchString("http://localhost.evil.com"))
}
