package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "data/tubeshelf.db", cfg.Database.Path)
	assert.Equal(t, "yt-dlp", cfg.Download.ToolPath)
	assert.Equal(t, "ffmpeg", cfg.Download.FFmpegPath)
	assert.Equal(t, 3, cfg.Download.MaxConcurrent)
	assert.Equal(t, 300, cfg.Download.ErrorMaxLen)
	assert.Equal(t, 1440, cfg.Auth.TokenTTLMinutes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Storage.Bucket)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TUBESHELF_DOWNLOAD_MAXCONCURRENT", "5")
	t.Setenv("TUBESHELF_DOWNLOAD_TOOLPATH", "/opt/bin/yt-dlp")
	t.Setenv("TUBESHELF_AUTH_JWTSECRET", "secret")
	t.Setenv("TUBESHELF_STORAGE_BUCKET", "media")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Download.MaxConcurrent)
	assert.Equal(t, "/opt/bin/yt-dlp", cfg.Download.ToolPath)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "media", cfg.Storage.Bucket)
}

func TestLoad_RejectsNonPositiveConcurrency(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TUBESHELF_DOWNLOAD_MAXCONCURRENT", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// Register the keys so t.Setenv restores them after the loader sets them.
	t.Setenv("TUBESHELF_LOG_LEVEL", "")
	t.Setenv("TUBESHELF_SERVER_ADDR", "127.0.0.1:9000")
	require.NoError(t, os.Unsetenv("TUBESHELF_LOG_LEVEL"))

	env := "# comment\nTUBESHELF_LOG_LEVEL=\"debug\"\nTUBESHELF_SERVER_ADDR=0.0.0.0:1\ninvalid line\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	// Real environment variables win over .env entries.
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}
