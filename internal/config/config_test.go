package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_missingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	require.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoad_fileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anydb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dir: /data/anydb\ndefault_codec: zstd\nstamp_retention: 3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/anydb", cfg.Dir)
	require.Equal(t, "zstd", cfg.DefaultCodec)
	require.Equal(t, 3, cfg.StampRetention)
	require.Equal(t, 1024, cfg.BlockSize)
}

func TestValidate_rejectsUnknownCodec(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.DefaultCodec = "brotli"
	require.Error(t, Validate(cfg))
}

func TestValidate_rejectsZeroStampRetention(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.StampRetention = 0
	require.Error(t, Validate(cfg))
}
