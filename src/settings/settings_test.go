package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odscore.yaml")
	content := `
data_dir: /data/measurements
debug: true
extended_compatibility: true
max_relation_hops: 5
journal_dir: /var/journal
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	args, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "/data/measurements", args.DataDir)
	require.True(t, args.Debug)
	require.True(t, args.ExtendedCompatibility)
	require.Equal(t, 5, args.MaxRelationHops)
	require.Equal(t, "/var/journal", args.JournalDir)
	require.Equal(t, path, args.ConfigFile)

	// defaults fill the rest
	require.Equal(t, DefaultBaseModelVersion, args.BaseModelVersion)
	require.Equal(t, DefaultMaxMappedFiles, args.MaxMappedFiles)
}

func TestLoadFromPathErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromPath(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("max_relation_hops: [1, 2"), 0644))
	_, err = LoadFromPath(bad)
	require.Error(t, err)

	negative := filepath.Join(dir, "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("max_relation_hops: -2"), 0644))
	_, err = LoadFromPath(negative)
	require.ErrorContains(t, err, "max_relation_hops")
}

func TestGetSettingsDefaults(t *testing.T) {
	args := GetSettings()
	require.Same(t, args, GetSettings())
	require.Equal(t, DefaultMaxRelationHops, args.MaxRelationHops)
	require.NoError(t, args.Validate())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&Arguments{Debug: true})
	require.NoError(t, err)
	logger.Debugf("debug logger works")

	dir := t.TempDir()
	logger, err = NewLogger(&Arguments{LogDir: dir})
	require.NoError(t, err)
	logger.Infof("file logger works")
	_ = logger.Sync()
	require.FileExists(t, filepath.Join(dir, "odscore.log"))
}
