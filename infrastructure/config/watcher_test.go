package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	domaincfg "github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeRulesFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRulesAppliesOverlay(t *testing.T) {
	path := writeRulesFile(t, t.TempDir(), `
hierarchy:
  max_nesting_depth: 4
  default_root_name: Atelier
features:
  enable_auto_repair: false
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)

	merged := rules.Apply(domaincfg.DefaultDomainConfig())
	assert.Equal(t, 4, merged.MaxNestingDepth)
	assert.Equal(t, "Atelier", merged.DefaultRootName)
	assert.False(t, merged.EnableAutoRepair)

	// Everything the file does not name keeps the baseline value
	base := domaincfg.DefaultDomainConfig()
	assert.Equal(t, base.MaxChildrenPerContainer, merged.MaxChildrenPerContainer)
	assert.Equal(t, base.MaxNodesPerGraph, merged.MaxNodesPerGraph)
	assert.Equal(t, base.EnableLegacyMigration, merged.EnableLegacyMigration)
}

func TestLoadRulesRejectsMalformedFile(t *testing.T) {
	path := writeRulesFile(t, t.TempDir(), "hierarchy: [not a mapping")

	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestNewRulesWatcherRequiresReadableFile(t *testing.T) {
	_, err := NewRulesWatcher(filepath.Join(t.TempDir(), "absent.yaml"), "development", zap.NewNop())
	assert.Error(t, err)
}

func TestRulesWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, "hierarchy:\n  max_nesting_depth: 6\n")

	watcher, err := NewRulesWatcher(path, "development", zap.NewNop())
	require.NoError(t, err)
	defer watcher.Stop()

	assert.Equal(t, 6, watcher.Current().MaxNestingDepth)

	notified := make(chan *domaincfg.DomainConfig, 4)
	watcher.OnChange(func(cfg *domaincfg.DomainConfig) { notified <- cfg })
	watcher.Start()

	require.NoError(t, os.WriteFile(path, []byte("hierarchy:\n  max_nesting_depth: 9\n"), 0o644))

	require.Eventually(t, func() bool {
		return watcher.Current().MaxNestingDepth == 9
	}, 3*time.Second, 20*time.Millisecond)

	select {
	case cfg := <-notified:
		assert.Equal(t, 9, cfg.MaxNestingDepth)
	case <-time.After(time.Second):
		t.Fatal("no change notification received")
	}
}

func TestRulesWatcherKeepsCurrentOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, "hierarchy:\n  max_nesting_depth: 6\n")

	watcher, err := NewRulesWatcher(path, "development", zap.NewNop())
	require.NoError(t, err)
	defer watcher.Stop()
	watcher.Start()

	// A file whose merged result fails validation must be ignored
	bad := "naming:\n  min_name_length: 50\n  max_name_length: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	assert.Never(t, func() bool {
		return watcher.Current().MaxNestingDepth != 6 || watcher.Current().MaxNameLength == 2
	}, 400*time.Millisecond, 50*time.Millisecond)
}
