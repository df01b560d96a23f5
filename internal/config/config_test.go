package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	opts, err := Load(nil)
	require.NoError(t, err)
	require.NotNil(t, opts)

	assert.Equal(t, "./data", opts.DataDir)
	assert.Equal(t, filepath.Join("./data", "downloads"), opts.DownloadsDir)
	assert.Equal(t, filepath.Join("./data", "podcast.db"), opts.DBPath)
	assert.Equal(t, "8080", opts.Port)
	assert.Equal(t, "30m", opts.RefreshEvery)
	assert.Equal(t, "1h", opts.RetainEvery)
	assert.False(t, opts.Debug)
}

func TestLoadDerivedPathsFollowDataDir(t *testing.T) {
	opts, err := Load([]string{"--data-dir", "/var/lib/podcast"})
	require.NoError(t, err)
	require.NotNil(t, opts)

	assert.Equal(t, "/var/lib/podcast/downloads", opts.DownloadsDir)
	assert.Equal(t, "/var/lib/podcast/podcast.db", opts.DBPath)
}

func TestLoadExplicitPathsWin(t *testing.T) {
	opts, err := Load([]string{
		"--data-dir", "/var/lib/podcast",
		"--downloads-dir", "/mnt/media",
		"--db-path", "/tmp/p.db",
		"--debug",
	})
	require.NoError(t, err)
	require.NotNil(t, opts)

	assert.Equal(t, "/mnt/media", opts.DownloadsDir)
	assert.Equal(t, "/tmp/p.db", opts.DBPath)
	assert.True(t, opts.Debug)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestLoadSubscriptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
folders:
  - name: News
    color: blue
    auto_download: true
podcasts:
  - url: https://example.com/a.xml
    title: Show A
    folder: News
    preference: wifiOnly
  - url: https://example.com/b.xml
    auto_download: true
`), 0644))

	subs, err := LoadSubscriptions(path)
	require.NoError(t, err)

	require.Len(t, subs.Folders, 1)
	assert.Equal(t, "News", subs.Folders[0].Name)
	assert.True(t, subs.Folders[0].AutoDownload)

	require.Len(t, subs.Podcasts, 2)
	assert.Equal(t, "Show A", subs.Podcasts[0].Title)
	assert.Equal(t, "News", subs.Podcasts[0].Folder)
	assert.Equal(t, "wifiOnly", subs.Podcasts[0].Preference)
	assert.True(t, subs.Podcasts[1].AutoDownload)
}

func TestLoadSubscriptionsRejectsMissingURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("podcasts:\n  - title: nameless\n"), 0644))

	_, err := LoadSubscriptions(path)
	assert.Error(t, err)
}
