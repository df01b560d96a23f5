package download

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csams/podcast-offline/internal/store"
)

func (env *testEnv) addDownloadedAt(t *testing.T, guid string, published time.Time, size int) {
	t.Helper()
	_, err := env.store.Episodes().Upsert(&store.Episode{
		GUID:        guid,
		PodcastID:   env.podcastID,
		Title:       "Episode " + guid,
		AudioURL:    "https://example.com/" + guid + ".mp3",
		PublishedAt: &published,
	})
	require.NoError(t, err)
	env.completeLocally(t, guid, size, time.Now())
}

func (env *testEnv) setLimits(t *testing.T, storageBytes int64, perPodcast int) {
	t.Helper()
	settings, err := env.store.Settings().Get()
	require.NoError(t, err)
	settings.StorageLimitBytes = storageBytes
	settings.EpisodesPerPodcast = perPodcast
	require.NoError(t, env.store.Settings().Update(settings))
}

func (env *testEnv) downloadedGUIDs(t *testing.T) []string {
	t.Helper()
	eps, err := env.store.Episodes().ListDownloaded()
	require.NoError(t, err)
	guids := make([]string, 0, len(eps))
	for _, ep := range eps {
		guids = append(guids, ep.GUID)
	}
	return guids
}

func TestEnforcerDisabledWhenLimitsZero(t *testing.T) {
	env := newTestEnv(t)
	env.addDownloadedAt(t, "ep1", time.Now(), 1000)

	enforcer := NewEnforcer(env.store.Episodes(), env.store.Settings(), env.coord, nil)
	require.NoError(t, enforcer.Run())

	assert.Len(t, env.downloadedGUIDs(t), 1)
}

func TestEnforcerStorageCapEvictsPlayedOldestFirst(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Four 1000-byte downloads, 4000 bytes total against a 2000-byte cap.
	env.addDownloadedAt(t, "played-old", base, 1000)
	env.addDownloadedAt(t, "played-new", base.AddDate(0, 1, 0), 1000)
	env.addDownloadedAt(t, "unplayed-old", base.AddDate(0, 2, 0), 1000)
	env.addDownloadedAt(t, "unplayed-new", base.AddDate(0, 3, 0), 1000)
	require.NoError(t, env.store.Episodes().MarkPlayed("played-old", true))
	require.NoError(t, env.store.Episodes().MarkPlayed("played-new", true))

	env.setLimits(t, 2000, 0)
	enforcer := NewEnforcer(env.store.Episodes(), env.store.Settings(), env.coord, nil)
	require.NoError(t, enforcer.Run())

	// Both played episodes go first; the unplayed pair survives.
	assert.ElementsMatch(t, []string{"unplayed-old", "unplayed-new"}, env.downloadedGUIDs(t))
}

func TestEnforcerStorageCapStopsAtLimit(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	env.addDownloadedAt(t, "ep1", base, 1000)
	env.addDownloadedAt(t, "ep2", base.AddDate(0, 1, 0), 1000)
	env.addDownloadedAt(t, "ep3", base.AddDate(0, 2, 0), 1000)

	// 3000 used against a 2500 cap: evicting the single oldest episode is
	// enough.
	env.setLimits(t, 2500, 0)
	enforcer := NewEnforcer(env.store.Episodes(), env.store.Settings(), env.coord, nil)
	require.NoError(t, enforcer.Run())

	assert.ElementsMatch(t, []string{"ep2", "ep3"}, env.downloadedGUIDs(t))
}

func TestEnforcerNeverEvictsStarredOrPlaying(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	env.addDownloadedAt(t, "starred", base, 1000)
	env.addDownloadedAt(t, "playing", base.AddDate(0, 1, 0), 1000)
	env.addDownloadedAt(t, "plain", base.AddDate(0, 2, 0), 1000)
	require.NoError(t, env.store.Episodes().SetStarred("starred", true))
	require.NoError(t, env.store.Episodes().MarkPlayed("starred", true))
	require.NoError(t, env.store.Episodes().MarkPlayed("playing", true))

	// Cap of zero bytes would evict everything eligible.
	env.setLimits(t, 1, 0)
	enforcer := NewEnforcer(env.store.Episodes(), env.store.Settings(), env.coord,
		func() string { return "playing" })
	require.NoError(t, enforcer.Run())

	assert.ElementsMatch(t, []string{"starred", "playing"}, env.downloadedGUIDs(t))
}

func TestEnforcerPodcastLimit(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	otherPodcast, err := env.store.Podcasts().Upsert(&store.Podcast{
		FeedURL: "https://example.com/other.xml",
		Title:   "Other",
	})
	require.NoError(t, err)

	env.addDownloadedAt(t, "a1", base, 100)
	env.addDownloadedAt(t, "a2", base.AddDate(0, 1, 0), 100)
	env.addDownloadedAt(t, "a3", base.AddDate(0, 2, 0), 100)

	published := base
	_, err = env.store.Episodes().Upsert(&store.Episode{
		GUID:        "b1",
		PodcastID:   otherPodcast,
		Title:       "Episode b1",
		AudioURL:    "https://example.com/b1.mp3",
		PublishedAt: &published,
	})
	require.NoError(t, err)
	env.completeLocally(t, "b1", 100, time.Now())

	env.setLimits(t, 0, 2)
	enforcer := NewEnforcer(env.store.Episodes(), env.store.Settings(), env.coord, nil)
	require.NoError(t, enforcer.Run())

	// The first podcast is trimmed to its two newest; the other podcast is
	// under the limit and untouched.
	assert.ElementsMatch(t, []string{"a2", "a3", "b1"}, env.downloadedGUIDs(t))
}

func TestEnforcerStorageCapWithZeroRecordedSizes(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Two 1000-byte files whose records claim zero bytes (the stat at
	// completion time can fail). With a 1000-byte cap, evicting the oldest
	// already satisfies the limit; the newer one must survive.
	for i, guid := range []string{"ep1", "ep2"} {
		published := base.AddDate(0, i, 0)
		_, err := env.store.Episodes().Upsert(&store.Episode{
			GUID:        guid,
			PodcastID:   env.podcastID,
			Title:       "Episode " + guid,
			AudioURL:    "https://example.com/" + guid + ".mp3",
			PublishedAt: &published,
		})
		require.NoError(t, err)

		name := MediaFilename(guid)
		require.NoError(t, os.WriteFile(filepath.Join(env.dir, name), make([]byte, 1000), 0644))
		require.NoError(t, env.store.Episodes().CompleteDownload(guid, name, 0, time.Now()))
	}

	env.setLimits(t, 1000, 0)
	enforcer := NewEnforcer(env.store.Episodes(), env.store.Settings(), env.coord, nil)
	require.NoError(t, enforcer.Run())

	assert.Equal(t, []string{"ep2"}, env.downloadedGUIDs(t))
}

func TestEnforcerEvictionKeepsFlags(t *testing.T) {
	env := newTestEnv(t)
	env.addDownloadedAt(t, "ep1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1000)
	require.NoError(t, env.store.Episodes().MarkPlayed("ep1", true))
	require.NoError(t, env.store.Episodes().SetPosition("ep1", 123.4))

	env.setLimits(t, 1, 0)
	enforcer := NewEnforcer(env.store.Episodes(), env.store.Settings(), env.coord, nil)
	require.NoError(t, enforcer.Run())

	ep := env.episode(t, "ep1")
	assert.Nil(t, ep.LocalFile)
	assert.True(t, ep.Played, "eviction removes the file, not listening history")
	assert.InDelta(t, 123.4, ep.Position, 1e-9)
}
