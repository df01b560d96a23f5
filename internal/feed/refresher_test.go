package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csams/podcast-offline/internal/download"
	"github.com/csams/podcast-offline/internal/events"
	"github.com/csams/podcast-offline/internal/netstate"
	"github.com/csams/podcast-offline/internal/store"
)

type refresherTest struct {
	store *store.Store
	net   *netstate.Static
	ref   *Refresher

	feedURL  string
	mediaURL string
}

func newRefresherTest(t *testing.T, items int) *refresherTest {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio"))
	}))
	t.Cleanup(media.Close)

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Fetched Title</title>`)
		for i := 1; i <= items; i++ {
			fmt.Fprintf(w, `<item><title>Episode %d</title><guid>ep-%d</guid><enclosure url="%s/ep%d.mp3" type="audio/mpeg" length="5"/></item>`,
				i, i, media.URL, i)
		}
		fmt.Fprint(w, `</channel></rss>`)
	}))
	t.Cleanup(feedSrv.Close)

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	fetcher := download.NewFetcher(t.TempDir(), "podcast-offline-test/1.0")
	require.NoError(t, fetcher.EnsureDirs())
	coord := download.NewCoordinator(s.Episodes(), fetcher, bus)

	net := netstate.NewStatic(netstate.Wifi)

	return &refresherTest{
		store:    s,
		net:      net,
		ref:      NewRefresher(s, net, coord, "podcast-offline-test/1.0"),
		feedURL:  feedSrv.URL,
		mediaURL: media.URL,
	}
}

func (rt *refresherTest) subscribe(t *testing.T, autoDownload bool) *store.Podcast {
	t.Helper()
	id, err := rt.store.Podcasts().Upsert(&store.Podcast{
		FeedURL:      rt.feedURL,
		Title:        "Old Title",
		AutoDownload: autoDownload,
	})
	require.NoError(t, err)
	p, err := rt.store.Podcasts().Get(id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestRefreshInsertsEpisodesAndUpdatesTitle(t *testing.T) {
	rt := newRefresherTest(t, 2)
	p := rt.subscribe(t, false)

	require.NoError(t, rt.ref.Refresh(context.Background(), p))

	eps, err := rt.store.Episodes().ListByPodcast(p.ID)
	require.NoError(t, err)
	assert.Len(t, eps, 2)

	updated, err := rt.store.Podcasts().Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fetched Title", updated.Title)
	assert.NotNil(t, updated.LastFetched)
}

func TestRefreshIsIdempotent(t *testing.T) {
	rt := newRefresherTest(t, 2)
	p := rt.subscribe(t, false)

	require.NoError(t, rt.ref.Refresh(context.Background(), p))
	require.NoError(t, rt.ref.Refresh(context.Background(), p))

	eps, err := rt.store.Episodes().ListByPodcast(p.ID)
	require.NoError(t, err)
	assert.Len(t, eps, 2)
}

func TestRefreshAutoDownloadHonorsPolicy(t *testing.T) {
	rt := newRefresherTest(t, 1)
	p := rt.subscribe(t, true)

	// The default auto-download preference is wifi-only; on cellular the
	// new episode is inserted but not fetched.
	rt.net.Set(netstate.Cellular)
	require.NoError(t, rt.ref.Refresh(context.Background(), p))

	eps, err := rt.store.Episodes().ListByPodcast(p.ID)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.False(t, eps[0].Downloaded())
	assert.False(t, eps[0].Downloading())
}

func TestRefreshAutoDownloadStartsOnWifi(t *testing.T) {
	rt := newRefresherTest(t, 1)
	p := rt.subscribe(t, true)

	require.NoError(t, rt.ref.Refresh(context.Background(), p))

	// The transfer is started asynchronously for the new episode.
	require.Eventually(t, func() bool {
		eps, err := rt.store.Episodes().ListByPodcast(p.ID)
		if err != nil || len(eps) != 1 {
			return false
		}
		return eps[0].Downloaded()
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRefreshAllTouchesTimestamp(t *testing.T) {
	rt := newRefresherTest(t, 1)
	rt.subscribe(t, false)

	require.NoError(t, rt.ref.RefreshAll(context.Background()))

	settings, err := rt.store.Settings().Get()
	require.NoError(t, err)
	assert.NotNil(t, settings.LastRefreshedAt)
}

func TestRefreshBadFeedStatus(t *testing.T) {
	rt := newRefresherTest(t, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	id, err := rt.store.Podcasts().Upsert(&store.Podcast{FeedURL: srv.URL, Title: "Broken"})
	require.NoError(t, err)
	p, err := rt.store.Podcasts().Get(id)
	require.NoError(t, err)

	assert.Error(t, rt.ref.Refresh(context.Background(), p))
}
