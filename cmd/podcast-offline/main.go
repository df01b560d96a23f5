package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/csams/podcast-offline/internal/api"
	"github.com/csams/podcast-offline/internal/config"
	"github.com/csams/podcast-offline/internal/download"
	"github.com/csams/podcast-offline/internal/events"
	"github.com/csams/podcast-offline/internal/feed"
	"github.com/csams/podcast-offline/internal/netstate"
	"github.com/csams/podcast-offline/internal/playback"
	"github.com/csams/podcast-offline/internal/store"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
	})

	opts, err := config.Load(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("failed to parse options")
	}
	if opts == nil {
		return // help was shown
	}

	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}

	log.WithField("version", config.Version).Info("starting podcast-offline")

	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		log.WithError(err).Fatal("failed to create data directory")
	}

	st, err := store.Open(opts.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()

	if opts.Subscriptions != "" {
		if err := importSubscriptions(st, opts.Subscriptions); err != nil {
			log.WithError(err).Fatal("failed to import subscriptions")
		}
	}

	bus := events.NewBus()
	defer bus.Close()

	fetcher := download.NewFetcher(opts.DownloadsDir, opts.UserAgent)
	if err := fetcher.EnsureDirs(); err != nil {
		log.WithError(err).Fatal("failed to create downloads directory")
	}

	coord := download.NewCoordinator(st.Episodes(), fetcher, bus)

	// Nothing trusts download state until the store and filesystem agree.
	reconciler := download.NewReconciler(st.Episodes(), coord, opts.DownloadsDir)
	if err := reconciler.Run(); err != nil {
		log.WithError(err).Fatal("startup reconciliation failed")
	}

	bridge := playback.NewBridge(st.Episodes(), st.Queue(), bus)
	enforcer := download.NewEnforcer(st.Episodes(), st.Settings(), coord, bridge.Playing)

	coord.OnComplete(func(guid string) {
		if err := enforcer.Run(); err != nil {
			log.WithError(err).Warn("retention pass failed")
		}
	})

	// The daemon has no radio to probe; assume an unmetered link until a
	// collaborator reports otherwise over the API.
	net := netstate.NewStatic(netstate.Wifi)

	refresher := feed.NewRefresher(st, net, coord, opts.UserAgent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+opts.RefreshEvery, func() {
		if err := refresher.RefreshAll(ctx); err != nil {
			log.WithError(err).Warn("scheduled refresh failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("invalid refresh interval")
	}
	if _, err := c.AddFunc("@every "+opts.RetainEvery, func() {
		if err := enforcer.Run(); err != nil {
			log.WithError(err).Warn("scheduled retention pass failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("invalid retention interval")
	}
	c.Start()
	defer c.Stop()

	handler := api.NewHandler(st, coord, bridge, refresher, net)
	srv := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      api.NewServer(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		select {
		case sig := <-stop:
			log.WithField("signal", sig.String()).Info("shutting down")
		case <-ctx.Done():
		}

		coord.Shutdown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.WithError(err).Fatal("terminated abnormally")
	}

	log.Info("stopped")
}

// importSubscriptions loads the yaml subscriptions file into the store.
// Safe to run on every launch: podcasts are keyed by feed URL, folders by
// name.
func importSubscriptions(st *store.Store, path string) error {
	subs, err := config.LoadSubscriptions(path)
	if err != nil {
		return err
	}

	folderIDs := make(map[string]string)
	for _, f := range subs.Folders {
		id, err := st.Folders().Upsert(&store.Folder{
			Name:         f.Name,
			Color:        f.Color,
			AutoDownload: f.AutoDownload,
		})
		if err != nil {
			return err
		}
		folderIDs[f.Name] = id
	}

	for _, p := range subs.Podcasts {
		podcast := &store.Podcast{
			FeedURL:      p.URL,
			Title:        p.Title,
			AutoDownload: p.AutoDownload,
		}
		if p.Folder != "" {
			id, ok := folderIDs[p.Folder]
			if !ok {
				log.WithFields(log.Fields{"podcast": p.URL, "folder": p.Folder}).
					Warn("subscriptions file references unknown folder")
			} else {
				podcast.FolderID = &id
			}
		}
		if p.Preference != "" {
			pref := store.NetworkPreference(p.Preference)
			if !pref.Valid() {
				log.WithFields(log.Fields{"podcast": p.URL, "preference": p.Preference}).
					Warn("subscriptions file has invalid preference")
			} else {
				podcast.DownloadPreference = &pref
			}
		}

		if _, err := st.Podcasts().Upsert(podcast); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"podcasts": len(subs.Podcasts),
		"folders":  len(subs.Folders),
	}).Info("subscriptions imported")
	return nil
}
