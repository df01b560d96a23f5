package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/csams/podcast-offline/internal/download"
	"github.com/csams/podcast-offline/internal/feed"
	"github.com/csams/podcast-offline/internal/netstate"
	"github.com/csams/podcast-offline/internal/playback"
	"github.com/csams/podcast-offline/internal/store"
)

// Handler exposes the coordination core over HTTP. It stands in for the
// UI-level collaborators the spec keeps out of scope.
type Handler struct {
	episodes  *store.EpisodeRepository
	podcasts  *store.PodcastRepository
	queue     *store.QueueRepository
	settings  *store.SettingsRepository
	coord     *download.Coordinator
	bridge    *playback.Bridge
	refresher *feed.Refresher
	net       *netstate.Static
}

// NewHandler creates the HTTP handler.
func NewHandler(s *store.Store, coord *download.Coordinator, bridge *playback.Bridge, refresher *feed.Refresher, net *netstate.Static) *Handler {
	return &Handler{
		episodes:  s.Episodes(),
		podcasts:  s.Podcasts(),
		queue:     s.Queue(),
		settings:  s.Settings(),
		coord:     coord,
		bridge:    bridge,
		refresher: refresher,
		net:       net,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "network": h.net.Classify().String()})
}

func (h *Handler) GetStats(c *gin.Context) {
	total, err := h.coord.TotalSize()
	if err != nil {
		log.WithError(err).Error("failed to measure downloads")
		c.Status(http.StatusInternalServerError)
		return
	}

	downloaded, err := h.episodes.ListDownloaded()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		TotalBytes:      total,
		DownloadedCount: len(downloaded),
		ActiveTransfers: h.coord.ActiveCount(),
	})
}

func (h *Handler) ListPodcasts(c *gin.Context) {
	podcasts, err := h.podcasts.List()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	resp := make([]PodcastResponse, 0, len(podcasts))
	for _, p := range podcasts {
		resp = append(resp, toPodcastResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListEpisodes(c *gin.Context) {
	episodes, err := h.episodes.ListByPodcast(c.Param("id"))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	resp := make([]EpisodeResponse, 0, len(episodes))
	for _, e := range episodes {
		resp = append(resp, toEpisodeResponse(e))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetEpisode(c *gin.Context) {
	ep, ok := h.loadEpisode(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toEpisodeResponse(ep))
}

// StartDownload evaluates policy for a manual trigger and starts the
// transfer when allowed. NeedsConfirmation maps to 409; the caller retries
// with ?confirmed=true after the user approves.
func (h *Handler) StartDownload(c *gin.Context) {
	ep, ok := h.loadEpisode(c)
	if !ok {
		return
	}

	podcast, err := h.podcasts.Get(ep.PodcastID)
	if err != nil || podcast == nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	settings, err := h.settings.Get()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	decision := download.Check(download.Request{
		Episode:   ep,
		Confirmed: c.Query("confirmed") == "true",
		Override:  podcast.DownloadPreference,
	}, h.net.Classify(), settings)

	switch decision {
	case download.Started:
		if err := h.coord.Download(context.Background(), ep); err != nil {
			log.WithError(err).WithField("guid", ep.GUID).Error("failed to start download")
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusAccepted, DecisionResponse{Decision: decision.String()})
	case download.NeedsConfirmation:
		c.JSON(http.StatusConflict, DecisionResponse{Decision: decision.String()})
	case download.Blocked:
		c.JSON(http.StatusForbidden, DecisionResponse{Decision: decision.String()})
	default:
		// AlreadyDownloaded / AlreadyDownloading are no-ops, not errors.
		c.JSON(http.StatusOK, DecisionResponse{Decision: decision.String()})
	}
}

func (h *Handler) CancelDownload(c *gin.Context) {
	if err := h.coord.Cancel(c.Param("guid")); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteDownload(c *gin.Context) {
	ep, ok := h.loadEpisode(c)
	if !ok {
		return
	}
	if err := h.coord.DeleteDownload(ep); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeletePodcast unsubscribes: downloaded files go first, then the podcast
// row, whose deletion cascades to episodes and queue entries.
func (h *Handler) DeletePodcast(c *gin.Context) {
	podcast, err := h.podcasts.Get(c.Param("id"))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if podcast == nil {
		c.Status(http.StatusNotFound)
		return
	}

	if err := h.coord.DeleteForPodcast(podcast.ID); err != nil {
		log.WithError(err).Error("failed to delete podcast downloads")
		c.Status(http.StatusInternalServerError)
		return
	}
	if err := h.podcasts.Delete(podcast.ID); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeletePodcastDownloads(c *gin.Context) {
	if err := h.coord.DeleteForPodcast(c.Param("id")); err != nil {
		log.WithError(err).Error("bulk delete finished with errors")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteAllDownloads(c *gin.Context) {
	if err := h.coord.DeleteAll(); err != nil {
		log.WithError(err).Error("bulk delete finished with errors")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListQueue(c *gin.Context) {
	entries, err := h.queue.List()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	resp := make([]EpisodeResponse, 0, len(entries))
	for _, entry := range entries {
		ep, err := h.episodes.Get(entry.EpisodeGUID)
		if err != nil || ep == nil {
			continue
		}
		resp = append(resp, toEpisodeResponse(ep))
	}
	c.JSON(http.StatusOK, resp)
}

// Enqueue appends the episode to the queue. Queue-add is an auto-download
// trigger.
func (h *Handler) Enqueue(c *gin.Context) {
	ep, ok := h.loadEpisode(c)
	if !ok {
		return
	}

	if err := h.queue.Add(ep.GUID, time.Now()); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	h.autoDownload(ep)
	c.Status(http.StatusNoContent)
}

func (h *Handler) Dequeue(c *gin.Context) {
	if err := h.queue.Remove(c.Param("guid")); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkPlayed flips the played flag from a menu action and advances the
// queue. Responds with the next queued episode, if any.
func (h *Handler) MarkPlayed(c *gin.Context) {
	ep, ok := h.loadEpisode(c)
	if !ok {
		return
	}

	next, err := h.bridge.MarkPlayed(ep.GUID)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next": next})
}

// MarkUnplayed clears the played flag.
func (h *Handler) MarkUnplayed(c *gin.Context) {
	ep, ok := h.loadEpisode(c)
	if !ok {
		return
	}

	if err := h.bridge.MarkUnplayed(ep.GUID); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// PlaybackFinished is the transport's end-of-episode notification.
func (h *Handler) PlaybackFinished(c *gin.Context) {
	ep, ok := h.loadEpisode(c)
	if !ok {
		return
	}

	next, err := h.bridge.HandleFinished(ep.GUID)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next": next})
}

func (h *Handler) SetPosition(c *gin.Context) {
	ep, ok := h.loadEpisode(c)
	if !ok {
		return
	}

	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Seconds < 0 {
		c.Status(http.StatusBadRequest)
		return
	}

	if err := h.bridge.UpdatePosition(ep.GUID, req.Seconds); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetStar flips the starred flag. Starring is an auto-download trigger.
func (h *Handler) SetStar(c *gin.Context) {
	ep, ok := h.loadEpisode(c)
	if !ok {
		return
	}

	var req StarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if err := h.episodes.SetStarred(ep.GUID, req.Starred); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	if req.Starred {
		h.autoDownload(ep)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Refresh(c *gin.Context) {
	go func() {
		if err := h.refresher.RefreshAll(context.Background()); err != nil {
			log.WithError(err).Warn("refresh failed")
		}
	}()
	c.Status(http.StatusAccepted)
}

// SetNetwork feeds a connectivity classification in from outside; the
// daemon has no radio of its own to probe.
func (h *Handler) SetNetwork(c *gin.Context) {
	var req NetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	conn, ok := netstate.ParseConnectivity(req.State)
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}

	h.net.Set(conn)
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.settings.Get()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, SettingsResponse{
		StorageLimitBytes:      settings.StorageLimitBytes,
		EpisodesPerPodcast:     settings.EpisodesPerPodcast,
		DownloadPreference:     string(settings.DownloadPreference),
		AutoDownloadPreference: string(settings.AutoDownloadPreference),
		LastRefreshedAt:        settings.LastRefreshedAt,
	})
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req SettingsResponse
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	pref := store.NetworkPreference(req.DownloadPreference)
	autoPref := store.NetworkPreference(req.AutoDownloadPreference)
	if !pref.Valid() || !autoPref.Valid() || req.StorageLimitBytes < 0 || req.EpisodesPerPodcast < 0 {
		c.Status(http.StatusBadRequest)
		return
	}

	current, err := h.settings.Get()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	current.StorageLimitBytes = req.StorageLimitBytes
	current.EpisodesPerPodcast = req.EpisodesPerPodcast
	current.DownloadPreference = pref
	current.AutoDownloadPreference = autoPref

	if err := h.settings.Update(current); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// autoDownload runs the automatic-trigger policy path for an episode and
// starts the transfer when allowed. Failures never surface to the caller;
// a blocked auto-download is not an error.
func (h *Handler) autoDownload(ep *store.Episode) {
	podcast, err := h.podcasts.Get(ep.PodcastID)
	if err != nil || podcast == nil {
		return
	}
	settings, err := h.settings.Get()
	if err != nil {
		return
	}

	decision := download.Check(download.Request{
		Episode:  ep,
		Auto:     true,
		Override: podcast.DownloadPreference,
	}, h.net.Classify(), settings)

	if decision != download.Started {
		return
	}
	if err := h.coord.Download(context.Background(), ep); err != nil {
		log.WithError(err).WithField("guid", ep.GUID).Warn("auto-download failed to start")
	}
}

func (h *Handler) loadEpisode(c *gin.Context) (*store.Episode, bool) {
	ep, err := h.episodes.Get(c.Param("guid"))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return nil, false
	}
	if ep == nil {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	return ep, true
}
