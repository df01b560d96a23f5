package api

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// NewServer builds the gin engine with all routes configured.
func NewServer(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/health", h.GetHealth)
	r.GET("/stats", h.GetStats)

	r.GET("/podcasts", h.ListPodcasts)
	r.DELETE("/podcasts/:id", h.DeletePodcast)
	r.GET("/podcasts/:id/episodes", h.ListEpisodes)
	r.DELETE("/podcasts/:id/downloads", h.DeletePodcastDownloads)

	r.GET("/episodes/:guid", h.GetEpisode)
	r.POST("/episodes/:guid/download", h.StartDownload)
	r.POST("/episodes/:guid/cancel", h.CancelDownload)
	r.DELETE("/episodes/:guid/download", h.DeleteDownload)
	r.POST("/episodes/:guid/played", h.MarkPlayed)
	r.DELETE("/episodes/:guid/played", h.MarkUnplayed)
	r.POST("/episodes/:guid/finished", h.PlaybackFinished)
	r.PUT("/episodes/:guid/position", h.SetPosition)
	r.PUT("/episodes/:guid/star", h.SetStar)

	r.DELETE("/downloads", h.DeleteAllDownloads)

	r.GET("/queue", h.ListQueue)
	r.POST("/queue/:guid", h.Enqueue)
	r.DELETE("/queue/:guid", h.Dequeue)

	r.POST("/refresh", h.Refresh)
	r.PUT("/network", h.SetNetwork)

	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(started),
		}).Debug("request")
	}
}
