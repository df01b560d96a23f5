package api

import (
	"time"

	"github.com/csams/podcast-offline/internal/store"
)

// EpisodeResponse is the wire shape of an episode record.
type EpisodeResponse struct {
	GUID             string     `json:"guid"`
	PodcastID        string     `json:"podcastId"`
	Title            string     `json:"title"`
	AudioURL         string     `json:"audioUrl"`
	DurationSeconds  *int64     `json:"durationSeconds,omitempty"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
	Position         float64    `json:"position"`
	Played           bool       `json:"played"`
	Starred          bool       `json:"starred"`
	LocalFile        *string    `json:"localFile,omitempty"`
	DownloadProgress *float64   `json:"downloadProgress,omitempty"`
	DownloadSize     int64      `json:"downloadSize,omitempty"`
}

func toEpisodeResponse(e *store.Episode) EpisodeResponse {
	return EpisodeResponse{
		GUID:             e.GUID,
		PodcastID:        e.PodcastID,
		Title:            e.Title,
		AudioURL:         e.AudioURL,
		DurationSeconds:  e.DurationSeconds,
		PublishedAt:      e.PublishedAt,
		Position:         e.Position,
		Played:           e.Played,
		Starred:          e.Starred,
		LocalFile:        e.LocalFile,
		DownloadProgress: e.DownloadProgress,
		DownloadSize:     e.DownloadSize,
	}
}

// PodcastResponse is the wire shape of a podcast record.
type PodcastResponse struct {
	ID           string     `json:"id"`
	FeedURL      string     `json:"feedUrl"`
	Title        string     `json:"title"`
	FolderID     *string    `json:"folderId,omitempty"`
	AutoDownload bool       `json:"autoDownload"`
	Preference   *string    `json:"preference,omitempty"`
	LastFetched  *time.Time `json:"lastFetched,omitempty"`
}

func toPodcastResponse(p *store.Podcast) PodcastResponse {
	resp := PodcastResponse{
		ID:           p.ID,
		FeedURL:      p.FeedURL,
		Title:        p.Title,
		FolderID:     p.FolderID,
		AutoDownload: p.AutoDownload,
		LastFetched:  p.LastFetched,
	}
	if p.DownloadPreference != nil {
		s := string(*p.DownloadPreference)
		resp.Preference = &s
	}
	return resp
}

// DecisionResponse reports a policy decision back to the caller.
type DecisionResponse struct {
	Decision string `json:"decision"`
}

// StatsResponse summarizes download storage usage.
type StatsResponse struct {
	TotalBytes      int64 `json:"totalBytes"`
	DownloadedCount int   `json:"downloadedCount"`
	ActiveTransfers int   `json:"activeTransfers"`
}

// PositionRequest carries a playback position update.
type PositionRequest struct {
	Seconds float64 `json:"seconds"`
}

// StarRequest carries a starred-flag change.
type StarRequest struct {
	Starred bool `json:"starred"`
}

// NetworkRequest carries a connectivity classification update.
type NetworkRequest struct {
	State string `json:"state"`
}

// SettingsResponse is the wire shape of the settings singleton.
type SettingsResponse struct {
	StorageLimitBytes      int64      `json:"storageLimitBytes"`
	EpisodesPerPodcast     int        `json:"episodesPerPodcast"`
	DownloadPreference     string     `json:"downloadPreference"`
	AutoDownloadPreference string     `json:"autoDownloadPreference"`
	LastRefreshedAt        *time.Time `json:"lastRefreshedAt,omitempty"`
}
