package store

import (
	"time"
)

// NetworkPreference governs whether a transfer may start on the current
// network type.
type NetworkPreference string

const (
	PreferenceAlways        NetworkPreference = "always"
	PreferenceWifiOnly      NetworkPreference = "wifiOnly"
	PreferenceAskOnCellular NetworkPreference = "askOnCellular"
)

// Valid reports whether p is one of the known preference values.
func (p NetworkPreference) Valid() bool {
	switch p {
	case PreferenceAlways, PreferenceWifiOnly, PreferenceAskOnCellular:
		return true
	}
	return false
}

// Episode represents one piece of downloadable, playable media.
//
// LocalFile holds a filename relative to the downloads directory, never an
// absolute path. LocalFile and DownloadProgress are mutually exclusive: a
// completed download clears progress in the same statement that sets the
// file.
type Episode struct {
	GUID             string
	PodcastID        string
	Title            string
	AudioURL         string
	DurationSeconds  *int64
	PublishedAt      *time.Time
	Position         float64
	Played           bool
	Starred          bool
	LocalFile        *string
	DownloadProgress *float64
	DownloadSize     int64
	DownloadedAt     *time.Time
}

// Downloaded reports whether the episode has a completed local copy.
func (e *Episode) Downloaded() bool { return e.LocalFile != nil }

// Downloading reports whether a transfer is recorded as in progress.
func (e *Episode) Downloading() bool { return e.DownloadProgress != nil }

// Podcast owns zero or more episodes. Deleting a podcast cascades to its
// episodes and queue entries.
type Podcast struct {
	ID                 string
	FeedURL            string
	Title              string
	FolderID           *string
	AutoDownload       bool
	DownloadPreference *NetworkPreference
	LastFetched        *time.Time
}

// Folder is a named, colored grouping of podcasts. Its auto-download flag
// applies to all member podcasts.
type Folder struct {
	ID           string
	Name         string
	Color        string
	AutoDownload bool
}

// QueueEntry is one episode's membership in the playback queue.
type QueueEntry struct {
	EpisodeGUID string
	Position    int
	AddedAt     time.Time
}

// Settings is the process-wide settings singleton. Zero values for the
// limits mean unlimited.
type Settings struct {
	StorageLimitBytes      int64
	EpisodesPerPodcast     int
	DownloadPreference     NetworkPreference
	AutoDownloadPreference NetworkPreference
	LastRefreshedAt        *time.Time
}

// DefaultSettings returns the settings written on first access.
func DefaultSettings() Settings {
	return Settings{
		StorageLimitBytes:      0,
		EpisodesPerPodcast:     0,
		DownloadPreference:     PreferenceAlways,
		AutoDownloadPreference: PreferenceWifiOnly,
	}
}
