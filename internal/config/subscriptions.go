package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SubscriptionsFile declares folders and podcasts to subscribe to. It is
// imported idempotently at startup: podcasts are keyed by feed URL, folders
// by name.
type SubscriptionsFile struct {
	Folders  []FolderEntry  `yaml:"folders"`
	Podcasts []PodcastEntry `yaml:"podcasts"`
}

// FolderEntry declares one folder.
type FolderEntry struct {
	Name         string `yaml:"name"`
	Color        string `yaml:"color"`
	AutoDownload bool   `yaml:"auto_download"`
}

// PodcastEntry declares one subscription.
type PodcastEntry struct {
	URL          string `yaml:"url"`
	Title        string `yaml:"title"`
	Folder       string `yaml:"folder"`
	AutoDownload bool   `yaml:"auto_download"`
	// Preference overrides the global download preference for this
	// podcast: always, wifiOnly, or askOnCellular.
	Preference string `yaml:"preference"`
}

// LoadSubscriptions reads and validates a subscriptions file.
func LoadSubscriptions(path string) (*SubscriptionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read subscriptions file")
	}

	var subs SubscriptionsFile
	if err := yaml.Unmarshal(data, &subs); err != nil {
		return nil, errors.Wrap(err, "failed to parse subscriptions file")
	}

	for _, p := range subs.Podcasts {
		if p.URL == "" {
			return nil, errors.New("subscriptions file: podcast entry missing url")
		}
	}
	for _, f := range subs.Folders {
		if f.Name == "" {
			return nil, errors.New("subscriptions file: folder entry missing name")
		}
	}

	return &subs, nil
}
