// Package config holds daemon options parsed from flags and environment,
// plus the optional yaml subscriptions import file.
package config

import (
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Opts are the daemon's runtime options.
type Opts struct {
	DataDir       string `long:"data-dir" env:"PODCAST_DATA_DIR" default:"./data" description:"Directory for the database and downloads"`
	DownloadsDir  string `long:"downloads-dir" env:"PODCAST_DOWNLOADS_DIR" description:"Downloads directory (default: <data-dir>/downloads)"`
	DBPath        string `long:"db-path" env:"PODCAST_DB_PATH" description:"Database file (default: <data-dir>/podcast.db)"`
	Port          string `long:"port" env:"PODCAST_PORT" default:"8080" description:"HTTP listen port"`
	RefreshEvery  string `long:"refresh-every" env:"PODCAST_REFRESH_EVERY" default:"30m" description:"Interval between feed refreshes"`
	RetainEvery   string `long:"retain-every" env:"PODCAST_RETAIN_EVERY" default:"1h" description:"Interval between retention passes"`
	Subscriptions string `long:"subscriptions" env:"PODCAST_SUBSCRIPTIONS" description:"YAML subscriptions file imported at startup"`
	UserAgent     string `long:"user-agent" env:"PODCAST_USER_AGENT" default:"podcast-offline/1.0" description:"User agent for feed and media requests"`
	Debug         bool   `long:"debug" env:"PODCAST_DEBUG" description:"Enable debug logging"`
}

// Load parses flags and environment. It returns (nil, nil) when help was
// requested.
func Load(args []string) (*Opts, error) {
	var opts Opts

	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to parse options")
	}

	if opts.DownloadsDir == "" {
		opts.DownloadsDir = filepath.Join(opts.DataDir, "downloads")
	}
	if opts.DBPath == "" {
		opts.DBPath = filepath.Join(opts.DataDir, "podcast.db")
	}

	return &opts, nil
}
