// Package config loads the collector's JSON configuration file, following
// the same load-then-apply-defaults idiom the teacher's configuration
// package used for its logger settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds every setting the session-binning core consumes.
type Config struct {
	// SessionTimeout is the session length and round width.
	SessionTimeout time.Duration

	// SessionBinningDir is the destination directory on the remote FS.
	SessionBinningDir string

	// SyncFileAfterDuration is the sync-age threshold.
	SyncFileAfterDuration time.Duration

	// SyncFileAfterRecords is the sync-count threshold.
	SyncFileAfterRecords int

	// Replication is the remote FS replication factor passed to Create.
	Replication int

	// Namenodes lists the HDFS namenode addresses (host:port). Empty when
	// running against the local-disk FileSystem.
	Namenodes []string
}

// jsonConfig mirrors the on-disk JSON shape. Every field is optional; zero
// values fall back to Defaults.
type jsonConfig struct {
	SessionTimeout string `json:"session_timeout"`
	SessionBinning struct {
		Dir                   string `json:"dir"`
		SyncFileAfterDuration string `json:"sync_file_after_duration"`
		SyncFileAfterRecords  int    `json:"sync_file_after_records"`
	} `json:"session_binning"`
	HDFS struct {
		Namenodes   []string `json:"namenodes"`
		Replication int      `json:"replication"`
	} `json:"hdfs"`
}

// Defaults returns the configuration used for any field a loaded JSON
// document leaves unset.
func Defaults() Config {
	return Config{
		SessionTimeout:        30 * time.Minute,
		SessionBinningDir:     "/divolte/sessions",
		SyncFileAfterDuration: 30 * time.Second,
		SyncFileAfterRecords:  1000,
		Replication:           3,
	}
}

// LoadFromFile reads and parses a JSON configuration file.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}
	return LoadFromJSON(data)
}

// LoadFromJSON parses JSON configuration data, applying Defaults for any
// field the document omits.
func LoadFromJSON(data []byte) (*Config, error) {
	var raw jsonConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse JSON: %w", err)
	}

	cfg := Defaults()

	if raw.SessionTimeout != "" {
		d, err := time.ParseDuration(raw.SessionTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: session_timeout: %w", err)
		}
		cfg.SessionTimeout = d
	}

	if raw.SessionBinning.Dir != "" {
		cfg.SessionBinningDir = raw.SessionBinning.Dir
	}

	if raw.SessionBinning.SyncFileAfterDuration != "" {
		d, err := time.ParseDuration(raw.SessionBinning.SyncFileAfterDuration)
		if err != nil {
			return nil, fmt.Errorf("config: session_binning.sync_file_after_duration: %w", err)
		}
		cfg.SyncFileAfterDuration = d
	}

	if raw.SessionBinning.SyncFileAfterRecords != 0 {
		cfg.SyncFileAfterRecords = raw.SessionBinning.SyncFileAfterRecords
	}

	if raw.HDFS.Replication != 0 {
		cfg.Replication = raw.HDFS.Replication
	}

	if len(raw.HDFS.Namenodes) > 0 {
		cfg.Namenodes = raw.HDFS.Namenodes
	}

	return &cfg, nil
}
