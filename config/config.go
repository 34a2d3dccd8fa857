// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-relay
//
// go-relay is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-relay is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-relay.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/algorand/go-relay/util/codecs"
)

// ConfigFilename is the name of the file in the data directory holding per-coordinator settings
const ConfigFilename = "relay.json"

// LockFilename is taken by relayd so two daemons never share a data directory
const LockFilename = "relayd.lock"

// LogFilename is the live log written by relayd in its data directory
const LogFilename = "relayd.log"

// currentConfigVersion is bumped whenever a default changes
const currentConfigVersion = 1

// Local holds the per-coordinator configuration settings.
type Local struct {
	// Version tracks the current version of the defaults so we can detect files written by newer releases.
	Version uint32

	// ListenAddress is the host:port the TLS listener binds to.
	ListenAddress string

	// TLSCertFile and TLSKeyFile point at a PEM certificate and key. When both are empty a
	// self-signed development certificate is generated at startup.
	TLSCertFile string
	TLSKeyFile  string

	// WebsocketListenAddress enables the wss:// transport when non-empty.
	WebsocketListenAddress string

	// AdminListenAddress enables the HTTP admin API (metrics, sessions, commands) when non-empty.
	AdminListenAddress string

	// CommandTimeout is how long a fanned-out command waits for results before it is force-completed.
	CommandTimeout time.Duration

	// IncomingConnectionsLimit caps concurrently open peer connections; -1 means no limit.
	IncomingConnectionsLimit int

	// PeerMessageRateLimit is the sustained number of requests per second accepted from one
	// connection; 0 disables rate limiting.
	PeerMessageRateLimit float64

	// PeerMessageRateBurst is the token bucket size paired with PeerMessageRateLimit.
	PeerMessageRateBurst int

	// MaxFrameSize bounds a single inbound frame body in bytes.
	MaxFrameSize uint64

	// BaseLoggerDebugLevel ranges from 0 (panic) to 5 (debug). The default is 4 (info).
	BaseLoggerDebugLevel uint32

	// LogSizeLimit is the relayd.log size limit in bytes. When set to 0 logs go to stderr only.
	LogSizeLimit uint64

	// LogArchiveName is the file, relative to the data directory, the full log is moved to.
	LogArchiveName string

	// EnableJSONLogging switches the log format from text to JSON.
	EnableJSONLogging bool
}

var defaultLocal = Local{
	Version:                  currentConfigVersion,
	ListenAddress:            "0.0.0.0:4433",
	CommandTimeout:           30 * time.Second,
	IncomingConnectionsLimit: 2400,
	PeerMessageRateLimit:     50,
	PeerMessageRateBurst:     100,
	MaxFrameSize:             1 << 20,
	BaseLoggerDebugLevel:     4,
	LogSizeLimit:             1073741824,
	LogArchiveName:           "relayd.archive.log",
}

// GetDefaultLocal returns a copy of the current defaultLocal config
func GetDefaultLocal() Local {
	return defaultLocal
}

// LoadConfigFromDisk returns a Local config structure based on merging the defaults
// with settings loaded from the config file from the custom dir.  If the custom file
// cannot be loaded, the default config is returned (with the error from loading the
// custom file).
func LoadConfigFromDisk(custom string) (c Local, err error) {
	return loadConfigFromFile(filepath.Join(custom, ConfigFilename))
}

func loadConfigFromFile(configFile string) (c Local, err error) {
	c = defaultLocal
	c, err = mergeConfigFromFile(configFile, c)
	if err != nil {
		return
	}
	if c.Version > currentConfigVersion {
		return defaultLocal, fmt.Errorf("unexpected config version: %d", c.Version)
	}
	return
}

func mergeConfigFromFile(configpath string, source Local) (Local, error) {
	f, err := os.Open(configpath)
	if err != nil {
		return source, err
	}
	defer f.Close()

	err = loadConfig(f, &source)
	return source, err
}

func loadConfig(reader io.Reader, config *Local) error {
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	return dec.Decode(config)
}

// SaveToDisk writes the Local settings into a root/ConfigFilename file
func (cfg Local) SaveToDisk(root string) error {
	configpath := filepath.Join(root, ConfigFilename)
	filename := os.ExpandEnv(configpath)
	return cfg.SaveToFile(filename)
}

// SaveToFile saves the config to a specific filename, allowing overriding the default name
func (cfg Local) SaveToFile(filename string) error {
	alwaysInclude := []string{"Version"}
	return codecs.SaveNonDefaultValuesToFile(filename, cfg, defaultLocal, alwaysInclude)
}

// Validate reports the first setting that cannot be used to start a coordinator.
func (cfg Local) Validate() error {
	if cfg.ListenAddress == "" {
		return errors.New("ListenAddress must be set")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("TLSCertFile and TLSKeyFile must be set together")
	}
	if cfg.CommandTimeout <= 0 {
		return fmt.Errorf("CommandTimeout must be positive, got %v", cfg.CommandTimeout)
	}
	if cfg.IncomingConnectionsLimit < -1 || cfg.IncomingConnectionsLimit == 0 {
		return fmt.Errorf("IncomingConnectionsLimit must be -1 or positive, got %d", cfg.IncomingConnectionsLimit)
	}
	if cfg.PeerMessageRateLimit < 0 {
		return fmt.Errorf("PeerMessageRateLimit must not be negative, got %v", cfg.PeerMessageRateLimit)
	}
	if cfg.PeerMessageRateLimit > 0 && cfg.PeerMessageRateBurst < 1 {
		return fmt.Errorf("PeerMessageRateBurst must be at least 1 when rate limiting, got %d", cfg.PeerMessageRateBurst)
	}
	if cfg.MaxFrameSize < 64 {
		return fmt.Errorf("MaxFrameSize must be at least 64 bytes, got %d", cfg.MaxFrameSize)
	}
	if cfg.BaseLoggerDebugLevel > 5 {
		return fmt.Errorf("BaseLoggerDebugLevel must be between 0 and 5, got %d", cfg.BaseLoggerDebugLevel)
	}
	if cfg.LogSizeLimit > 0 && cfg.LogArchiveName == "" {
		return errors.New("LogArchiveName must be set when LogSizeLimit is non-zero")
	}
	return nil
}

// LogPaths returns the live and archive log paths under dataDir.
func (cfg Local) LogPaths(dataDir string) (liveLog, archive string) {
	liveLog = filepath.Join(dataDir, LogFilename)
	archive = cfg.LogArchiveName
	if !filepath.IsAbs(archive) {
		archive = filepath.Join(dataDir, archive)
	}
	return
}
