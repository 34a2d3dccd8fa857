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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveThenLoad(t *testing.T) {
	a := require.New(t)
	dir := t.TempDir()

	c1 := GetDefaultLocal()
	c1.ListenAddress = "127.0.0.1:9000"
	c1.CommandTimeout = 5 * time.Second
	c1.EnableJSONLogging = true
	a.NoError(c1.SaveToDisk(dir))

	c2, err := LoadConfigFromDisk(dir)
	a.NoError(err)
	a.Equal(c1, c2)
}

func TestSaveWritesOnlyNonDefaults(t *testing.T) {
	a := require.New(t)
	dir := t.TempDir()

	c := GetDefaultLocal()
	c.AdminListenAddress = "127.0.0.1:8080"
	a.NoError(c.SaveToDisk(dir))

	data, err := os.ReadFile(filepath.Join(dir, ConfigFilename))
	a.NoError(err)
	a.Contains(string(data), "AdminListenAddress")
	a.Contains(string(data), "Version")
	a.NotContains(string(data), "ListenAddress\": \"0.0.0.0")
	a.NotContains(string(data), "CommandTimeout")
}

func TestLoadMissing(t *testing.T) {
	c, err := LoadConfigFromDisk(filepath.Join(t.TempDir(), "missing"))
	require.True(t, os.IsNotExist(err))
	require.Equal(t, GetDefaultLocal(), c)
}

func TestLoadPartialFileMergesDefaults(t *testing.T) {
	a := require.New(t)
	dir := t.TempDir()
	a.NoError(os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(`{"Version": 1, "MaxFrameSize": 4096}`), 0644))

	c, err := LoadConfigFromDisk(dir)
	a.NoError(err)
	a.Equal(uint64(4096), c.MaxFrameSize)
	a.Equal(GetDefaultLocal().CommandTimeout, c.CommandTimeout)
}

func TestLoadRejectsNewerVersionAndUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFilename)

	require.NoError(t, os.WriteFile(path, []byte(`{"Version": 99}`), 0644))
	_, err := LoadConfigFromDisk(dir)
	require.ErrorContains(t, err, "unexpected config version")

	require.NoError(t, os.WriteFile(path, []byte(`{"GossipFanout": 4}`), 0644))
	_, err = LoadConfigFromDisk(dir)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, GetDefaultLocal().Validate())

	tests := map[string]func(*Local){
		"no listen":       func(c *Local) { c.ListenAddress = "" },
		"cert no key":     func(c *Local) { c.TLSCertFile = "cert.pem" },
		"zero timeout":    func(c *Local) { c.CommandTimeout = 0 },
		"zero conns":      func(c *Local) { c.IncomingConnectionsLimit = 0 },
		"negative rate":   func(c *Local) { c.PeerMessageRateLimit = -1 },
		"rate no burst":   func(c *Local) { c.PeerMessageRateBurst = 0 },
		"tiny frames":     func(c *Local) { c.MaxFrameSize = 8 },
		"bad log level":   func(c *Local) { c.BaseLoggerDebugLevel = 6 },
		"no archive name": func(c *Local) { c.LogArchiveName = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := GetDefaultLocal()
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}

	c := GetDefaultLocal()
	c.IncomingConnectionsLimit = -1
	c.PeerMessageRateLimit = 0
	c.PeerMessageRateBurst = 0
	require.NoError(t, c.Validate())
}

func TestLogPaths(t *testing.T) {
	c := GetDefaultLocal()
	live, archive := c.LogPaths("/data")
	require.Equal(t, filepath.Join("/data", LogFilename), live)
	require.Equal(t, filepath.Join("/data", "relayd.archive.log"), archive)

	c.LogArchiveName = "/var/log/relay.old"
	_, archive = c.LogPaths("/data")
	require.Equal(t, "/var/log/relay.old", archive)
}
