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

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"

	"github.com/algorand/go-relay/config"
	"github.com/algorand/go-relay/logging"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, config.GetDefaultLocal(), cfg)

	dir := t.TempDir()
	cfg, err = loadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, config.GetDefaultLocal(), cfg)

	custom := config.GetDefaultLocal()
	custom.ListenAddress = "127.0.0.1:5000"
	custom.CommandTimeout = 5 * time.Second
	require.NoError(t, custom.SaveToDisk(dir))

	cfg, err = loadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, custom, cfg)

	_, err = loadConfig(filepath.Join(dir, "missing"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFilename), []byte(`{"Bogus": 1}`), 0600))
	_, err = loadConfig(dir)
	require.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags([]string{
		"--listen", "127.0.0.1:9000",
		"--command-timeout", "3s",
		"--log-level", "debug",
	}))

	cfg := config.GetDefaultLocal()
	require.NoError(t, applyFlags(rootCmd, &cfg))
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, 3*time.Second, cfg.CommandTimeout)
	require.Equal(t, uint32(logging.Debug), cfg.BaseLoggerDebugLevel)
	// untouched flags keep the config value
	require.Equal(t, config.GetDefaultLocal().AdminListenAddress, cfg.AdminListenAddress)
	require.NoError(t, cfg.Validate())
}

func TestSetupLoggingWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.GetDefaultLocal()
	log := logging.NewLogger()

	closer, err := setupLogging(log, dir, cfg, true)
	require.NoError(t, err)
	log.Info("coordinator starting")
	require.NoError(t, closer.Close())

	live, _ := cfg.LogPaths(dir)
	data, err := os.ReadFile(live)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "coordinator starting"))
}

func TestRunRefusesLockedDataDir(t *testing.T) {
	dir := t.TempDir()
	lock := flock.New(filepath.Join(dir, config.LockFilename))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer lock.Unlock()

	err = run(context.Background(), dir, config.GetDefaultLocal())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already running")
}
