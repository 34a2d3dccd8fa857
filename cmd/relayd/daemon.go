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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/algorand/go-relay/config"
	"github.com/algorand/go-relay/coordinator"
	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/network"
	"github.com/algorand/go-relay/util/metrics"
)

const dataDirEnv = "RELAY_DATA"

func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	return os.Getenv(dataDirEnv)
}

// loadConfig merges relay.json from dir over the defaults. A missing data
// directory runs on defaults; a missing relay.json is not an error.
func loadConfig(dir string) (config.Local, error) {
	if dir == "" {
		return config.GetDefaultLocal(), nil
	}
	if _, err := os.Stat(dir); err != nil {
		return config.Local{}, fmt.Errorf("data directory %s does not appear to be valid: %w", dir, err)
	}
	cfg, err := config.LoadConfigFromDisk(dir)
	if err != nil && !os.IsNotExist(err) {
		return config.Local{}, fmt.Errorf("cannot load config: %w", err)
	}
	return cfg, nil
}

// applyFlags overrides cfg with every flag given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Local) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.ListenAddress = listenAddr
	}
	if flags.Changed("ws-listen") {
		cfg.WebsocketListenAddress = wsListenAddr
	}
	if flags.Changed("admin-listen") {
		cfg.AdminListenAddress = adminAddr
	}
	if flags.Changed("cert") {
		cfg.TLSCertFile = certFile
	}
	if flags.Changed("key") {
		cfg.TLSKeyFile = keyFile
	}
	if flags.Changed("command-timeout") {
		cfg.CommandTimeout = commandTimeout
	}
	if flags.Changed("log-level") {
		lvl, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		cfg.BaseLoggerDebugLevel = uint32(lvl)
	}
	return nil
}

// setupLogging points log at relayd.log in dir (when there is one and
// LogSizeLimit is set) and at stderr unless quiet.
func setupLogging(log logging.Logger, dir string, cfg config.Local, quiet bool) (io.Closer, error) {
	log.SetLevel(logging.Level(cfg.BaseLoggerDebugLevel))
	if cfg.EnableJSONLogging {
		log.SetJSONFormatter()
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if dir != "" && cfg.LogSizeLimit > 0 {
		live, archive := cfg.LogPaths(dir)
		fw, err := logging.MakeCyclicFileWriter(live, archive, cfg.LogSizeLimit)
		if err != nil {
			return nil, fmt.Errorf("cannot open log file: %w", err)
		}
		writers = append(writers, fw)
		closer = fw
	}
	if !quiet || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	log.SetOutput(io.MultiWriter(writers...))
	return closer, nil
}

func run(ctx context.Context, dir string, cfg config.Local) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if dir != "" {
		absolutePath, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("can't convert data directory's path to absolute, %v", dir)
		}
		dir = absolutePath

		// only one relayd per data directory
		fileLock := flock.New(filepath.Join(dir, config.LockFilename))
		locked, err := fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("unexpected failure in establishing %s: %w", config.LockFilename, err)
		}
		if !locked {
			return fmt.Errorf("failed to lock %s; is an instance of relayd already running in this data directory?", config.LockFilename)
		}
		defer fileLock.Unlock()
	}

	log := logging.Base()
	logCloser, err := setupLogging(log, dir, cfg, quiet)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	tlsConf, err := network.LoadTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("cannot load TLS configuration: %w", err)
	}
	if cfg.TLSCertFile == "" {
		log.Warn("no TLS certificate configured, using the built-in development certificate")
	}

	reg := metrics.MakeRegistry()
	if err = reg.RegisterRuntimeCollectors(); err != nil {
		return err
	}
	svcConfig := coordinator.ConfigFromLocal(cfg)
	svcConfig.Metrics = reg
	svc := coordinator.MakeService(svcConfig, log)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	ln, err := network.ListenTLS(cfg.ListenAddress, tlsConf, cfg.IncomingConnectionsLimit, log)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", cfg.ListenAddress, err)
	}
	g.Go(func() error { return serve(svc, ln) })

	if cfg.WebsocketListenAddress != "" {
		maxMessage := int64(cfg.MaxFrameSize) + binary.MaxVarintLen64
		wsl, err := network.ListenWebsocket(cfg.WebsocketListenAddress, tlsConf, cfg.IncomingConnectionsLimit, maxMessage, log)
		if err != nil {
			svc.Stop()
			return fmt.Errorf("cannot listen on %s: %w", cfg.WebsocketListenAddress, err)
		}
		g.Go(func() error { return serve(svc, wsl) })
	}

	if cfg.AdminListenAddress != "" {
		admin := metrics.MakeMetricService(&metrics.ServiceConfig{
			ListenAddress: cfg.AdminListenAddress,
			Handler:       svc.AdminRouter(reg),
		})
		if err = admin.Start(gctx); err != nil {
			svc.Stop()
			return fmt.Errorf("cannot start admin API on %s: %w", cfg.AdminListenAddress, err)
		}
		log.Infof("admin API listening on %s", admin.Addr())
		defer admin.Shutdown()
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		svc.Stop()
		return nil
	})

	fmt.Printf("relayd accepting peers on %v. Press Ctrl-C to exit\n", ln.Addr())
	return g.Wait()
}

// serve runs svc on ln until the service stops.
func serve(svc *coordinator.Service, ln net.Listener) error {
	err := svc.Serve(ln)
	if errors.Is(err, coordinator.ErrServiceStopped) {
		return nil
	}
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
