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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	dataDir        string
	listenAddr     string
	wsListenAddr   string
	adminAddr      string
	certFile       string
	keyFile        string
	commandTimeout time.Duration
	logLevel       string
	quiet          bool
)

var rootCmd = &cobra.Command{
	Use:   "relayd",
	Short: "Command relay coordinator",
	Long: `relayd accepts peer connections over TLS (and optionally websockets), keeps
the directory of connected peers and their contacts, and fans commands out to
their targets, replying to the sender with the aggregated results.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := resolveDataDir()
		cfg, err := loadConfig(dir)
		if err != nil {
			return err
		}
		if err = applyFlags(cmd, &cfg); err != nil {
			return err
		}
		if err = cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return run(cmd.Context(), dir, cfg)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&dataDir, "datadir", "d", "", "Data directory holding relay.json, relayd.lock and logs (defaults to $RELAY_DATA)")
	rootCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Override ListenAddress (host:port for TLS peers)")
	rootCmd.Flags().StringVar(&wsListenAddr, "ws-listen", "", "Override WebsocketListenAddress (host:port for wss:// peers)")
	rootCmd.Flags().StringVar(&adminAddr, "admin-listen", "", "Override AdminListenAddress (host:port for metrics and the admin API)")
	rootCmd.Flags().StringVar(&certFile, "cert", "", "TLS certificate (PEM)")
	rootCmd.Flags().StringVar(&keyFile, "key", "", "TLS private key (PEM)")
	rootCmd.Flags().DurationVar(&commandTimeout, "command-timeout", 0, "Override CommandTimeout")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (panic, fatal, error, warn, info, debug)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not copy the log to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
