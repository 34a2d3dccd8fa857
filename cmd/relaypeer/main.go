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
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/network"
	"github.com/algorand/go-relay/peer"
)

const dialTimeout = 30 * time.Second

var (
	coordinatorAddr string
	peerName        string
	peerAddress     string
	caFile          string
	insecure        bool
	executorName    string
	useWebsocket    bool
	verbose         bool
)

var rootCmd = &cobra.Command{
	Use:   "relaypeer",
	Short: "Interactive relay peer",
	Long: `relaypeer registers with a relay coordinator under this machine's name, runs
commands forwarded by other peers with the selected executor, and offers a small
prompt to manage contacts and send commands.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPeer()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&coordinatorAddr, "coordinator", "c", "localhost:4433", "Coordinator host:port (or wss:// URL with --ws)")
	rootCmd.Flags().StringVarP(&peerName, "name", "n", "", "Identity to register (defaults to the hostname)")
	rootCmd.Flags().StringVarP(&peerAddress, "address", "a", "", "Address to advertise (defaults to the hostname's first IPv4 address)")
	rootCmd.Flags().StringVar(&caFile, "ca", "", "PEM file with the CA to trust for the coordinator certificate")
	rootCmd.Flags().BoolVar(&insecure, "insecure", false, "Skip verification of the coordinator certificate")
	rootCmd.Flags().StringVarP(&executorName, "executor", "e", "echo", "How forwarded commands are answered: echo or sysinfo")
	rootCmd.Flags().BoolVar(&useWebsocket, "ws", false, "Connect over websocket instead of TLS")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log debug information to stderr")
}

func runPeer() error {
	log := logging.Base()
	if verbose {
		log.SetLevel(logging.Debug)
	}

	name := peerName
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("cannot determine hostname, use --name: %w", err)
		}
		name = host
	}
	address := peerAddress
	if address == "" {
		address = localAddress(name)
	}

	executor, err := peer.ExecutorByName(executorName)
	if err != nil {
		return err
	}
	tlsConf, err := network.ClientTLSConfig(caFile, insecure)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	client, err := peer.Dial(ctx, coordinatorAddr, tlsConf, useWebsocket, peer.Config{
		Identity: name,
		Address:  address,
		Executor: executor,
	}, log)
	cancel()
	if err != nil {
		return err
	}
	fmt.Println("Securely connected to the coordinator.")

	ui := makeConsole(os.Stdout)
	go ui.printResponses(client.Responses())

	if err = client.Connect(); err != nil {
		client.Close()
		return err
	}
	ui.usage()

	replDone := make(chan error, 1)
	go func() {
		replDone <- ui.run(os.Stdin, client)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-replDone:
		return err
	case <-interrupt:
		return client.Disconnect()
	case <-client.Done():
		if err = client.Err(); err != nil {
			return fmt.Errorf("connection to the coordinator lost: %w", err)
		}
		return fmt.Errorf("coordinator closed the connection")
	}
}

// localAddress resolves host to its first IPv4 address.
func localAddress(host string) string {
	addrs, err := net.LookupHost(host)
	if err == nil {
		for _, a := range addrs {
			if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
				return a
			}
		}
		if len(addrs) > 0 {
			return addrs[0]
		}
	}
	return "127.0.0.1"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
