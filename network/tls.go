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

// Package network provides the transports peers use to reach the coordinator:
// TLS over TCP and, optionally, websockets over TLS.
package network

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/algorand/go-relay/logging"
	"github.com/algorand/go-relay/network/limitlistener"
)

// zeroReader makes certificate signing deterministic for the development key.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

var devCertEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// devTLSCert returns a fixed self-signed certificate for localhost.
// Every process derives the same key, so peers can trust it without sharing files.
func devTLSCert() (tls.Certificate, *x509.Certificate, error) {
	seed := sha256.Sum256([]byte("go-relay-dev-key"))
	priv := ed25519.NewKeyFromSeed(seed[:])
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             devCertEpoch,
		NotAfter:              devCertEpoch.AddDate(100, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
	}
	der, err := x509.CreateCertificate(zeroReader{}, &template, &template, priv.Public(), priv)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        parsed,
	}
	return cert, parsed, nil
}

// DevTLSConfig returns a server configuration using the built-in development certificate.
func DevTLSConfig() (*tls.Config, error) {
	cert, _, err := devTLSCert()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadTLSConfig returns a server configuration for the PEM pair at certFile and keyFile.
// When both are empty the development certificate is used.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return DevTLSConfig()
	}
	if certFile == "" || keyFile == "" {
		return nil, errors.New("LoadTLSConfig: certificate and key must be given together")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("LoadTLSConfig: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLSConfig returns the configuration peers dial the coordinator with.
// caFile adds a PEM bundle to the trusted roots; with no caFile the system roots
// plus the development certificate are trusted. insecure disables verification.
func ClientTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}, nil //nolint:gosec // opt-in for development
	}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("ClientTLSConfig: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ClientTLSConfig: no certificates found in %s", caFile)
		}
		return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	_, dev, err := devTLSCert()
	if err != nil {
		return nil, err
	}
	pool.AddCert(dev)
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// ListenTLS listens on addr and wraps accepted connections in TLS. When limit is
// positive, connections beyond it are closed as soon as they are accepted.
func ListenTLS(addr string, tlsConf *tls.Config, limit int, log logging.Logger) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		ln = limitlistener.RejectingLimitListener(ln, uint64(limit), log)
	}
	return tls.NewListener(ln, tlsConf), nil
}

// DialTLS connects to a coordinator at addr.
func DialTLS(addr string, tlsConf *tls.Config, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	return tls.DialWithDialer(dialer, "tcp", addr, tlsConf)
}
