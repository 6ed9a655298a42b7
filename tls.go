// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package hstore

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
)

// TLSConfig holds the certificate files used by network sources, both as a
// client (Kafka, NATS) and as a server (HTTP).
type TLSConfig struct {
	// CertificatePath contains the path to the certificate (.crt or .pem file)
	CertificatePath string `json:"certificate" help:"Path to certificate file."`
	// CertificateKeyPath contains the path to the certificate key (.key file)
	CertificateKeyPath string `json:"key" help:"Path to certificate key file."`
	// CACertPath is the path to a CA certificate (.crt or .pem file)
	CACertPath string `json:"ca-certificate" help:"Path to CA certificate file."`
	SkipVerify bool   `json:"skip-verify" help:"Disables verification of server certificates."`
	// EnableClientVerification enables verification of client TLS certificates (Mutual TLS)
	EnableClientVerification bool `json:"enable-client-verification" help:"Enable verification of client certificates."`
}

// Enabled reports whether any TLS setting was given.
func (c TLSConfig) Enabled() bool {
	return c.CertificatePath != "" || c.CACertPath != "" || c.SkipVerify
}

type keypairReloader struct {
	certMu   sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
}

// newKeypairReloader loads a key pair and reloads it whenever the process
// gets SIGHUP.
func newKeypairReloader(certPath, keyPath string, log Logger) (*keypairReloader, error) {
	kpr := &keypairReloader{
		certPath: certPath,
		keyPath:  keyPath,
	}
	if err := kpr.reload(); err != nil {
		return nil, err
	}
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGHUP)
		for range c {
			log.Printf("received SIGHUP, reloading TLS certificate and key from %q and %q", certPath, keyPath)
			if err := kpr.reload(); err != nil {
				log.Printf("keeping old TLS certificate because the new one could not be loaded: %v", err)
			}
		}
	}()
	return kpr, nil
}

func (kpr *keypairReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(kpr.certPath, kpr.keyPath)
	if err != nil {
		return errors.Wrap(err, "loading keypair")
	}
	kpr.certMu.Lock()
	kpr.cert = &cert
	kpr.certMu.Unlock()
	return nil
}

func (kpr *keypairReloader) current() *tls.Certificate {
	kpr.certMu.RLock()
	defer kpr.certMu.RUnlock()
	return kpr.cert
}

// GetTLSConfig builds a *tls.Config from c. It returns nil when c is nil or
// not Enabled.
func GetTLSConfig(c *TLSConfig, log Logger) (*tls.Config, error) {
	if c == nil || !c.Enabled() {
		return nil, nil
	}
	conf := &tls.Config{
		InsecureSkipVerify: c.SkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if c.CertificatePath != "" || c.CertificateKeyPath != "" {
		if c.CertificatePath == "" || c.CertificateKeyPath == "" {
			return nil, errors.New("certificate and key must be given together")
		}
		kpr, err := newKeypairReloader(c.CertificatePath, c.CertificateKeyPath, log)
		if err != nil {
			return nil, err
		}
		conf.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return kpr.current(), nil
		}
		conf.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return kpr.current(), nil
		}
	}
	if c.CACertPath != "" {
		b, err := os.ReadFile(c.CACertPath)
		if err != nil {
			return nil, errors.Wrap(err, "loading tls ca key")
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(b) {
			return nil, errors.New("error parsing CA certificate")
		}
		conf.ClientCAs = certPool
		conf.RootCAs = certPool
	}
	if c.EnableClientVerification {
		conf.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return conf, nil
}
