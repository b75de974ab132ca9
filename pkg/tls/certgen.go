// Package tls generates and loads the certificates the mock server presents.
//
// A test that only needs "some HTTPS" calls Generate with DefaultConfig and
// trusts the result through Certificate.Pool; the certificate is self-signed
// and covers localhost and the loopback addresses.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"
)

// Config controls certificate generation.
type Config struct {
	Organization string
	CommonName   string
	// Hosts are DNS names or IP literals placed in the subject alternative
	// names.
	Hosts    []string
	ValidFor time.Duration
}

// DefaultConfig covers localhost and loopback for one year.
func DefaultConfig() Config {
	return Config{
		Organization: "tracemock",
		CommonName:   "localhost",
		Hosts:        []string{"localhost", "127.0.0.1", "::1"},
		ValidFor:     365 * 24 * time.Hour,
	}
}

// Certificate bundles a key pair in the forms the server and clients need.
type Certificate struct {
	TLS     tls.Certificate
	Leaf    *x509.Certificate
	CertPEM []byte
	KeyPEM  []byte
}

// Pool returns a certificate pool that trusts c.
func (c *Certificate) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	if c != nil && c.Leaf != nil {
		pool.AddCert(c.Leaf)
	}
	return pool
}

// Generate creates a self-signed ECDSA P-256 certificate. The certificate is
// its own CA so that Pool alone is enough to verify it.
func Generate(cfg Config) (*Certificate, error) {
	if cfg.ValidFor <= 0 {
		cfg.ValidFor = DefaultConfig().ValidFor
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = DefaultConfig().Hosts
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	notBefore := time.Now().Add(-time.Minute)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{cfg.Organization},
			CommonName:   cfg.CommonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(cfg.ValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range cfg.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return FromPEM(certPEM, keyPEM)
}

// FromPEM parses a PEM-encoded certificate and key of any supported type.
func FromPEM(certPEM, keyPEM []byte) (*Certificate, error) {
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse key pair: %w", err)
	}
	leaf := pair.Leaf
	if leaf == nil {
		leaf, err = x509.ParseCertificate(pair.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		pair.Leaf = leaf
	}
	return &Certificate{TLS: pair, Leaf: leaf, CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

// ServerConfig returns a server tls.Config presenting cert.
func ServerConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}

// ClientConfig returns a client tls.Config that trusts only c. The peer
// chain is verified against c but the server name is not: clients reach the
// mock under whatever names the fake resolver maps, which the certificate
// cannot list in advance.
func ClientConfig(c *Certificate) *tls.Config {
	pool := c.Pool()
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // chain verified in VerifyConnection
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("server presented no certificate")
			}
			opts := x509.VerifyOptions{Roots: pool, Intermediates: x509.NewCertPool()}
			for _, ic := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(ic)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		},
	}
}
