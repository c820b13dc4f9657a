package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound means a PEM input held no CERTIFICATE block.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

// Pool is the set of roots a client trusts.
type Pool struct {
	roots *x509.CertPool
	added int
}

// NewPool starts from the system roots, or from nothing where the system
// store cannot be read.
func NewPool() *Pool {
	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}
	return &Pool{roots: roots}
}

// NewEmptyPool starts from nothing.
func NewEmptyPool() *Pool {
	return &Pool{roots: x509.NewCertPool()}
}

// ParsePEM returns the certificates in data, skipping blocks of other
// types such as private keys.
func ParsePEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for rest := data; ; {
		var block *pem.Block
		if block, rest = pem.Decode(rest); block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		certs = append(certs, c)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertsFound
	}
	return certs, nil
}

// AddCertPEM trusts every certificate in data.
func (p *Pool) AddCertPEM(data []byte) error {
	certs, err := ParsePEM(data)
	if err != nil {
		return err
	}
	for _, c := range certs {
		p.roots.AddCert(c)
	}
	p.added += len(certs)
	return nil
}

// AddCertFile trusts every certificate in the PEM file at path.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
	}
	if err := p.AddCertPEM(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Added counts the certificates added on top of the starting roots.
func (p *Pool) Added() int { return p.added }

// Pool returns the x509 pool for use in a tls.Config.
func (p *Pool) Pool() *x509.CertPool { return p.roots }

// ClientConfig trusts the pool and requires TLS 1.2 or later.
func (p *Pool) ClientConfig() *tls.Config {
	return &tls.Config{RootCAs: p.roots, MinVersion: tls.VersionTLS12}
}
