package tlsroots

import (
	"crypto/tls"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestNewPool(t *testing.T) {
	if NewPool().Pool() == nil {
		t.Fatal("NewPool().Pool() returned nil")
	}
	if NewEmptyPool().Pool() == nil {
		t.Fatal("NewEmptyPool().Pool() returned nil")
	}
}

func TestAddCertPEM(t *testing.T) {
	certFile, _ := writeKeyPair(t, t.TempDir(), 1)
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatalf("os.ReadFile() error = %v", err)
	}
	keyBlock := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte("skipped")})
	badCert := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("invalid")})

	tests := []struct {
		name    string
		data    []byte
		wantErr error
		anyErr  bool
	}{
		{"certificate", certPEM, nil, false},
		{"key block skipped", append(append([]byte{}, keyBlock...), certPEM...), nil, false},
		{"empty", nil, ErrNoCertsFound, true},
		{"not pem", []byte("not a certificate"), ErrNoCertsFound, true},
		{"only a key", keyBlock, ErrNoCertsFound, true},
		{"invalid certificate", badCert, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmptyPool().AddCertPEM(tt.data)
			if (err != nil) != tt.anyErr {
				t.Fatalf("AddCertPEM() error = %v, wantErr %v", err, tt.anyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("AddCertPEM() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddCertFile_Missing(t *testing.T) {
	err := NewEmptyPool().AddCertFile(filepath.Join(t.TempDir(), "missing.pem"))
	if err == nil {
		t.Fatal("AddCertFile() error = nil, want read error")
	}
}

func TestClientConfig(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(caFile, caPEM, 0600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	pool := NewEmptyPool()
	if err := pool.AddCertFile(caFile); err != nil {
		t.Fatalf("AddCertFile() error = %v", err)
	}
	if got := pool.Added(); got != 1 {
		t.Errorf("Added() = %d, want 1", got)
	}
	cfg := pool.ClientConfig()
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	untrusted := &http.Client{Transport: &http.Transport{TLSClientConfig: NewEmptyPool().ClientConfig()}}
	if resp, err := untrusted.Get(srv.URL); err == nil {
		resp.Body.Close()
		t.Error("Get() with an empty pool error = nil, want unknown authority")
	}
}
