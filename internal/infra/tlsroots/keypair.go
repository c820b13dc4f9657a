package tlsroots

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/yndnr/libos-go/internal/infra/confloader"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// DefaultDebounce is how long a KeyPair waits after the last file event
// before it reloads. Tools that rewrite the certificate and then the key
// produce two events; reloading after the first would load a mismatched
// pair.
const DefaultDebounce = 500 * time.Millisecond

// KeyPair is a certificate and key loaded from disk.
type KeyPair struct {
	certFile string
	keyFile  string
	debounce time.Duration
	logger   logger.Logger

	mu   sync.RWMutex
	cert *tls.Certificate

	timerMu sync.Mutex
	timer   *time.Timer
	stopped bool

	watcher *confloader.Watcher
}

// KeyPairOption configures a KeyPair.
type KeyPairOption func(*KeyPair)

// WithLogger sets the logger of the key pair.
func WithLogger(log logger.Logger) KeyPairOption {
	return func(p *KeyPair) {
		p.logger = log
	}
}

// WithDebounce sets the reload debounce.
func WithDebounce(d time.Duration) KeyPairOption {
	return func(p *KeyPair) {
		p.debounce = d
	}
}

// LoadKeyPair loads certFile and keyFile. It fails if they do not form a
// valid pair.
func LoadKeyPair(certFile, keyFile string, opts ...KeyPairOption) (*KeyPair, error) {
	p := &KeyPair{
		certFile: certFile,
		keyFile:  keyFile,
		debounce: DefaultDebounce,
		logger:   logger.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "tlsroots")

	if err := p.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return p, nil
}

// Watch reloads the pair whenever one of its files changes, until Stop.
// A pair that fails to load is logged and the previous one kept.
func (p *KeyPair) Watch() error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(p.logger))
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	for _, path := range []string{p.certFile, p.keyFile} {
		if err := w.Watch(path); err != nil {
			_ = w.Stop()
			return fmt.Errorf("tlsroots: watch %s: %w", path, err)
		}
	}
	w.OnChange(p.changed)
	p.watcher = w
	w.StartAsync()

	p.logger.Info("certificate watcher started", "cert_file", p.certFile, "key_file", p.keyFile)
	return nil
}

// Stop ends Watch. A reload already scheduled is dropped.
func (p *KeyPair) Stop() error {
	p.timerMu.Lock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timerMu.Unlock()

	if p.watcher == nil {
		return nil
	}
	return p.watcher.Stop()
}

// GetCertificate returns the current certificate. It fits
// tls.Config.GetCertificate.
func (p *KeyPair) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cert, nil
}

// NotAfter returns the expiry of the current certificate.
func (p *KeyPair) NotAfter() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cert == nil || p.cert.Leaf == nil {
		return time.Time{}
	}
	return p.cert.Leaf.NotAfter
}

// TLSConfig returns a server config that always serves the current pair.
func (p *KeyPair) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: p.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

func (p *KeyPair) changed(path string) {
	p.logger.Debug("certificate file changed", "file", path)

	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	if p.stopped {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		if err := p.reload(); err != nil {
			p.logger.Error("certificate reload failed",
				"error", err,
				"cert_file", p.certFile,
				"key_file", p.keyFile)
		}
	})
}

func (p *KeyPair) reload() error {
	cert, err := tls.LoadX509KeyPair(p.certFile, p.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}

	p.mu.Lock()
	p.cert = &cert
	p.mu.Unlock()

	fields := []any{"cert_file", p.certFile}
	if cert.Leaf != nil {
		fields = append(fields, "not_after", cert.Leaf.NotAfter.UTC().Format(time.RFC3339))
	}
	p.logger.Info("certificate loaded", fields...)
	return nil
}
