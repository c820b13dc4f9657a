package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/libos-go/internal/config"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
	"github.com/yndnr/libos-go/pkg/crypto/adaptive"
)

const recordPrefix = "proc/"

// Common errors
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrClosed         = errors.New("profile store closed")
)

// Config configures a ProfileStore.
type Config struct {
	// Dir is the Badger directory. Empty keeps everything in memory.
	Dir string
	// GCInterval is the period of value-log GC. Zero disables it.
	GCInterval time.Duration
	// GCThreshold is the discard ratio passed to RunValueLogGC.
	GCThreshold float64
	// SyncWrites fsyncs every write.
	SyncWrites bool

	// EncryptionKey seals records with a key derived from it by HKDF.
	// Passphrase does the same through Argon2id, with a salt kept in the
	// store. At most one of them may be set.
	EncryptionKey []byte
	Passphrase    []byte
	// Cipher selects the AEAD. Empty picks one by hardware.
	Cipher adaptive.CipherType
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
	}
}

// ConfigFromSection builds the store configuration of a config section.
func ConfigFromSection(sec config.StorageSection) (Config, error) {
	cfg := DefaultConfig()
	cfg.Dir = sec.DataDir
	cfg.GCInterval = sec.GCInterval

	key, err := sec.DecodeEncryptionKey()
	if err != nil {
		return Config{}, err
	}
	cfg.EncryptionKey = key
	if sec.Passphrase != "" {
		cfg.Passphrase = []byte(sec.Passphrase)
	}
	cfg.Cipher, err = adaptive.ParseType(sec.Cipher)
	if err != nil {
		return Config{}, fmt.Errorf("storage.cipher: %w", err)
	}
	return cfg, nil
}

// ProcessRecord is the profile of one exited process.
type ProcessRecord struct {
	ID         string            `json:"id" yaml:"id"`
	PID        int32             `json:"pid" yaml:"pid"`
	ExitCode   int               `json:"exit_code" yaml:"exit_code"`
	Counters   map[string]uint64 `json:"counters" yaml:"counters"`
	FinishedAt time.Time         `json:"finished_at" yaml:"finished_at"`
}

// ProfileStore persists ProcessRecords.
type ProfileStore struct {
	db     *badger.DB
	cfg    Config
	cipher adaptive.Cipher
	logger logger.Logger
	closed atomic.Bool

	flushed          atomic.Uint64
	lastGCTime       atomic.Int64
	metricsFlushed   prometheus.CounterFunc
	metricsLSMSize   prometheus.GaugeFunc
	metricsVLogSize  prometheus.GaugeFunc
	metricsLastGCRun prometheus.GaugeFunc

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens or creates a ProfileStore.
func Open(cfg Config, log logger.Logger) (*ProfileStore, error) {
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "storage")

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: log}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}
	c, err := openCipher(db, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("record cipher: %w", err)
	}

	s := &ProfileStore{
		db:     db,
		cfg:    cfg,
		cipher: c,
		logger: log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	// Value-log GC is not available in memory mode.
	if cfg.Dir != "" && cfg.GCInterval > 0 {
		go s.gcLoop()
	} else {
		close(s.doneCh)
	}

	fields := []any{"dir", cfg.Dir, "in_memory", cfg.Dir == "", "sealed", c != nil}
	if c != nil {
		fields = append(fields, "cipher", c.Type())
	}
	log.Info("profile store opened", fields...)
	return s, nil
}

// FlushProfile stores the counters of an exited process.
func (s *ProfileStore) FlushProfile(ctx context.Context, pid int32, exitCode int, counters map[string]uint64) error {
	_, err := s.Put(ctx, ProcessRecord{
		PID:      pid,
		ExitCode: exitCode,
		Counters: counters,
	})
	return err
}

// Put stores rec under a new ID and returns the stored record.
func (s *ProfileStore) Put(ctx context.Context, rec ProcessRecord) (ProcessRecord, error) {
	if s.closed.Load() {
		return ProcessRecord{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return ProcessRecord{}, err
	}

	rec.ID = ulid.Make().String()
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	key := []byte(recordPrefix + rec.ID)
	value, err := s.encodeRecord(key, rec)
	if err != nil {
		return ProcessRecord{}, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return ProcessRecord{}, fmt.Errorf("store record: %w", err)
	}
	s.flushed.Add(1)
	s.logger.Debug("profile flushed", "pid", rec.PID, "id", rec.ID)
	return rec, nil
}

// Get returns the record with id.
func (s *ProfileStore) Get(ctx context.Context, id string) (ProcessRecord, error) {
	if s.closed.Load() {
		return ProcessRecord{}, ErrClosed
	}
	var rec ProcessRecord
	err := s.db.View(func(txn *badger.Txn) error {
		key := []byte(recordPrefix + id)
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return s.decodeRecord(key, val, &rec)
		})
	})
	return rec, err
}

// List returns every record in write order.
func (s *ProfileStore) List(ctx context.Context) ([]ProcessRecord, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var recs []ProcessRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec ProcessRecord
			key := it.Item().KeyCopy(nil)
			err := it.Item().Value(func(val []byte) error {
				return s.decodeRecord(key, val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

// GC runs value-log garbage collection until nothing more is rewritten.
func (s *ProfileStore) GC(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.cfg.Dir == "" {
		return nil
	}
	runs := 0
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return fmt.Errorf("gc: %w", err)
		}
		runs++
	}
	s.lastGCTime.Store(time.Now().Unix())
	s.logger.Debug("gc completed", "rewrites", runs)
	return nil
}

// Close stops the GC loop and closes the database.
func (s *ProfileStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case <-s.doneCh:
	default:
		close(s.stopCh)
		<-s.doneCh
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	s.logger.Info("profile store closed")
	return nil
}

// RegisterMetrics registers the store's metrics with reg.
func (s *ProfileStore) RegisterMetrics(reg prometheus.Registerer) error {
	s.metricsFlushed = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "libos",
		Subsystem: "profile_store",
		Name:      "records_flushed_total",
		Help:      "Process profile records written.",
	}, func() float64 { return float64(s.flushed.Load()) })

	s.metricsLSMSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "libos",
		Subsystem: "profile_store",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes.",
	}, func() float64 {
		lsm, _ := s.db.Size()
		return float64(lsm)
	})

	s.metricsVLogSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "libos",
		Subsystem: "profile_store",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes.",
	}, func() float64 {
		_, vlog := s.db.Size()
		return float64(vlog)
	})

	s.metricsLastGCRun = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "libos",
		Subsystem: "profile_store",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix time of the last value-log GC.",
	}, func() float64 { return float64(s.lastGCTime.Load()) })

	for _, c := range []prometheus.Collector{s.metricsFlushed, s.metricsLSMSize, s.metricsVLogSize, s.metricsLastGCRun} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *ProfileStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts logger.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
