package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/allisson/asherah/internal/crypto/cache"
	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	cryptoService "github.com/allisson/asherah/internal/crypto/service"
	"github.com/allisson/asherah/internal/metrics"
)

// Session cache defaults.
const (
	DefaultSessionCacheMaxSize  = 1000
	DefaultSessionCacheDuration = 2 * time.Hour
)

// SessionFactoryConfig holds the settings shared by every session of a factory.
type SessionFactoryConfig struct {
	ServiceName  string
	ProductID    string
	RegionSuffix string
	Policy       *cryptoDomain.CryptoPolicy

	// CacheSessions keeps released sessions for reuse. When false every
	// GetSession builds a fresh session that is closed on release.
	CacheSessions        bool
	SessionCacheMaxSize  int
	SessionCacheDuration time.Duration
}

// sessionEntry is one partition's engine plus its reference count. Fields other
// than engine are guarded by the factory mutex.
type sessionEntry struct {
	partitionID string
	engine      EnvelopeUseCase
	refs        int
	evicted     bool
	lastAccess  time.Time
}

// SessionFactory hands out reference counted per-partition sessions.
//
// Cached sessions live in an LRU bounded by SessionCacheMaxSize and are dropped
// once idle for SessionCacheDuration. A session evicted while still referenced is
// closed when its last reference is released.
type SessionFactory struct {
	config     SessionFactoryConfig
	metastore  Metastore
	kms        cryptoService.KeyManagementService
	keyManager cryptoService.KeyManager
	systemKeys *cache.KeyCache
	metrics    metrics.BusinessMetrics
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions *lru.Cache[string, *sessionEntry]
	closed   bool
}

// NewSessionFactory creates a SessionFactory. The factory owns the system key cache
// and closes it on Close; the KMS and metastore stay owned by the caller.
func NewSessionFactory(
	config SessionFactoryConfig,
	metastore Metastore,
	kms cryptoService.KeyManagementService,
	keyManager cryptoService.KeyManager,
	m metrics.BusinessMetrics,
	logger *slog.Logger,
) (*SessionFactory, error) {
	if config.Policy == nil {
		config.Policy = cryptoDomain.NewCryptoPolicy(0, 0, 0, "")
	}
	if config.SessionCacheMaxSize <= 0 {
		config.SessionCacheMaxSize = DefaultSessionCacheMaxSize
	}
	if config.SessionCacheDuration <= 0 {
		config.SessionCacheDuration = DefaultSessionCacheDuration
	}
	if m == nil {
		m = metrics.NewNoOpBusinessMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &SessionFactory{
		config:     config,
		metastore:  metastore,
		kms:        kms,
		keyManager: keyManager,
		systemKeys: cache.New(metrics.CacheSystemKey, config.Policy, m, logger),
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}

	sessions, err := lru.NewWithEvict(config.SessionCacheMaxSize, f.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	f.sessions = sessions
	return f, nil
}

// GetSession returns a session for partitionID. Callers must Close it when done.
func (f *SessionFactory) GetSession(ctx context.Context, partitionID string) (*Session, error) {
	partition, err := cryptoDomain.NewPartition(
		partitionID,
		f.config.ServiceName,
		f.config.ProductID,
		f.config.RegionSuffix,
	)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, cryptoDomain.ErrSessionFactoryClosed
	}

	now := f.now()
	if !f.config.CacheSessions {
		entry := f.newEntry(partition, now)
		entry.evicted = true
		return f.acquire(entry, now), nil
	}

	if entry, ok := f.sessions.Get(partitionID); ok {
		if now.Sub(entry.lastAccess) < f.config.SessionCacheDuration {
			f.metrics.RecordCacheEvent(ctx, metrics.CacheSession, metrics.CacheEventHit)
			return f.acquire(entry, now), nil
		}
		f.sessions.Remove(partitionID)
	}

	f.metrics.RecordCacheEvent(ctx, metrics.CacheSession, metrics.CacheEventMiss)
	entry := f.newEntry(partition, now)
	f.sessions.Add(partitionID, entry)
	return f.acquire(entry, now), nil
}

// Close drops every cached session and zeroes the system key cache. Sessions still
// held by callers are closed on release.
func (f *SessionFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.sessions.Purge()
	f.systemKeys.Close()
}

// RegionSuffix returns the suffix appended to new system and intermediate key IDs.
func (f *SessionFactory) RegionSuffix() string {
	return f.config.RegionSuffix
}

// Len returns the number of cached sessions.
func (f *SessionFactory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions.Len()
}

func (f *SessionFactory) newEntry(partition cryptoDomain.Partition, now time.Time) *sessionEntry {
	intermediateKeys := cache.New(metrics.CacheIntermediateKey, f.config.Policy, f.metrics, f.logger)
	engine := NewEnvelopeUseCase(
		partition,
		f.config.Policy,
		f.metastore,
		f.kms,
		f.keyManager,
		f.systemKeys,
		intermediateKeys,
		f.logger,
	)
	return &sessionEntry{
		partitionID: partition.ID,
		engine:      NewEnvelopeUseCaseWithMetrics(engine, f.metrics),
		lastAccess:  now,
	}
}

// acquire must be called with f.mu held.
func (f *SessionFactory) acquire(entry *sessionEntry, now time.Time) *Session {
	entry.refs++
	entry.lastAccess = now

	id := uuid.NewString()
	f.logger.Debug("session acquired",
		slog.String("session_id", id),
		slog.Int("refs", entry.refs),
	)
	return &Session{id: id, factory: f, entry: entry}
}

func (f *SessionFactory) release(entry *sessionEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry.refs--
	if entry.refs == 0 && entry.evicted {
		entry.engine.Close()
	}
}

// onEvict is only triggered from calls made with f.mu held.
func (f *SessionFactory) onEvict(partitionID string, entry *sessionEntry) {
	entry.evicted = true
	f.metrics.RecordCacheEvent(context.Background(), metrics.CacheSession, metrics.CacheEventEvict)
	if entry.refs == 0 {
		entry.engine.Close()
	}
}

// Session encrypts and decrypts for one partition. It is safe for concurrent use
// until Close.
type Session struct {
	id      string
	factory *SessionFactory
	entry   *sessionEntry
	closed  atomic.Bool
}

// ID identifies this handle in logs.
func (s *Session) ID() string {
	return s.id
}

// PartitionID returns the partition the session serves.
func (s *Session) PartitionID() string {
	return s.entry.partitionID
}

// Encrypt encrypts data for the session's partition.
func (s *Session) Encrypt(ctx context.Context, data []byte) (*cryptoDomain.DataRowRecord, error) {
	if s.closed.Load() {
		return nil, cryptoDomain.ErrSessionClosed
	}
	return s.entry.engine.Encrypt(ctx, data)
}

// Decrypt decrypts a record issued for the session's partition.
func (s *Session) Decrypt(ctx context.Context, drr *cryptoDomain.DataRowRecord) ([]byte, error) {
	if s.closed.Load() {
		return nil, cryptoDomain.ErrSessionClosed
	}
	return s.entry.engine.Decrypt(ctx, drr)
}

// Close releases the session's reference. It is safe to call more than once.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.factory.release(s.entry)
	}
}
