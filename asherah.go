// Package asherah is an application-layer envelope encryption engine.
//
// Payloads are encrypted with a fresh data row key, which is encrypted under a
// per-partition intermediate key, itself encrypted under a system key that a KMS
// protects. Intermediate and system keys are persisted in a metastore, cached,
// and rotated once they expire. Callers only see DataRowRecords.
//
//	h, err := asherah.Configure(ctx, asherah.Options{
//		ServiceName: "reports",
//		ProductID:   "billing",
//		KMS:         "aws",
//		Metastore:   "rdbms",
//		...
//	})
//	drr, err := h.Encrypt(ctx, "user-42", data)
//	plaintext, err := h.Decrypt(ctx, "user-42", drr)
//	err = h.Shutdown(ctx)
package asherah

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/allisson/asherah/internal/app"
	"github.com/allisson/asherah/internal/config"
	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	cryptoUseCase "github.com/allisson/asherah/internal/crypto/usecase"
)

// Options configures a Handle. See config.Config for every field.
type Options = config.Config

// DataRowRecord is the self-contained output of Encrypt.
type DataRowRecord = cryptoDomain.DataRowRecord

// EnvelopeKeyRecord is the encrypted data row key carried by a DataRowRecord.
type EnvelopeKeyRecord = cryptoDomain.EnvelopeKeyRecord

// KeyMeta identifies the intermediate key that encrypted a data row key.
type KeyMeta = cryptoDomain.KeyMeta

// Handle is a configured engine instance. It is safe for concurrent use.
//
// Shutdown waits for in-flight Encrypt and Decrypt calls, zeroes cached keys and
// releases the metastore and KMS. A shut down Handle may be configured again.
type Handle struct {
	mu        sync.RWMutex
	container *app.Container
	factory   *cryptoUseCase.SessionFactory
}

// New returns an unconfigured Handle.
func New() *Handle {
	return &Handle{}
}

// Configure returns a Handle configured with opts.
func Configure(ctx context.Context, opts Options) (*Handle, error) {
	h := New()
	if err := h.Configure(ctx, opts); err != nil {
		return nil, err
	}
	return h, nil
}

// Configure validates opts and builds the metastore, KMS and session registry.
// It fails with ErrAlreadyInitialized until Shutdown is called, and with
// ErrBadConfig when opts are invalid or a backend cannot be set up.
func (h *Handle) Configure(ctx context.Context, opts Options) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.factory != nil {
		return ErrAlreadyInitialized
	}

	if err := opts.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	container := app.NewContainer(&opts)
	factory, err := container.SessionFactory(ctx)
	if err != nil {
		_ = container.Shutdown(ctx)
		return fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	cfg := container.Config()
	container.Logger().Info("asherah configured",
		"service", cfg.ServiceName,
		"product", cfg.ProductID,
		"kms", cfg.KMS,
		"metastore", cfg.Metastore,
		"session_caching", cfg.SessionCachingEnabled(),
	)

	h.container = container
	h.factory = factory
	return nil
}

// Encrypt encrypts data for partitionID.
func (h *Handle) Encrypt(ctx context.Context, partitionID string, data []byte) (*DataRowRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, err := h.session(ctx, partitionID)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	drr, err := session.Encrypt(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryptFailed, err)
	}
	return drr, nil
}

// Decrypt returns the plaintext of a record that Encrypt produced for partitionID.
func (h *Handle) Decrypt(ctx context.Context, partitionID string, drr *DataRowRecord) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, err := h.session(ctx, partitionID)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	data, err := session.Decrypt(ctx, drr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	return data, nil
}

// EncryptJSON encrypts data and returns the record in its canonical JSON form.
func (h *Handle) EncryptJSON(ctx context.Context, partitionID string, data []byte) ([]byte, error) {
	drr, err := h.Encrypt(ctx, partitionID, data)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(drr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryptFailed, err)
	}
	return out, nil
}

// DecryptJSON decrypts a record given in its canonical JSON form. The input must
// be a JSON object no larger than 10 MiB.
func (h *Handle) DecryptJSON(ctx context.Context, partitionID string, record []byte) ([]byte, error) {
	h.mu.RLock()
	initialized := h.factory != nil
	h.mu.RUnlock()
	if !initialized {
		return nil, ErrNotInitialized
	}

	drr, err := cryptoDomain.ParseDataRowRecord(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	return h.Decrypt(ctx, partitionID, drr)
}

// Shutdown zeroes cached keys and closes the metastore and KMS.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.factory == nil {
		return ErrNotInitialized
	}

	logger := h.container.Logger()
	err := h.container.Shutdown(ctx)
	h.container = nil
	h.factory = nil

	if err != nil {
		logger.Error("asherah shutdown failed", "error", err)
		return err
	}
	logger.Info("asherah shut down")
	return nil
}

// MetricsHandler serves the engine's metrics in Prometheus exposition format.
// It returns nil when the Handle is not configured or metrics are disabled.
func (h *Handle) MetricsHandler() http.Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.container == nil {
		return nil
	}
	provider, err := h.container.MetricsProvider()
	if err != nil || provider == nil {
		return nil
	}
	return provider.Handler()
}

// session must be called with h.mu held for reading.
func (h *Handle) session(ctx context.Context, partitionID string) (*cryptoUseCase.Session, error) {
	if h.factory == nil {
		return nil, ErrNotInitialized
	}

	session, err := h.factory.GetSession(ctx, partitionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGetSessionFailed, err)
	}
	return session, nil
}
