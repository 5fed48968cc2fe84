package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gocloud.dev/gcerrors"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/retry"
)

// RegionKeeper is the KMS key of one region.
type RegionKeeper struct {
	Region string
	ARN    string
	Keeper KMSKeeper
}

// multiRegionEnvelope is the stored form of a system key protected by AWSKMS.
// The system key is encrypted under a data key, and the data key is wrapped
// once per region so any single region can recover it.
type multiRegionEnvelope struct {
	EncryptedKey []byte      `json:"encryptedKey"`
	KMSKEKs      []regionKEK `json:"kmsKeks"`
}

type regionKEK struct {
	Region       string `json:"region"`
	ARN          string `json:"arn"`
	EncryptedKEK []byte `json:"encryptedKek"`
}

// AWSKMS protects system keys with KMS keys in several regions.
//
// Keepers are ordered with the preferred region first, then the remaining
// regions sorted by name. Both wrapping and unwrapping walk that order.
type AWSKMS struct {
	keepers    []RegionKeeper
	keyManager KeyManager
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewAWSKMS opens one keeper per regionMap entry. regionMap maps region to key ARN
// (or to any keeper URI); preferredRegion must be one of its keys.
func NewAWSKMS(
	ctx context.Context,
	kmsService KMSService,
	keyManager KeyManager,
	regionMap map[string]string,
	preferredRegion string,
	logger *slog.Logger,
) (*AWSKMS, error) {
	if len(regionMap) == 0 {
		return nil, errors.New("region map is empty")
	}
	if _, ok := regionMap[preferredRegion]; !ok {
		return nil, fmt.Errorf("preferred region %q is not in the region map", preferredRegion)
	}

	regions := make([]string, 0, len(regionMap))
	for region := range regionMap {
		if region != preferredRegion {
			regions = append(regions, region)
		}
	}
	sort.Strings(regions)
	regions = append([]string{preferredRegion}, regions...)

	keepers := make([]RegionKeeper, 0, len(regions))
	for _, region := range regions {
		arn := regionMap[region]
		keeper, err := kmsService.OpenKeeper(ctx, RegionKeeperURI(region, arn))
		if err != nil {
			for _, opened := range keepers {
				_ = opened.Keeper.Close()
			}
			return nil, fmt.Errorf("failed to open keeper for region %s: %w", region, err)
		}
		keepers = append(keepers, RegionKeeper{Region: region, ARN: arn, Keeper: keeper})
	}

	retrier := retry.New("kms_decrypt", retry.DefaultPolicy, isRetryableKMSError, logger)
	return NewAWSKMSWithKeepers(keepers, keyManager, retrier, logger), nil
}

// NewAWSKMSWithKeepers builds an AWSKMS over already opened keepers, preferred region first.
func NewAWSKMSWithKeepers(
	keepers []RegionKeeper,
	keyManager KeyManager,
	retrier *retry.Retrier,
	logger *slog.Logger,
) *AWSKMS {
	if logger == nil {
		logger = slog.Default()
	}
	return &AWSKMS{
		keepers:    keepers,
		keyManager: keyManager,
		retrier:    retrier,
		logger:     logger,
	}
}

// EncryptKey encrypts key under a fresh data key and wraps the data key in every region
// that answers. It fails only when no region could wrap the data key.
func (a *AWSKMS) EncryptKey(ctx context.Context, key []byte) ([]byte, error) {
	dataKey, err := a.keyManager.GenerateKey(0)
	if err != nil {
		return nil, err
	}
	defer dataKey.Close()

	encryptedKey, err := a.keyManager.EncryptData(key, dataKey)
	if err != nil {
		return nil, err
	}

	var keks []regionKEK
	var errs []error
	err = dataKey.WithBytes(func(dataKeyBytes []byte) error {
		for _, rk := range a.keepers {
			wrapped, err := rk.Keeper.Encrypt(ctx, dataKeyBytes)
			if err != nil {
				a.logger.Warn("kms region failed to wrap key",
					slog.String("region", rk.Region),
					slog.Any("error", err),
				)
				errs = append(errs, fmt.Errorf("%s: %w", rk.Region, err))
				continue
			}
			keks = append(keks, regionKEK{Region: rk.Region, ARN: rk.ARN, EncryptedKEK: wrapped})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(keks) == 0 {
		return nil, fmt.Errorf("%w: %w", cryptoDomain.ErrKMSUnavailable, errors.Join(errs...))
	}

	return json.Marshal(multiRegionEnvelope{EncryptedKey: encryptedKey, KMSKEKs: keks})
}

// DecryptKey unwraps the data key using the first region that succeeds, trying the
// preferred region first, and decrypts the system key with it.
func (a *AWSKMS) DecryptKey(ctx context.Context, encrypted []byte) ([]byte, error) {
	var envelope multiRegionEnvelope
	if err := json.Unmarshal(encrypted, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidKeyRecord, err)
	}

	byRegion := make(map[string]regionKEK, len(envelope.KMSKEKs))
	for _, kek := range envelope.KMSKEKs {
		byRegion[kek.Region] = kek
	}

	var errs []error
	for _, rk := range a.keepers {
		kek, ok := byRegion[rk.Region]
		if !ok {
			continue
		}

		dataKeyBytes, err := retry.Do(ctx, a.retrier, func(ctx context.Context) ([]byte, error) {
			return rk.Keeper.Decrypt(ctx, kek.EncryptedKEK)
		})
		if err != nil {
			a.logger.Warn("kms region failed to unwrap key, trying next region",
				slog.String("region", rk.Region),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", rk.Region, err))
			continue
		}

		dataKey := cryptoDomain.NewCryptoKey(dataKeyBytes, 0, false)
		key, err := a.keyManager.DecryptData(envelope.EncryptedKey, dataKey)
		dataKey.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rk.Region, err))
			continue
		}
		return key, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no configured region can unwrap the key", cryptoDomain.ErrKMSUnavailable)
	}
	return nil, fmt.Errorf("%w: %w", cryptoDomain.ErrKMSUnavailable, errors.Join(errs...))
}

// Close releases every region keeper.
func (a *AWSKMS) Close() error {
	var errs []error
	for _, rk := range a.keepers {
		if err := rk.Keeper.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rk.Region, err))
		}
	}
	return errors.Join(errs...)
}

// isRetryableKMSError reports whether a keeper error may succeed on another attempt.
func isRetryableKMSError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch gcerrors.Code(err) {
	case gcerrors.InvalidArgument,
		gcerrors.PermissionDenied,
		gcerrors.NotFound,
		gcerrors.FailedPrecondition,
		gcerrors.Canceled:
		return false
	default:
		return true
	}
}
