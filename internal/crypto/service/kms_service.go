package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"gocloud.dev/secrets"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// KMSService opens gocloud.dev/secrets keepers from key URIs.
type KMSService interface {
	// OpenKeeper opens a keeper for keyURI.
	// Returns an error if the URI is invalid or the provider cannot be reached.
	OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error)
}

// kmsService implements KMSService using gocloud.dev/secrets.
type kmsService struct{}

// NewKMSService creates a new KMS service instance.
func NewKMSService() KMSService {
	return &kmsService{}
}

// OpenKeeper opens a secrets.Keeper for keyURI.
// Supports: awskms://, gcpkms://, azurekeyvault://, hashivault://, base64key://
func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// LocalKeeperURI returns the localsecrets URI for a raw 32-byte key.
func LocalKeeperURI(key []byte) string {
	return "base64key://" + base64.URLEncoding.EncodeToString(key)
}

// RegionKeeperURI returns the keeper URI for one region map entry.
//
// An AWS KMS key ARN becomes an awskms URL pinned to the region. Values that
// already are keeper URIs (gcpkms://, hashivault://, ...) are used as is.
func RegionKeeperURI(region, arn string) string {
	if strings.Contains(arn, "://") {
		return arn
	}
	return "awskms:///" + arn + "?region=" + url.QueryEscape(region)
}
