package domain

import (
	"fmt"
	"strings"
)

const (
	systemKeyPrefix       = "_SK_"
	intermediateKeyPrefix = "_IK_"
)

// Partition scopes intermediate keys to a partition ID within a service and product.
//
// Suffix is the optional region suffix used by the DynamoDB metastore when
// region suffixes are enabled; new intermediate keys carry it, and keys written
// without it are still accepted on decrypt.
type Partition struct {
	ID      string
	Service string
	Product string
	Suffix  string
}

// NewPartition validates the partition ID and returns a Partition.
func NewPartition(id, service, product, suffix string) (Partition, error) {
	if err := ValidatePartitionID(id); err != nil {
		return Partition{}, err
	}
	return Partition{ID: id, Service: service, Product: product, Suffix: suffix}, nil
}

// ValidatePartitionID rejects empty IDs and IDs longer than MaxPartitionIDLength bytes.
func ValidatePartitionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: partition id is empty", ErrInvalidPartitionID)
	}
	if len(id) > MaxPartitionIDLength {
		return fmt.Errorf(
			"%w: partition id is %d bytes, limit is %d",
			ErrInvalidPartitionID,
			len(id),
			MaxPartitionIDLength,
		)
	}
	return nil
}

// SystemKeyID returns the system key ID shared by every partition of the service/product.
func (p Partition) SystemKeyID() string {
	return systemKeyPrefix + p.Service + "_" + p.Product + p.suffix()
}

// IntermediateKeyID returns the ID under which this partition's intermediate keys are stored.
func (p Partition) IntermediateKeyID() string {
	return intermediateKeyPrefix + p.ID + "_" + p.Service + "_" + p.Product + p.suffix()
}

// IsValidIntermediateKeyID reports whether id names an intermediate key of this partition.
// With a region suffix configured, keys written under any region's suffix are accepted.
// A region suffix never contains "_", so IDs of partitions whose ID extends this one
// (and therefore carry "_<service>_<product>" after the shared prefix) are rejected.
func (p Partition) IsValidIntermediateKeyID(id string) bool {
	base := intermediateKeyPrefix + p.ID + "_" + p.Service + "_" + p.Product
	if id == base {
		return true
	}
	if p.Suffix == "" {
		return false
	}

	region, ok := strings.CutPrefix(id, base+"_")
	return ok && region != "" && !strings.Contains(region, "_")
}

func (p Partition) suffix() string {
	if p.Suffix == "" {
		return ""
	}
	return "_" + p.Suffix
}
