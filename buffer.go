package asherah

import (
	"encoding/base64"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

const (
	// envelopeOverhead covers the JSON field names, the two Created values and the
	// "_IK_" prefix and separators of the parent key ID in a serialized DataRowRecord.
	envelopeOverhead = 256

	// maxEscapedByteLen is the longest JSON encoding of a single input byte
	// (`\u003c` for '<', `\ufffd` for an invalid UTF-8 byte).
	maxEscapedByteLen = 6
)

// EstimateBufferSize returns an upper bound on the size of the JSON record
// EncryptJSON produces for dataLen bytes of plaintext under a partition ID of
// partitionLen bytes, for a service name and product ID of serviceLen and
// productLen bytes. A region suffix, when enabled, counts towards productLen
// together with its separator. It is meant for pre-sizing output buffers.
func EstimateBufferSize(dataLen, partitionLen, serviceLen, productLen int) int {
	sealedData := dataLen + cryptoDomain.NonceSize + cryptoDomain.TagSize
	sealedKey := cryptoDomain.KeySize + cryptoDomain.NonceSize + cryptoDomain.TagSize

	return envelopeOverhead +
		base64.StdEncoding.EncodedLen(sealedData) +
		base64.StdEncoding.EncodedLen(sealedKey) +
		maxEscapedByteLen*(partitionLen+serviceLen+productLen)
}

// EstimateBufferSize is EstimateBufferSize with the service name, product ID and
// region suffix the Handle was configured with. An unconfigured Handle budgets
// none of them.
func (h *Handle) EstimateBufferSize(dataLen, partitionLen int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.container == nil {
		return EstimateBufferSize(dataLen, partitionLen, 0, 0)
	}

	cfg := h.container.Config()
	productLen := len(cfg.ProductID)
	if suffix := h.factory.RegionSuffix(); suffix != "" {
		productLen += 1 + len(suffix)
	}
	return EstimateBufferSize(dataLen, partitionLen, len(cfg.ServiceName), productLen)
}
