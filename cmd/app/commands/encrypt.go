package commands

import (
	"context"
	"fmt"
)

// JSONEncryptor encrypts a payload into the canonical data row record JSON.
type JSONEncryptor interface {
	EncryptJSON(ctx context.Context, partitionID string, data []byte) ([]byte, error)
}

// RunEncrypt encrypts data for partitionID and prints the resulting record.
// When data is empty the plaintext is read from io.Reader instead.
func RunEncrypt(ctx context.Context, encryptor JSONEncryptor, io IOTuple, partitionID, data string) error {
	plaintext, err := inputOrReader(data, io.Reader)
	if err != nil {
		return err
	}

	record, err := encryptor.EncryptJSON(ctx, partitionID, plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}

	_, _ = fmt.Fprintln(io.Writer, string(record))
	return nil
}
