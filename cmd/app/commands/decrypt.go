package commands

import (
	"bytes"
	"context"
	"fmt"
)

// JSONDecryptor decrypts a data row record given in its canonical JSON form.
type JSONDecryptor interface {
	DecryptJSON(ctx context.Context, partitionID string, record []byte) ([]byte, error)
}

// RunDecrypt decrypts record for partitionID and writes the plaintext as is.
// When record is empty it is read from io.Reader instead.
func RunDecrypt(ctx context.Context, decryptor JSONDecryptor, io IOTuple, partitionID, record string) error {
	input, err := inputOrReader(record, io.Reader)
	if err != nil {
		return err
	}

	input = bytes.TrimSpace(input)
	if len(input) == 0 {
		return fmt.Errorf("record is required")
	}

	plaintext, err := decryptor.DecryptJSON(ctx, partitionID, input)
	if err != nil {
		return fmt.Errorf("failed to decrypt: %w", err)
	}

	if _, err := io.Writer.Write(plaintext); err != nil {
		return fmt.Errorf("failed to write plaintext: %w", err)
	}
	return nil
}
