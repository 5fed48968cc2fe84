package commands

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// RunCreateStaticMasterKey generates a random 32-byte master key for the static KMS
// and prints it as configuration. Key material is zeroed after encoding.
//
// The static KMS keeps the master key in process memory. Use it for tests and
// local development only.
func RunCreateStaticMasterKey(writer io.Writer, format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format: %s (valid options: text, json)", format)
	}

	masterKey := make([]byte, cryptoDomain.KeySize)
	defer cryptoDomain.Zero(masterKey)

	if _, err := rand.Read(masterKey); err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}

	keyID := uuid.NewString()
	encodedKey := base64.StdEncoding.EncodeToString(masterKey)

	if format == "json" {
		return writeJSON(writer, map[string]string{
			"id":                keyID,
			"kms":               "static",
			"static_master_key": encodedKey,
		})
	}

	_, _ = fmt.Fprintf(writer, "# Static KMS master key %s\n", keyID)
	_, _ = fmt.Fprintln(writer, "# For tests and local development only. Use the aws KMS in production.")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintln(writer, `ASHERAH_KMS="static"`)
	_, _ = fmt.Fprintf(writer, "ASHERAH_STATIC_MASTER_KEY=\"%s\"\n", encodedKey)
	return nil
}
