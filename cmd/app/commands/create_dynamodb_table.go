package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// TableCreator creates the metastore's backing table.
type TableCreator interface {
	CreateTable(ctx context.Context) error
	TableName() string
}

// RunCreateDynamoDBTable creates the DynamoDB metastore table. An existing table is not an error.
func RunCreateDynamoDBTable(ctx context.Context, creator TableCreator, logger *slog.Logger, writer io.Writer) error {
	logger.Info("creating dynamodb table", slog.String("table", creator.TableName()))

	if err := creator.CreateTable(ctx); err != nil {
		return fmt.Errorf("failed to create dynamodb table: %w", err)
	}

	_, _ = fmt.Fprintf(writer, "DynamoDB table %q is ready\n", creator.TableName())
	logger.Info("dynamodb table ready", slog.String("table", creator.TableName()))
	return nil
}
