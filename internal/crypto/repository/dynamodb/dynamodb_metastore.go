// Package dynamodb implements the envelope key Metastore on Amazon DynamoDB.
//
// Records live in a table keyed by Id (hash, string) and Created (range, number).
// The key record is stored as a map attribute so other Asherah implementations
// can read it.
package dynamodb

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
)

// DefaultTableName is used when no table name is configured.
const DefaultTableName = "EncryptionKey"

const (
	attrID            = "Id"
	attrCreated       = "Created"
	attrKeyRecord     = "KeyRecord"
	attrKey           = "Key"
	attrRevoked       = "Revoked"
	attrParentKeyMeta = "ParentKeyMeta"
	attrParentKeyID   = "KeyId"
)

// Client is the subset of the DynamoDB API used by the metastore.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// ClientConfig selects the region and endpoint of the DynamoDB client.
type ClientConfig struct {
	Region   string
	Endpoint string
}

// NewClient builds a DynamoDB client from the default AWS credential chain.
//
// With a custom endpoint (DynamoDB Local, LocalStack) and no AWS_ACCESS_KEY_ID in
// the environment, static dummy credentials are used.
func NewClient(ctx context.Context, cfg ClientConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// DynamoDBMetastore stores envelope key records in a DynamoDB table.
type DynamoDBMetastore struct {
	client       Client
	tableName    string
	region       string
	regionSuffix bool
}

// Option configures a DynamoDBMetastore.
type Option func(*DynamoDBMetastore)

// WithTableName overrides DefaultTableName.
func WithTableName(name string) Option {
	return func(m *DynamoDBMetastore) {
		if name != "" {
			m.tableName = name
		}
	}
}

// WithRegionSuffix makes RegionSuffix report region, so new intermediate and
// system key IDs are suffixed with it. Used with global tables.
func WithRegionSuffix(region string) Option {
	return func(m *DynamoDBMetastore) {
		m.region = region
		m.regionSuffix = true
	}
}

// NewDynamoDBMetastore creates a DynamoDB metastore.
func NewDynamoDBMetastore(client Client, opts ...Option) *DynamoDBMetastore {
	m := &DynamoDBMetastore{client: client, tableName: DefaultTableName}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TableName returns the table records are written to.
func (m *DynamoDBMetastore) TableName() string {
	return m.tableName
}

// RegionSuffix returns the suffix appended to key IDs, or "" when disabled.
func (m *DynamoDBMetastore) RegionSuffix() string {
	if !m.regionSuffix {
		return ""
	}
	return m.region
}

// Load retrieves the record stored for (id, created), or nil.
func (m *DynamoDBMetastore) Load(
	ctx context.Context,
	id string,
	created int64,
) (*cryptoDomain.EnvelopeKeyRecord, error) {
	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(m.tableName),
		Key: map[string]types.AttributeValue{
			attrID:      &types.AttributeValueMemberS{Value: id},
			attrCreated: numberValue(created),
		},
		ProjectionExpression:     aws.String("#record"),
		ExpressionAttributeNames: map[string]string{"#record": attrKeyRecord},
		ConsistentRead:           aws.Bool(true),
	})
	if err != nil {
		return nil, wrapError(err, "failed to load key %s", id)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decodeItem(id, created, out.Item)
}

// LoadLatest retrieves the newest record for id, or nil.
func (m *DynamoDBMetastore) LoadLatest(ctx context.Context, id string) (*cryptoDomain.EnvelopeKeyRecord, error) {
	out, err := m.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(m.tableName),
		KeyConditionExpression: aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]string{
			"#id": attrID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return nil, wrapError(err, "failed to load latest key %s", id)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}

	item := out.Items[0]
	created, err := parseNumber(item[attrCreated])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", cryptoDomain.ErrInvalidKeyRecord, id, err)
	}
	return decodeItem(id, created, item)
}

// Store puts record under (id, created) unless that item already exists.
func (m *DynamoDBMetastore) Store(
	ctx context.Context,
	id string,
	created int64,
	record *cryptoDomain.EnvelopeKeyRecord,
) (bool, error) {
	_, err := m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.tableName),
		Item: map[string]types.AttributeValue{
			attrID:        &types.AttributeValueMemberS{Value: id},
			attrCreated:   numberValue(created),
			attrKeyRecord: &types.AttributeValueMemberM{Value: encodeKeyRecord(created, record)},
		},
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": attrID},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, wrapError(err, "failed to store key %s", id)
	}
	return true, nil
}

// CreateTable creates the metastore table with on-demand billing.
// An existing table is not an error.
func (m *DynamoDBMetastore) CreateTable(ctx context.Context) error {
	_, err := m.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(m.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrCreated), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrID), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrCreated), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("failed to create table %s: %w", m.tableName, err)
	}
	return nil
}

func encodeKeyRecord(created int64, record *cryptoDomain.EnvelopeKeyRecord) map[string]types.AttributeValue {
	attrs := map[string]types.AttributeValue{
		attrKey:     &types.AttributeValueMemberS{Value: base64.StdEncoding.EncodeToString(record.EncryptedKey)},
		attrCreated: numberValue(created),
	}
	if record.Revoked {
		attrs[attrRevoked] = &types.AttributeValueMemberBOOL{Value: true}
	}
	if record.ParentKeyMeta != nil {
		attrs[attrParentKeyMeta] = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			attrParentKeyID: &types.AttributeValueMemberS{Value: record.ParentKeyMeta.ID},
			attrCreated:     numberValue(record.ParentKeyMeta.Created),
		}}
	}
	return attrs
}

func decodeItem(id string, created int64, item map[string]types.AttributeValue) (*cryptoDomain.EnvelopeKeyRecord, error) {
	record, err := decodeKeyRecord(item[attrKeyRecord])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", cryptoDomain.ErrInvalidKeyRecord, id, err)
	}
	record.ID = id
	if record.Created == 0 {
		record.Created = created
	}
	return record, nil
}

func decodeKeyRecord(av types.AttributeValue) (*cryptoDomain.EnvelopeKeyRecord, error) {
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, errors.New("key record is not a map")
	}

	keyAttr, ok := m.Value[attrKey].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("key attribute is missing")
	}
	key, err := base64.StdEncoding.DecodeString(keyAttr.Value)
	if err != nil {
		return nil, fmt.Errorf("key attribute is not base64: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("key attribute is empty")
	}

	record := &cryptoDomain.EnvelopeKeyRecord{EncryptedKey: key}
	if attr, ok := m.Value[attrCreated]; ok {
		if record.Created, err = parseNumber(attr); err != nil {
			return nil, err
		}
	}
	if revoked, ok := m.Value[attrRevoked].(*types.AttributeValueMemberBOOL); ok {
		record.Revoked = revoked.Value
	}

	if parentAttr, ok := m.Value[attrParentKeyMeta]; ok {
		parent, ok := parentAttr.(*types.AttributeValueMemberM)
		if !ok {
			return nil, errors.New("parent key meta is not a map")
		}
		parentID, ok := parent.Value[attrParentKeyID].(*types.AttributeValueMemberS)
		if !ok {
			return nil, errors.New("parent key id is missing")
		}
		parentCreated, err := parseNumber(parent.Value[attrCreated])
		if err != nil {
			return nil, err
		}
		record.ParentKeyMeta = &cryptoDomain.KeyMeta{ID: parentID.Value, Created: parentCreated}
	}

	return record, nil
}

func numberValue(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func parseNumber(av types.AttributeValue) (int64, error) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("expected a number attribute")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

// wrapError classifies every DynamoDB failure as metastore unavailability,
// keeping the API error code in the message.
func wrapError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %s: %w", cryptoDomain.ErrMetastoreUnavailable, msg, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%w: %s: %w", cryptoDomain.ErrMetastoreUnavailable, msg, err)
}
