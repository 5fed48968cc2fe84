package app

import (
	"context"
	"fmt"
	"sync"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/crypto/repository"
	cryptoDynamoDB "github.com/allisson/asherah/internal/crypto/repository/dynamodb"
	cryptoMySQL "github.com/allisson/asherah/internal/crypto/repository/mysql"
	cryptoPostgreSQL "github.com/allisson/asherah/internal/crypto/repository/postgresql"
	cryptoService "github.com/allisson/asherah/internal/crypto/service"
	cryptoUseCase "github.com/allisson/asherah/internal/crypto/usecase"
	"github.com/allisson/asherah/internal/config"
	"github.com/allisson/asherah/internal/database"
	"github.com/allisson/asherah/internal/retry"
)

// cryptoComponents are the envelope encryption parts of the Container.
type cryptoComponents struct {
	aeadManager       cryptoService.AEADManager
	keyManager        cryptoService.KeyManager
	kmsService        cryptoService.KMSService
	kms               cryptoService.KeyManagementService
	dynamoDBMetastore *cryptoDynamoDB.DynamoDBMetastore
	metastore         cryptoUseCase.Metastore
	sessionFactory    *cryptoUseCase.SessionFactory

	aeadManagerInit       sync.Once
	keyManagerInit        sync.Once
	kmsServiceInit        sync.Once
	kmsInit               sync.Once
	dynamoDBMetastoreInit sync.Once
	metastoreInit         sync.Once
	sessionFactoryInit    sync.Once
}

// CryptoPolicy returns the key rotation and payload policy from configuration.
func (c *Container) CryptoPolicy() (*cryptoDomain.CryptoPolicy, error) {
	alg, err := cryptoDomain.ParseAlgorithm(c.config.Algorithm)
	if err != nil {
		return nil, err
	}
	return cryptoDomain.NewCryptoPolicy(
		c.config.ExpireAfter,
		c.config.CheckInterval,
		c.config.MaxDataSize,
		alg,
	), nil
}

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// KeyManager returns the key manager service for the configured algorithm.
func (c *Container) KeyManager() (cryptoService.KeyManager, error) {
	return initOnce(c, &c.keyManagerInit, "keyManager", &c.keyManager, c.initKeyManager)
}

// KMSService returns the gocloud keeper opener.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// KMS returns the configured key management service, decorated with a call
// timeout and metrics. Keepers are opened within ctx on first access.
func (c *Container) KMS(ctx context.Context) (cryptoService.KeyManagementService, error) {
	return initOnce(c, &c.kmsInit, "kms", &c.kms, func() (cryptoService.KeyManagementService, error) {
		return c.initKMS(ctx)
	})
}

// DynamoDBMetastore returns the undecorated DynamoDB metastore. It is built
// regardless of the configured metastore type so operators can create its table.
func (c *Container) DynamoDBMetastore(ctx context.Context) (*cryptoDynamoDB.DynamoDBMetastore, error) {
	return initOnce(c, &c.dynamoDBMetastoreInit, "dynamoDBMetastore", &c.dynamoDBMetastore,
		func() (*cryptoDynamoDB.DynamoDBMetastore, error) {
			return c.initDynamoDBMetastore(ctx)
		},
	)
}

// Metastore returns the configured metastore, decorated with retries, a call
// timeout and metrics.
func (c *Container) Metastore(ctx context.Context) (cryptoUseCase.Metastore, error) {
	return initOnce(c, &c.metastoreInit, "metastore", &c.metastore, func() (cryptoUseCase.Metastore, error) {
		return c.initMetastore(ctx)
	})
}

// SessionFactory returns the session factory serving Encrypt and Decrypt.
// Backend setup on first access (database ping, KMS keepers, DynamoDB client)
// is bounded by ctx.
func (c *Container) SessionFactory(ctx context.Context) (*cryptoUseCase.SessionFactory, error) {
	return initOnce(c, &c.sessionFactoryInit, "sessionFactory", &c.sessionFactory,
		func() (*cryptoUseCase.SessionFactory, error) {
			return c.initSessionFactory(ctx)
		},
	)
}

// initKeyManager creates the key manager using the AEAD manager.
func (c *Container) initKeyManager() (cryptoService.KeyManager, error) {
	policy, err := c.CryptoPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to build crypto policy: %w", err)
	}
	return cryptoService.NewKeyManager(c.AEADManager(), policy.Algorithm), nil
}

// initKMS creates the static or multi-region KMS.
func (c *Container) initKMS(ctx context.Context) (cryptoService.KeyManagementService, error) {
	logger := c.Logger()

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for kms: %w", err)
	}

	var kms cryptoService.KeyManagementService
	switch c.config.KMSType() {
	case config.KMSStatic:
		logger.Warn("using static KMS: the master key is held in process memory, never use it in production")

		masterKey, err := cryptoDomain.NewStaticMasterKey(c.config.StaticMasterKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load static master key: %w", err)
		}
		defer masterKey.Close()

		kms, err = cryptoService.NewStaticKMS(ctx, c.KMSService(), masterKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create static kms: %w", err)
		}
	case config.KMSAWS:
		keyManager, err := c.KeyManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get key manager for kms: %w", err)
		}

		kms, err = cryptoService.NewAWSKMS(
			ctx,
			c.KMSService(),
			keyManager,
			c.config.RegionMap,
			c.config.PreferredRegion,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create aws kms: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported kms: %s", c.config.KMS)
	}

	kms = cryptoService.NewKMSWithTimeout(kms, c.config.KMSTimeout)
	return cryptoService.NewKMSWithMetrics(kms, businessMetrics), nil
}

// initDynamoDBMetastore creates the DynamoDB client and metastore.
func (c *Container) initDynamoDBMetastore(ctx context.Context) (*cryptoDynamoDB.DynamoDBMetastore, error) {
	region := c.dynamoDBRegion()

	client, err := cryptoDynamoDB.NewClient(ctx, cryptoDynamoDB.ClientConfig{
		Region:   region,
		Endpoint: c.config.DynamoDBEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamodb client: %w", err)
	}

	opts := []cryptoDynamoDB.Option{cryptoDynamoDB.WithTableName(c.config.DynamoDBTableName)}
	if c.config.EnableRegionSuffix {
		opts = append(opts, cryptoDynamoDB.WithRegionSuffix(region))
	}
	return cryptoDynamoDB.NewDynamoDBMetastore(client, opts...), nil
}

// initMetastore creates the metastore selected by configuration.
func (c *Container) initMetastore(ctx context.Context) (cryptoUseCase.Metastore, error) {
	var metastore cryptoUseCase.Metastore

	switch c.config.MetastoreType() {
	case config.MetastoreMemory:
		metastore = repository.NewMemoryMetastore()
	case config.MetastoreRDBMS:
		sqlMetastore, err := c.initSQLMetastore(ctx)
		if err != nil {
			return nil, err
		}
		metastore = sqlMetastore
	case config.MetastoreDynamoDB:
		dynamoDBMetastore, err := c.DynamoDBMetastore(ctx)
		if err != nil {
			return nil, err
		}
		metastore = dynamoDBMetastore
	default:
		return nil, fmt.Errorf("unsupported metastore: %s", c.config.Metastore)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for metastore: %w", err)
	}

	metastore = cryptoUseCase.NewMetastoreWithRetry(
		metastore,
		c.config.MetastoreTimeout,
		retry.DefaultPolicy,
		c.Logger(),
	)
	return cryptoUseCase.NewMetastoreWithMetrics(metastore, businessMetrics), nil
}

// initSQLMetastore creates the MySQL or PostgreSQL metastore based on the SQL driver.
func (c *Container) initSQLMetastore(ctx context.Context) (cryptoUseCase.Metastore, error) {
	db, err := c.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get database for metastore: %w", err)
	}

	txManager, err := c.TxManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for metastore: %w", err)
	}

	driver, err := database.NormalizeDriver(c.config.SQLDriver)
	if err != nil {
		return nil, err
	}

	switch driver {
	case database.DriverPostgres:
		return cryptoPostgreSQL.NewPostgreSQLMetastore(db, txManager), nil
	default:
		return cryptoMySQL.NewMySQLMetastore(db, txManager, c.config.ReplicaReadConsistency)
	}
}

// initSessionFactory creates the session factory with all its dependencies.
func (c *Container) initSessionFactory(ctx context.Context) (*cryptoUseCase.SessionFactory, error) {
	policy, err := c.CryptoPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to build crypto policy: %w", err)
	}

	metastore, err := c.Metastore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get metastore for session factory: %w", err)
	}

	kms, err := c.KMS(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get kms for session factory: %w", err)
	}

	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get key manager for session factory: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for session factory: %w", err)
	}

	regionSuffix := ""
	if c.config.MetastoreType() == config.MetastoreDynamoDB && c.config.EnableRegionSuffix {
		regionSuffix = c.dynamoDBRegion()
	}

	factory, err := cryptoUseCase.NewSessionFactory(
		cryptoUseCase.SessionFactoryConfig{
			ServiceName:          c.config.ServiceName,
			ProductID:            c.config.ProductID,
			RegionSuffix:         regionSuffix,
			Policy:               policy,
			CacheSessions:        c.config.SessionCachingEnabled(),
			SessionCacheMaxSize:  c.config.SessionCacheMaxSize,
			SessionCacheDuration: c.config.SessionCacheDuration,
		},
		metastore,
		kms,
		keyManager,
		businessMetrics,
		c.Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session factory: %w", err)
	}
	return factory, nil
}

// dynamoDBRegion is the DynamoDB region, falling back to the preferred KMS region.
func (c *Container) dynamoDBRegion() string {
	if c.config.DynamoDBRegion != "" {
		return c.config.DynamoDBRegion
	}
	return c.config.PreferredRegion
}
