// Package config holds the engine configuration and loads it from environment variables.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/go-env"
	validation "github.com/jellydator/validation"
	"github.com/joho/godotenv"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	appvalidation "github.com/allisson/asherah/internal/validation"
)

// KMS types.
const (
	KMSStatic          = "static"
	KMSAWS             = "aws"
	KMSTestDebugStatic = "test-debug-static"
)

// Metastore types.
const (
	MetastoreRDBMS           = "rdbms"
	MetastoreDynamoDB        = "dynamodb"
	MetastoreMemory          = "memory"
	MetastoreTestDebugMemory = "test-debug-memory"
)

// Defaults applied by WithDefaults.
const (
	DefaultSessionCacheMaxSize  = 1000
	DefaultSessionCacheDuration = 2 * time.Hour
	DefaultTimeout              = 10 * time.Second
	DefaultDynamoDBTableName    = "EncryptionKey"
	DefaultMetricsNamespace     = "asherah"
)

// Config holds every engine setting.
//
// JSON field names follow the Asherah configuration contract. ExpireAfter,
// CheckInterval and SessionCacheDuration are encoded in JSON as whole seconds.
type Config struct {
	// KMS selects the master key provider: static or aws.
	KMS string `json:"KMS"`
	// Metastore selects where key records are persisted: rdbms, dynamodb or memory.
	Metastore string `json:"Metastore"`
	// ServiceName is the name of the service using the engine.
	ServiceName string `json:"ServiceName"`
	// ProductID is the name of the product that owns the service.
	ProductID string `json:"ProductID"`

	// ConnectionString is the database DSN, required with the rdbms metastore.
	ConnectionString string `json:"ConnectionString,omitempty"`
	// SQLDriver is mysql (default) or postgres.
	SQLDriver string `json:"SQLDriver,omitempty"`
	// ReplicaReadConsistency is eventual, global or session, for Aurora MySQL write forwarding.
	ReplicaReadConsistency string `json:"ReplicaReadConsistency,omitempty"`
	// DBMaxOpenConnections is the maximum number of open connections to the database.
	DBMaxOpenConnections int `json:"DBMaxOpenConnections,omitempty"`
	// DBMaxIdleConnections is the maximum number of idle connections in the database pool.
	DBMaxIdleConnections int `json:"DBMaxIdleConnections,omitempty"`
	// DBConnMaxLifetime is the maximum amount of time a connection may be reused.
	DBConnMaxLifetime time.Duration `json:"-"`

	DynamoDBEndpoint   string `json:"DynamoDBEndpoint,omitempty"`
	DynamoDBRegion     string `json:"DynamoDBRegion,omitempty"`
	DynamoDBTableName  string `json:"DynamoDBTableName,omitempty"`
	EnableRegionSuffix bool   `json:"EnableRegionSuffix,omitempty"`

	// RegionMap maps AWS regions to KMS key ARNs (or any gocloud keeper URI).
	RegionMap map[string]string `json:"RegionMap,omitempty"`
	// PreferredRegion is tried first for every KMS call.
	PreferredRegion string `json:"PreferredRegion,omitempty"`
	// StaticMasterKey overrides the well-known static KMS key: 32 bytes or base64 of 32 bytes.
	StaticMasterKey string `json:"StaticMasterKey,omitempty"`

	SessionCacheMaxSize  int           `json:"SessionCacheMaxSize,omitempty"`
	SessionCacheDuration time.Duration `json:"-"`
	// EnableSessionCaching defaults to true when nil.
	EnableSessionCaching *bool `json:"EnableSessionCaching,omitempty"`

	// ExpireAfter is how long a key stays current before rotation.
	ExpireAfter time.Duration `json:"-"`
	// CheckInterval is how long a cached key is trusted before re-reading the metastore.
	CheckInterval time.Duration `json:"-"`
	// Algorithm is aes-gcm (default) or chacha20-poly1305.
	Algorithm string `json:"Algorithm,omitempty"`
	// MaxDataSize bounds a single payload in bytes.
	MaxDataSize int `json:"MaxDataSize,omitempty"`

	MetastoreTimeout time.Duration `json:"-"`
	KMSTimeout       time.Duration `json:"-"`

	MetricsEnabled   bool   `json:"MetricsEnabled,omitempty"`
	MetricsNamespace string `json:"MetricsNamespace,omitempty"`

	// Verbose enables debug logging.
	Verbose bool `json:"Verbose,omitempty"`
	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string `json:"LogLevel,omitempty"`
	// Logger replaces the JSON logger built from Verbose and LogLevel.
	Logger *slog.Logger `json:"-"`
}

// jsonDurations carries the duration fields in their JSON encoding.
type jsonDurations struct {
	SessionCacheDuration int64 `json:"SessionCacheDuration,omitempty"`
	ExpireAfter          int64 `json:"ExpireAfter,omitempty"`
	CheckInterval        int64 `json:"CheckInterval,omitempty"`
	MetastoreTimeout     int64 `json:"MetastoreTimeout,omitempty"`
	KMSTimeout           int64 `json:"KMSTimeout,omitempty"`
}

// MarshalJSON encodes durations as whole seconds.
func (c Config) MarshalJSON() ([]byte, error) {
	type plain Config
	return json.Marshal(struct {
		plain
		jsonDurations
	}{
		plain: plain(c),
		jsonDurations: jsonDurations{
			SessionCacheDuration: int64(c.SessionCacheDuration / time.Second),
			ExpireAfter:          int64(c.ExpireAfter / time.Second),
			CheckInterval:        int64(c.CheckInterval / time.Second),
			MetastoreTimeout:     int64(c.MetastoreTimeout / time.Second),
			KMSTimeout:           int64(c.KMSTimeout / time.Second),
		},
	})
}

// UnmarshalJSON decodes durations given as whole seconds.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	var raw struct {
		plain
		jsonDurations
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Config(raw.plain)
	c.SessionCacheDuration = time.Duration(raw.jsonDurations.SessionCacheDuration) * time.Second
	c.ExpireAfter = time.Duration(raw.jsonDurations.ExpireAfter) * time.Second
	c.CheckInterval = time.Duration(raw.jsonDurations.CheckInterval) * time.Second
	c.MetastoreTimeout = time.Duration(raw.jsonDurations.MetastoreTimeout) * time.Second
	c.KMSTimeout = time.Duration(raw.jsonDurations.KMSTimeout) * time.Second
	return nil
}

// Validate checks required fields and enumerations. The error message names the
// first offending field, e.g. "config.service_name not set".
func (c *Config) Validate() error {
	err := appvalidation.ValidateFields("config",
		appvalidation.Field("service_name", c.ServiceName, appvalidation.NotSet),
		appvalidation.Field("product_id", c.ProductID, appvalidation.NotSet),
		appvalidation.Field("kms", c.KMS,
			appvalidation.NotSet,
			appvalidation.OneOf([]string{KMSStatic, KMSAWS}, KMSTestDebugStatic),
		),
		appvalidation.Field("metastore", c.Metastore,
			appvalidation.NotSet,
			appvalidation.OneOf(
				[]string{MetastoreRDBMS, MetastoreDynamoDB, MetastoreMemory},
				MetastoreTestDebugMemory,
			),
		),
		appvalidation.Field("region_map", c.RegionMap,
			validation.When(c.KMS == KMSAWS, appvalidation.NotSet),
		),
		appvalidation.Field("preferred_region", c.PreferredRegion,
			validation.When(c.KMS == KMSAWS, appvalidation.NotSet, appvalidation.HasKey(c.RegionMap)),
		),
		appvalidation.Field("connection_string", c.ConnectionString,
			validation.When(c.Metastore == MetastoreRDBMS, appvalidation.NotSet),
		),
		appvalidation.Field("sql_driver", c.SQLDriver,
			appvalidation.OneOf([]string{"mysql", "postgres"}, "postgresql"),
		),
		appvalidation.Field("replica_read_consistency", c.ReplicaReadConsistency,
			appvalidation.OneOf([]string{"eventual", "global", "session"}),
		),
		appvalidation.Field("algorithm", c.Algorithm,
			appvalidation.OneOf([]string{string(cryptoDomain.AESGCM), string(cryptoDomain.ChaCha20)}),
		),
		appvalidation.Field("static_master_key", c.StaticMasterKey, appvalidation.KeyMaterial(cryptoDomain.KeySize)),
		appvalidation.Field("session_cache_max_size", c.SessionCacheMaxSize, validation.Min(0)),
		appvalidation.Field("session_cache_duration", c.SessionCacheDuration, validation.Min(0)),
		appvalidation.Field("expire_after", c.ExpireAfter, validation.Min(0)),
		appvalidation.Field("check_interval", c.CheckInterval, validation.Min(0)),
		appvalidation.Field("max_data_size", c.MaxDataSize, validation.Min(0)),
	)
	return appvalidation.WrapValidationError(err)
}

// KMSType returns the KMS type with test aliases resolved.
func (c *Config) KMSType() string {
	if c.KMS == KMSTestDebugStatic {
		return KMSStatic
	}
	return c.KMS
}

// MetastoreType returns the metastore type with test aliases resolved.
func (c *Config) MetastoreType() string {
	if c.Metastore == MetastoreTestDebugMemory {
		return MetastoreMemory
	}
	return c.Metastore
}

// SessionCachingEnabled reports whether sessions are shared between callers.
func (c *Config) SessionCachingEnabled() bool {
	return c.EnableSessionCaching == nil || *c.EnableSessionCaching
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.SQLDriver == "" {
		c.SQLDriver = "mysql"
	}
	if c.DBMaxOpenConnections == 0 {
		c.DBMaxOpenConnections = 25
	}
	if c.DBMaxIdleConnections == 0 {
		c.DBMaxIdleConnections = 5
	}
	if c.DBConnMaxLifetime == 0 {
		c.DBConnMaxLifetime = 5 * time.Minute
	}
	if c.DynamoDBTableName == "" {
		c.DynamoDBTableName = DefaultDynamoDBTableName
	}
	if c.SessionCacheMaxSize == 0 {
		c.SessionCacheMaxSize = DefaultSessionCacheMaxSize
	}
	if c.SessionCacheDuration == 0 {
		c.SessionCacheDuration = DefaultSessionCacheDuration
	}
	if c.ExpireAfter == 0 {
		c.ExpireAfter = cryptoDomain.DefaultExpireAfter
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = cryptoDomain.DefaultCheckInterval
	}
	if c.Algorithm == "" {
		c.Algorithm = string(cryptoDomain.AESGCM)
	}
	if c.MaxDataSize == 0 {
		c.MaxDataSize = cryptoDomain.DefaultMaxDataSize
	}
	if c.MetastoreTimeout == 0 {
		c.MetastoreTimeout = DefaultTimeout
	}
	if c.KMSTimeout == 0 {
		c.KMSTimeout = DefaultTimeout
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = DefaultMetricsNamespace
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Verbose {
		c.LogLevel = "debug"
	}
	return c
}

// Load loads configuration from ASHERAH_* environment variables and .env file.
// Durations are given in seconds.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	enableSessionCaching := env.GetBool("ASHERAH_ENABLE_SESSION_CACHING", true)

	cfg := &Config{
		KMS:         env.GetString("ASHERAH_KMS", KMSStatic),
		Metastore:   env.GetString("ASHERAH_METASTORE", MetastoreRDBMS),
		ServiceName: env.GetString("ASHERAH_SERVICE_NAME", ""),
		ProductID:   env.GetString("ASHERAH_PRODUCT_ID", ""),

		// Database
		ConnectionString:       env.GetString("ASHERAH_CONNECTION_STRING", ""),
		SQLDriver:              env.GetString("ASHERAH_SQL_DRIVER", "mysql"),
		ReplicaReadConsistency: env.GetString("ASHERAH_REPLICA_READ_CONSISTENCY", ""),
		DBMaxOpenConnections:   env.GetInt("ASHERAH_DB_MAX_OPEN_CONNECTIONS", 25),
		DBMaxIdleConnections:   env.GetInt("ASHERAH_DB_MAX_IDLE_CONNECTIONS", 5),
		DBConnMaxLifetime:      env.GetDuration("ASHERAH_DB_CONN_MAX_LIFETIME", 300, time.Second),

		// DynamoDB
		DynamoDBEndpoint:   env.GetString("ASHERAH_DYNAMODB_ENDPOINT", ""),
		DynamoDBRegion:     env.GetString("ASHERAH_DYNAMODB_REGION", ""),
		DynamoDBTableName:  env.GetString("ASHERAH_DYNAMODB_TABLE_NAME", DefaultDynamoDBTableName),
		EnableRegionSuffix: env.GetBool("ASHERAH_ENABLE_REGION_SUFFIX", false),

		// KMS
		RegionMap:       ParseRegionMap(env.GetString("ASHERAH_REGION_MAP", "")),
		PreferredRegion: env.GetString("ASHERAH_PREFERRED_REGION", ""),
		StaticMasterKey: env.GetString("ASHERAH_STATIC_MASTER_KEY", ""),

		// Sessions and keys
		SessionCacheMaxSize:  env.GetInt("ASHERAH_SESSION_CACHE_MAX_SIZE", DefaultSessionCacheMaxSize),
		SessionCacheDuration: env.GetDuration("ASHERAH_SESSION_CACHE_DURATION", 7200, time.Second),
		EnableSessionCaching: &enableSessionCaching,
		ExpireAfter:          env.GetDuration("ASHERAH_EXPIRE_AFTER", 90*24*3600, time.Second),
		CheckInterval:        env.GetDuration("ASHERAH_CHECK_INTERVAL", 3600, time.Second),
		Algorithm:            env.GetString("ASHERAH_ALGORITHM", string(cryptoDomain.AESGCM)),
		MaxDataSize:          env.GetInt("ASHERAH_MAX_DATA_SIZE", cryptoDomain.DefaultMaxDataSize),
		MetastoreTimeout:     env.GetDuration("ASHERAH_METASTORE_TIMEOUT", 10, time.Second),
		KMSTimeout:           env.GetDuration("ASHERAH_KMS_TIMEOUT", 10, time.Second),

		// Metrics
		MetricsEnabled:   env.GetBool("ASHERAH_METRICS_ENABLED", false),
		MetricsNamespace: env.GetString("ASHERAH_METRICS_NAMESPACE", DefaultMetricsNamespace),

		// Logging
		Verbose:  env.GetBool("ASHERAH_VERBOSE", false),
		LogLevel: env.GetString("LOG_LEVEL", "info"),
	}

	return cfg
}

// ParseRegionMap parses "REGION1=ARN1[,REGION2=ARN2]". Entries without a region
// or a key are skipped. It returns nil for an empty string.
func ParseRegionMap(value string) map[string]string {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	regionMap := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		region, arn, ok := strings.Cut(pair, "=")
		region = strings.TrimSpace(region)
		arn = strings.TrimSpace(arn)
		if !ok || region == "" || arn == "" {
			continue
		}
		regionMap[region] = arn
	}
	if len(regionMap) == 0 {
		return nil
	}
	return regionMap
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
