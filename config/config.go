package config

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names
const (
	EnvRelayerPrivateKey = "RELAYER_PRIVATE_KEY"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvRedisURL          = "REDIS_URL"
	EnvVAPIDPublicKey    = "VAPID_PUBLIC_KEY"
	EnvVAPIDPrivateKey   = "VAPID_PRIVATE_KEY"
	EnvVAPIDSubject      = "VAPID_SUBJECT"
	EnvDeploymentsFile   = "DEPLOYMENTS_FILE"
	EnvListenAddr        = "LISTEN_ADDR"
	EnvStoreBackend      = "STORE_BACKEND"
	EnvBridgeRequestTTL  = "BRIDGE_REQUEST_TTL"
	EnvDebug             = "DEBUG"
)

type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

const (
	DefaultListenAddr       = ":8080"
	DefaultBridgeRequestTTL = time.Hour
)

// Config is the relay server configuration
type Config struct {
	// RelayerPrivateKey is read per request and is not checked here, so a
	// request for an unsupported chain fails before the key is touched.
	RelayerPrivateKey string

	DatabaseURL  string
	RedisURL     string
	StoreBackend StoreBackend

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	DeploymentsFile  string
	Deployments      Deployments
	ListenAddr       string
	BridgeRequestTTL time.Duration
	Debug            bool
}

// Validate aggregates every configuration problem into one error
func (c *Config) Validate() error {
	var allErrors field.ErrorList

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("databaseUrl"), "required when store backend is postgres"))
		}
	case StoreRedis:
		if c.RedisURL == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisUrl"), "required when store backend is redis"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("storeBackend"), c.StoreBackend,
			[]string{string(StoreMemory), string(StorePostgres), string(StoreRedis)}))
	}

	if c.ListenAddr == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("listenAddr"), "listen address is required"))
	}
	if c.BridgeRequestTTL <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("bridgeRequestTtl"), c.BridgeRequestTTL.String(), "must be positive"))
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("vapid"), "", "public and private keys must be set together"))
	}

	allErrors = append(allErrors, c.Deployments.Validate(field.NewPath("deployments"))...)

	if len(allErrors) > 0 {
		return fmt.Errorf("invalid configuration: %w", allErrors.ToAggregate())
	}
	return nil
}
