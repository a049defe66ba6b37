package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"

	DefaultDBPath     = "totally_not_my_privateKeys.db"
	DefaultKafkaTopic = "jwks.key-events"
)

type AppConfig struct {
	ServiceName string `validate:"required"`
	Version     string `validate:"required"`

	Port    string `validate:"required,numeric"`
	BaseURL string `validate:"required,url"`

	StoreConfig  StoreConfig
	RedisConfig  RedisConfig
	KafkaConfig  KafkaConfig
	KeyConfig    KeyConfig
	OidcConfig   OpenidConfiguration
	LoggerConfig LoggerConfig
}

type StoreConfig struct {
	Driver        string `validate:"oneof=sqlite mongo"`
	Path          string `validate:"required_if=Driver sqlite"`
	MongoURI      string `validate:"required_if=Driver mongo"`
	MongoDatabase string `validate:"required_if=Driver mongo"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db" validate:"gte=0"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string `validate:"required_with=Brokers"`
	BatchSize    int
	BatchBytes   int
	BatchTimeout int
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// KeyConfig controls key generation and the lifetimes used by bootstrap and token issuance.
type KeyConfig struct {
	Bits             int           `validate:"min=2048"`
	TokenTTL         time.Duration `validate:"gt=0"`
	ValidKeyTTL      time.Duration `validate:"gt=0"`
	ExpiredKeyOffset time.Duration `validate:"gt=0"`
	JWKSMaxAge       time.Duration `validate:"gte=0"`
}

type LogOutputConfig struct {
	Path    string
	Console bool
	File    bool
}

type LoggerConfig struct {
	Summary LogOutputConfig
	Detail  LogOutputConfig
}

type OpenidConfiguration struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JwksURI                           string   `json:"jwks_uri"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

type ConfigManager struct {
	mu   sync.RWMutex
	data *AppConfig
}

func NewConfigManager() *AppConfig {
	port := getEnv("PORT", "8080")

	cm := &ConfigManager{
		data: &AppConfig{
			Port:        port,
			ServiceName: getEnv("SERVICE_NAME", "jwks-server"),
			Version:     getEnv("VERSION", "1.0.0"),
			BaseURL:     os.Getenv("BASE_URL"),
			StoreConfig: StoreConfig{
				Driver:        strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
				Path:          getEnv("DB_PATH", DefaultDBPath),
				MongoURI:      os.Getenv("MONGO_URI"),
				MongoDatabase: getEnv("MONGO_DATABASE", "jwks"),
			},
			KafkaConfig: KafkaConfig{
				Brokers:      splitList(os.Getenv("KAFKA_BROKERS")),
				Topic:        getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
				BatchSize:    getEnvInt("KAFKA_BATCH_SIZE", 1),
				BatchBytes:   getEnvInt("KAFKA_BATCH_BYTES", 1048576),
				BatchTimeout: getEnvInt("KAFKA_BATCH_TIMEOUT", int(10*time.Millisecond)),
			},
			KeyConfig: KeyConfig{
				Bits:             getEnvInt("KEY_BITS", 2048),
				TokenTTL:         getEnvSeconds("TOKEN_TTL_SECONDS", time.Hour),
				ValidKeyTTL:      getEnvSeconds("VALID_KEY_TTL_SECONDS", time.Hour),
				ExpiredKeyOffset: getEnvSeconds("EXPIRED_KEY_OFFSET_SECONDS", time.Minute),
				JWKSMaxAge:       getEnvSeconds("JWKS_MAX_AGE_SECONDS", 5*time.Minute),
			},
			LoggerConfig: LoggerConfig{
				Summary: LogOutputConfig{
					Path:    getEnv("LOG_SUMMARY_PATH", "./logs/summary/"),
					Console: getEnvBool("LOG_CONSOLE", true),
					File:    getEnvBool("LOG_FILE", false),
				},
				Detail: LogOutputConfig{
					Path:    getEnv("LOG_DETAIL_PATH", "./logs/detail/"),
					Console: getEnvBool("LOG_CONSOLE", true),
					File:    getEnvBool("LOG_FILE", false),
				},
			},
		},
	}

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cm.data.RedisConfig = RedisConfig{
			Addr:     redisHost,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		}
	}

	return cm.GetConfig()
}

func (cm *ConfigManager) GetConfig() *AppConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.data
}

func (cm *ConfigManager) SetConfig(newConfig *AppConfig) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.data = newConfig
}

// LoadDefaults derives the base URL and the discovery metadata that were not set explicitly.
func (cm *AppConfig) LoadDefaults() error {
	if cm.BaseURL == "" {
		cm.BaseURL = "http://localhost:" + cm.Port
	}
	cm.BaseURL = strings.TrimRight(cm.BaseURL, "/")

	defaults := OpenidConfiguration{
		Issuer:                            cm.BaseURL,
		TokenEndpoint:                     cm.BaseURL + "/auth",
		JwksURI:                           cm.BaseURL + "/.well-known/jwks.json",
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "none"},
		ClaimsSupported:                   []string{"sub", "iat", "exp", "iss", "jti"},
	}
	if cm.OidcConfig.Issuer == "" {
		cm.OidcConfig.Issuer = defaults.Issuer
	}
	if cm.OidcConfig.TokenEndpoint == "" {
		cm.OidcConfig.TokenEndpoint = defaults.TokenEndpoint
	}
	if cm.OidcConfig.JwksURI == "" {
		cm.OidcConfig.JwksURI = defaults.JwksURI
	}
	if len(cm.OidcConfig.SubjectTypesSupported) == 0 {
		cm.OidcConfig.SubjectTypesSupported = defaults.SubjectTypesSupported
	}
	if len(cm.OidcConfig.IDTokenSigningAlgValuesSupported) == 0 {
		cm.OidcConfig.IDTokenSigningAlgValuesSupported = defaults.IDTokenSigningAlgValuesSupported
	}
	if len(cm.OidcConfig.TokenEndpointAuthMethodsSupported) == 0 {
		cm.OidcConfig.TokenEndpointAuthMethodsSupported = defaults.TokenEndpointAuthMethodsSupported
	}
	if len(cm.OidcConfig.ClaimsSupported) == 0 {
		cm.OidcConfig.ClaimsSupported = defaults.ClaimsSupported
	}

	return cm.Validate()
}

func (cm *AppConfig) Validate() error {
	if err := validator.New().Struct(cm); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (o *OpenidConfiguration) ToJSON() ([]byte, error) {
	return json.Marshal(o)
}

func (o *OpenidConfiguration) ValidateIDTokenSigningAlgValuesSupported(alg string) bool {
	return slices.Contains(o.IDTokenSigningAlgValuesSupported, alg)
}

func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Summary: LogOutputConfig{
			Path:    "./logs/summary/",
			Console: true,
			File:    false,
		},
		Detail: LogOutputConfig{
			Path:    "./logs/detail/",
			Console: true,
			File:    false,
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
