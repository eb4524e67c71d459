package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Key store backends
const (
	KeyStoreFile     = "file"
	KeyStorePostgres = "postgres"
	KeyStoreKeyring  = "keyring"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	NATS     NATSConfig     `yaml:"nats"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	KeyStore KeyStoreConfig `yaml:"keystore"`
	Clients  ClientList     `yaml:"clients"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig represents NATS configuration. An empty URL disables the NATS transport.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
	QueueGroup        string        `yaml:"queue_group"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	Issuer         string        `yaml:"issuer"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// KeyStoreConfig selects where session keys are read from
type KeyStoreConfig struct {
	Backend string `yaml:"backend"`

	// file backend
	File string `yaml:"file"`

	// postgres backend
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// keyring backend
	KeyringService string `yaml:"keyring_service"`

	// MasterKey is a hex AES-128 key used to open "sealed:" key values
	MasterKey string `yaml:"master_key"`
}

// ClientConfig is an API client allowed to request tokens
type ClientConfig struct {
	ID         string `yaml:"id"`
	SecretHash string `yaml:"secret_hash"` // bcrypt
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses a YAML configuration, applies environment overrides and defaults
// and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("FRAMESEC_KEYSTORE_DSN"); dsn != "" {
		c.KeyStore.DSN = dsn
	}

	if masterKey := os.Getenv("FRAMESEC_MASTER_KEY"); masterKey != "" {
		c.KeyStore.MasterKey = masterKey
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "lorawan-framesec"
	}
	if c.API.Port == 0 {
		c.API.Port = 8090
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "framesec"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 60
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "lorawan-framesec"
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.KeyStore.Backend == "" {
		c.KeyStore.Backend = KeyStoreFile
	}
	if c.KeyStore.MaxOpenConns == 0 {
		c.KeyStore.MaxOpenConns = 10
	}
	if c.KeyStore.QueryTimeout == 0 {
		c.KeyStore.QueryTimeout = 5 * time.Second
	}
	if c.KeyStore.KeyringService == "" {
		c.KeyStore.KeyringService = "lorawan-framesec"
	}
}

// Validate checks the settings each enabled component needs
func (c *Config) Validate() error {
	switch c.KeyStore.Backend {
	case KeyStoreFile:
		if c.KeyStore.File == "" {
			return fmt.Errorf("keystore.file is required for the file backend")
		}
	case KeyStorePostgres:
		if c.KeyStore.DSN == "" {
			return fmt.Errorf("keystore.dsn is required for the postgres backend")
		}
	case KeyStoreKeyring:
	default:
		return fmt.Errorf("unknown keystore backend %q", c.KeyStore.Backend)
	}

	if c.KeyStore.MasterKey != "" && len(strings.ReplaceAll(c.KeyStore.MasterKey, " ", "")) != 32 {
		return fmt.Errorf("keystore.master_key must be 16 hex encoded bytes")
	}

	if len(c.Clients) > 0 && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required when api clients are configured")
	}

	seen := make(map[string]bool)
	for i, client := range c.Clients {
		if client.ID == "" || client.SecretHash == "" {
			return fmt.Errorf("clients[%d]: id and secret_hash are required", i)
		}
		if seen[client.ID] {
			return fmt.Errorf("clients[%d]: duplicate id %q", i, client.ID)
		}
		seen[client.ID] = true
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}

// ClientList is the set of API clients allowed to request tokens
type ClientList []ClientConfig

// Lookup returns the API client with the given id
func (l ClientList) Lookup(id string) (ClientConfig, bool) {
	for _, client := range l {
		if client.ID == id {
			return client, true
		}
	}
	return ClientConfig{}, false
}

// PrintConfigSummary prints a configuration summary without secrets
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== LoRaWAN Frame Security Configuration ===\n")
	fmt.Printf("Server: %s v%s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("REST API: %s (%d clients)\n", c.API.Addr(), len(c.Clients))

	if c.NATS.URL != "" {
		fmt.Printf("NATS: %s (subjects %s.seal, %s.open)\n", c.NATS.URL, c.NATS.SubjectPrefix, c.NATS.SubjectPrefix)
	} else {
		fmt.Printf("NATS: disabled\n")
	}

	fmt.Printf("Key store: %s\n", c.KeyStore.Backend)
	switch c.KeyStore.Backend {
	case KeyStoreFile:
		fmt.Printf("  File: %s\n", c.KeyStore.File)
	case KeyStorePostgres:
		fmt.Printf("  Max open conns: %d, query timeout: %s\n", c.KeyStore.MaxOpenConns, c.KeyStore.QueryTimeout)
	case KeyStoreKeyring:
		fmt.Printf("  Keyring service: %s\n", c.KeyStore.KeyringService)
	}
	fmt.Printf("  Sealed key values: %v\n", c.KeyStore.MasterKey != "")

	fmt.Printf("Log: %s (%s)\n", c.Log.Level, c.Log.Format)
	fmt.Printf("============================================\n")
}
