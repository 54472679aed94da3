package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	Server        struct {
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
		CORSOrigins  []string      `mapstructure:"cors_origins"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Store struct {
		Driver   string        `mapstructure:"driver"`
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"store"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Mongo struct {
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mongo"`
	LLM struct {
		URL          string        `mapstructure:"url"`
		APIKey       string        `mapstructure:"api_key"`
		Model        string        `mapstructure:"model"`
		SystemPrompt string        `mapstructure:"system_prompt"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"llm"`
	JWT struct {
		Secret     string        `mapstructure:"secret"`
		AccessTTL  time.Duration `mapstructure:"access_ttl"`
		RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	} `mapstructure:"jwt"`
	Auth struct {
		OktaDomain   string `mapstructure:"okta_domain"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
		RoleClaim    string `mapstructure:"role_claim"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`

	// ConfigFile is the config file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// OIDCEnabled reports whether an external OpenID Connect issuer is set up.
func (c *Config) OIDCEnabled() bool {
	return c.Auth.OktaDomain != "" && c.Auth.ClientID != ""
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.ToUpper(c.Environment) == "DEV"
}

// PostgresDSN builds a libpq connection string from the db section.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// legacyEnv maps config keys to the environment variable names the web
// frontend deployment already uses.
var legacyEnv = map[string][]string{
	"server.port":       {"PORT"},
	"jwt.secret":        {"JWT_SECRET"},
	"mongo.uri":         {"MONGODB_URI"},
	"llm.url":           {"OPEN_API_URL"},
	"llm.api_key":       {"OPENAI_API_KEY"},
	"llm.system_prompt": {"IA_PROMPT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "PROD")
	v.SetDefault("dev_mode_bypass", false)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.cache_ttl", 30*time.Second)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "promptchain")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "promptchain")

	v.SetDefault("llm.url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4.1")
	v.SetDefault("llm.system_prompt", "You are a helpful assistant.")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_ttl", time.Hour)
	v.SetDefault("jwt.refresh_ttl", 72*time.Hour)

	v.SetDefault("auth.okta_domain", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.redirect_url", "")
	v.SetDefault("auth.role_claim", "role")

	v.SetDefault("tls.enable", false)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("tls.hostnames", []string{})
}

// LoadConfig loads the configuration from a file and the environment.
// configFile may name an explicit yaml file; otherwise config.yaml is
// searched in . and ./config and may be absent. envFile, when set, is a
// dotenv file whose variables are exported before the environment is read.
func LoadConfig(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		env := append([]string{strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, env...)...); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	// normalize OIDC issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.JWT.Secret == "" && !(c.IsDev() && c.DevModeBypass) {
		return errors.New("jwt.secret is required")
	}
	return nil
}

// loadEnvFile exports the variables of a dotenv file that are not already
// set in the process environment.
func loadEnvFile(path string) error {
	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read env file: %w", err)
	}
	for _, key := range ev.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, ev.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

// normalizeOktaIssuer ensures the provided issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact.
func normalizeOktaIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
