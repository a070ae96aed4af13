package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "RECORDSTORE"

type Configuration struct {
	Server  Server  `mapstructure:"server" yaml:"server"`
	Storage Storage `mapstructure:"storage" yaml:"storage"`
	Auth    Auth    `mapstructure:"auth" yaml:"auth"`
	Search  Search  `mapstructure:"search" yaml:"search"`
	Log     Log     `mapstructure:"log" yaml:"log"`
	Tracing Tracing `mapstructure:"tracing" yaml:"tracing"`
}

type Server struct {
	HTTPPort   int    `mapstructure:"http-port" yaml:"http-port" default:"8090" validate:"min=1,max=65535"`
	ServerMode string `mapstructure:"mode" yaml:"mode" default:"dev" validate:"oneof=dev prod"`
}

type Storage struct {
	Backend string `mapstructure:"backend" yaml:"backend" default:"sqlite" validate:"oneof=sqlite postgres"`
	// Driver selects the SQLite driver: sqlite (modernc) or sqlite3 (mattn, cgo).
	Driver         string `mapstructure:"driver" yaml:"driver" default:"sqlite" validate:"oneof=sqlite sqlite3"`
	SQLitePath     string `mapstructure:"sqlite-path" yaml:"sqlite-path" default:"recordstore.db" validate:"required_if=Backend sqlite"`
	PostgresDSN    string `mapstructure:"postgres-dsn" yaml:"postgres-dsn" validate:"required_if=Backend postgres"`
	PostgresSchema string `mapstructure:"postgres-schema" yaml:"postgres-schema" default:"recordstore"`
}

type Auth struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" default:"true"`
	// Secret signs HS256 bearer tokens.
	Secret string `mapstructure:"secret" yaml:"secret" validate:"required_if=Enabled true"`
	// SuperuserCollection is the collection whose tokens bypass every rule.
	SuperuserCollection string `mapstructure:"superuser-collection" yaml:"superuser-collection" default:"_superusers"`
}

type Search struct {
	MaxExprLimit int `mapstructure:"max-expr-limit" yaml:"max-expr-limit" default:"200" validate:"min=1"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" default:"console" validate:"oneof=console json"`
}

type Tracing struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter     string  `mapstructure:"exporter" yaml:"exporter" default:"stdout" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string  `mapstructure:"otlp-endpoint" yaml:"otlp-endpoint" default:"localhost:4317"`
	SampleRate   float64 `mapstructure:"sample-rate" yaml:"sample-rate" default:"1" validate:"gt=0,lte=1"`
	ServiceName  string  `mapstructure:"service-name" yaml:"service-name" default:"recordstore"`
}

// NewConfigurationWithOptionsAndDefaults returns a configuration with every
// default applied.
func NewConfigurationWithOptionsAndDefaults() *Configuration {
	cfg := &Configuration{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and reports every invalid field.
func (c *Configuration) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// NewViper returns a viper instance reading RECORDSTORE_ environment
// variables, where RECORDSTORE_SERVER_HTTP_PORT maps to server.http-port.
func NewViper() *viper.Viper {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file at path, overlays the environment and
// any flags bound to v, and validates the result.
func Load(v *viper.Viper, path string) (*Configuration, error) {
	cfg := NewConfigurationWithOptionsAndDefaults()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
