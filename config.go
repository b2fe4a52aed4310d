package forge

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is FORGE's runtime configuration: where the store lives, which
// OTS calendars to use, and how fast the OTS client may send requests.
// RequestTimeout is loaded but not passed to the OTS client, whose
// per-request timeout is the fixed otsRequestTimeout (10s).
type Config struct {
	StoreDir          string        `mapstructure:"store_dir"`
	Owner             string        `mapstructure:"owner"`
	Calendars         []string      `mapstructure:"calendars"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// LoadConfig reads an optional forge.yaml from configPath (a directory; an
// absent file is not an error — defaults apply) layered under sensible
// defaults, then environment variables prefixed FORGE_.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("forge")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("FORGE")
	v.AutomaticEnv()

	v.SetDefault("store_dir", defaultStoreDir())
	v.SetDefault("owner", "forge-local")
	v.SetDefault("calendars", DefaultCalendars)
	v.SetDefault("request_timeout", otsRequestTimeout)
	v.SetDefault("requests_per_second", 2.0)
	v.SetDefault("burst", 4)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".forge"
	}
	return filepath.Join(home, ".forge")
}
