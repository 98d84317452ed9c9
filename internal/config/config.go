package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	PostGIS   PostGISConfig   `yaml:"postgis" mapstructure:"postgis"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SourceConfig selects the feature backend.
type SourceConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"` // overpass, postgis, shapefile
	LayersFile    string `yaml:"layers_file" mapstructure:"layers_file"`
	ShapefileDir  string `yaml:"shapefile_dir" mapstructure:"shapefile_dir"`
	FetchParallel int    `yaml:"fetch_parallel" mapstructure:"fetch_parallel"`
}

// OverpassConfig configures the Overpass API client.
type OverpassConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NominatimConfig configures the geocoding client.
type NominatimConfig struct {
	URL       string  `yaml:"url" mapstructure:"url"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PostGISConfig configures the PostGIS feature backend.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// CacheConfig configures the fetch cache.
type CacheConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	Disabled bool   `yaml:"disabled" mapstructure:"disabled"`
}

// OutputConfig configures where rendered maps land.
type OutputConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRAILMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source.driver", "overpass")
	v.SetDefault("source.fetch_parallel", 4)
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.user_agent", "trailmap/1.0")
	v.SetDefault("overpass.rate_limit", 1.0)
	v.SetDefault("overpass.timeout_secs", 25)
	v.SetDefault("nominatim.url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.user_agent", "trailmap/1.0")
	v.SetDefault("nominatim.rate_limit", 1.0)
	v.SetDefault("postgis.table", "osm_features")
	v.SetDefault("cache.path", "trailmap-cache.db")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("output.dir", "trail-mileage-maps")
	v.SetDefault("output.format", "png")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// validFormats are the output formats the renderer can save.
var validFormats = map[string]bool{"png": true, "svg": true, "pdf": true, "jpg": true, "jpeg": true}

// Validate checks the configuration for the selected source driver.
func (c *Config) Validate() error {
	var problems []string

	switch c.Source.Driver {
	case "overpass":
		if c.Overpass.URL == "" {
			problems = append(problems, "overpass.url is required")
		}
	case "postgis":
		if c.PostGIS.DatabaseURL == "" {
			problems = append(problems, "postgis.database_url is required for the postgis driver")
		}
		if c.PostGIS.Table == "" {
			problems = append(problems, "postgis.table is required for the postgis driver")
		}
	case "shapefile":
		if c.Source.ShapefileDir == "" {
			problems = append(problems, "source.shapefile_dir is required for the shapefile driver")
		}
	default:
		problems = append(problems, "source.driver must be one of overpass, postgis, shapefile")
	}

	if c.Source.FetchParallel < 1 || c.Source.FetchParallel > 16 {
		problems = append(problems, "source.fetch_parallel must be between 1 and 16")
	}
	if c.Overpass.RateLimit < 0 || c.Nominatim.RateLimit < 0 {
		problems = append(problems, "rate limits must be >= 0")
	}
	if !validFormats[c.Output.Format] {
		problems = append(problems, "output.format must be one of png, svg, pdf, jpg")
	}
	if !c.Cache.Disabled && c.Cache.TTLHours < 1 {
		problems = append(problems, "cache.ttl_hours must be >= 1")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
