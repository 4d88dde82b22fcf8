package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"jobharbor/pkg/utils"
)

// Duration wraps time.Duration so YAML values like "30s" and "5m" decode.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Std returns the wrapped standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SiteConfig is the scrape schedule entry for a single source site.
type SiteConfig struct {
	Keywords          string   `yaml:"keywords" validate:"required"`
	Location          string   `yaml:"location"`
	RunInterval       Duration `yaml:"run_interval" validate:"gt=0"`
	MaxCallsPerWindow int      `yaml:"max_calls_per_window" validate:"gt=0"`
	WindowDuration    Duration `yaml:"window_duration" validate:"gt=0"`
	MinInterval       Duration `yaml:"min_interval" validate:"gte=0"`
	MaxAttempts       int      `yaml:"max_attempts" validate:"gt=0"`
	FetchTimeout      Duration `yaml:"fetch_timeout" validate:"gt=0"`
	BaseURL           string   `yaml:"base_url"`
}

// LogAdapterConfig mirrors one logging adapter entry in the YAML file.
type LogAdapterConfig struct {
	Name    string                 `yaml:"name"`
	Type    string                 `yaml:"type"`
	Enabled bool                   `yaml:"enabled"`
	Options map[string]interface{} `yaml:"options"`
}

// Config represents the application configuration
type Config struct {
	Scheduler struct {
		MaxConcurrent int      `yaml:"max_concurrent" validate:"gt=0"`
		QueueSize     int      `yaml:"queue_size" validate:"gt=0"`
		BackoffBase   Duration `yaml:"backoff_base" validate:"gt=0"`
		BackoffMax    Duration `yaml:"backoff_max" validate:"gt=0"`
	} `yaml:"scheduler"`

	Scraper struct {
		UserAgent string `yaml:"user_agent"`
	} `yaml:"scraper"`

	Dedup struct {
		Backend string   `yaml:"backend" validate:"oneof=memory redis"`
		Scope   string   `yaml:"scope" validate:"oneof=cross-site per-site"`
		TTL     Duration `yaml:"ttl" validate:"gte=0"`
	} `yaml:"dedup"`

	Redis struct {
		URL     string   `yaml:"url"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"redis"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Skills struct {
		VocabularyPath string   `yaml:"vocabulary_path"`
		ReloadInterval Duration `yaml:"reload_interval"`
	} `yaml:"skills"`

	Logging struct {
		Level    string             `yaml:"level"`
		Format   string             `yaml:"format"`
		Adapters []LogAdapterConfig `yaml:"adapters"`
	} `yaml:"logging"`

	Sites map[string]SiteConfig `yaml:"sites" validate:"required,min=1,dive"`
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, utils.NewConfigError(fmt.Sprintf("cannot read %s: %v", configPath, err))
		}

		yamlContent := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
			return nil, utils.NewConfigError(fmt.Sprintf("cannot parse %s: %v", configPath, err))
		}
	}

	config.loadFromEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaultConfig() *Config {
	config := &Config{}

	config.Scheduler.MaxConcurrent = 4
	config.Scheduler.QueueSize = 100
	config.Scheduler.BackoffBase = Duration(2 * time.Second)
	config.Scheduler.BackoffMax = Duration(5 * time.Minute)

	config.Scraper.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	config.Dedup.Backend = "memory"
	config.Dedup.Scope = "cross-site"
	config.Dedup.TTL = Duration(72 * time.Hour)

	config.Redis.URL = "redis://localhost:6379"
	config.Redis.Timeout = Duration(5 * time.Second)

	config.Storage.Path = "jobharbor.db"

	config.Skills.VocabularyPath = "configs/skills.yaml"
	config.Skills.ReloadInterval = Duration(5 * time.Minute)

	config.Logging.Level = "info"
	config.Logging.Format = "json"

	return config
}

// loadFromEnv loads configuration overrides from environment variables
func (c *Config) loadFromEnv() {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.URL = redisURL
	}

	if storagePath := os.Getenv("STORAGE_PATH"); storagePath != "" {
		c.Storage.Path = storagePath
	}

	if vocabPath := os.Getenv("SKILLS_VOCABULARY_PATH"); vocabPath != "" {
		c.Skills.VocabularyPath = vocabPath
	}

	if userAgent := os.Getenv("SCRAPER_USER_AGENT"); userAgent != "" {
		c.Scraper.UserAgent = userAgent
	}
}

// Validate checks the configuration for missing or ambiguous settings.
// Any violation is fatal: the pipeline must not start half-configured.
func (c *Config) Validate() error {
	if len(c.Sites) == 0 {
		return utils.NewConfigError("no sites configured")
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return utils.NewConfigError(verrs[0].Error())
		}
		return utils.NewConfigError(err.Error())
	}

	for site, sc := range c.Sites {
		if sc.MinInterval > sc.WindowDuration {
			return utils.NewConfigError(fmt.Sprintf(
				"site %s: min_interval %v exceeds window_duration %v",
				site, sc.MinInterval, sc.WindowDuration))
		}
	}

	if c.Dedup.Backend == "redis" && c.Redis.URL == "" {
		return utils.NewConfigError("dedup backend is redis but no redis url configured")
	}

	return nil
}
