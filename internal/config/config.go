package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	Server     Server     `mapstructure:"server"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	LLM        LLM        `mapstructure:"llm"`
	Embedding  Embedding  `mapstructure:"embedding"`
	Clustering Clustering `mapstructure:"clustering"`
	Feed       Feed       `mapstructure:"feed"`
	Sources    Sources    `mapstructure:"sources"`
	Profile    Profile    `mapstructure:"profile"`
}

// App holds application-level configuration
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// Server holds HTTP server configuration
type Server struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Scheduler holds background collection scheduling configuration
type Scheduler struct {
	Enabled              bool `mapstructure:"enabled"`
	FetchIntervalMinutes int  `mapstructure:"fetch_interval_minutes"`
	RunOnStart           bool `mapstructure:"run_on_start"`
}

// LLM holds summarizer subprocess configuration
type LLM struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`
	Timeout  string `mapstructure:"timeout"`
}

// Embedding holds embedding backend configuration
type Embedding struct {
	Gemini          GeminiConfig `mapstructure:"gemini"`
	LocalDimensions int          `mapstructure:"local_dimensions"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// Clustering holds topology clustering parameters
type Clustering struct {
	MinClusterSize int `mapstructure:"min_cluster_size"`
	MinSamples     int `mapstructure:"min_samples"`
}

// Feed holds feed generation parameters
type Feed struct {
	DefaultLimit     int `mapstructure:"default_limit"`
	SerendipitySlots int `mapstructure:"serendipity_slots"`
}

// Sources holds source plugin configuration
type Sources struct {
	Timeout string       `mapstructure:"timeout"`
	GitHub  GitHubConfig `mapstructure:"github"`
}

// GitHubConfig holds github-releases plugin configuration
type GitHubConfig struct {
	Token string   `mapstructure:"token"`
	Repos []string `mapstructure:"repos"`
}

// Profile holds the user's declared technology stack for trending analysis
type Profile struct {
	TechStack   []string `mapstructure:"tech_stack"`
	MaxTrending int      `mapstructure:"max_trending"`
}

var globalConfig *Config

// Load loads the configuration from defaults, an optional config file,
// .env and BRAINSTREAM_* environment variables
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".brainstream")
		viper.SetConfigType("yaml")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvironmentVariables()

	// Enable automatic environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply post-processing
	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", "~/.brainstream")

	// Server defaults
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 3000)

	// Scheduler defaults
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.fetch_interval_minutes", 30)
	viper.SetDefault("scheduler.run_on_start", true)

	// LLM defaults
	viper.SetDefault("llm.enabled", true)
	viper.SetDefault("llm.provider", "claude")
	viper.SetDefault("llm.timeout", "120s")

	// Embedding defaults
	viper.SetDefault("embedding.gemini.embedding_model", "text-embedding-004")
	viper.SetDefault("embedding.local_dimensions", 256)

	// Clustering defaults
	viper.SetDefault("clustering.min_cluster_size", 5)
	viper.SetDefault("clustering.min_samples", 3)

	// Feed defaults
	viper.SetDefault("feed.default_limit", 20)
	viper.SetDefault("feed.serendipity_slots", 2)

	// Source defaults
	viper.SetDefault("sources.timeout", "30s")
	viper.SetDefault("sources.github.repos", []string{
		"langchain-ai/langchain",
		"openai/openai-python",
		"anthropics/anthropic-sdk-python",
		"hashicorp/terraform",
		"kubernetes/kubernetes",
		"docker/compose",
		"tiangolo/fastapi",
		"vercel/next.js",
		"vitejs/vite",
	})

	// Profile defaults
	viper.SetDefault("profile.tech_stack", []string{})
	viper.SetDefault("profile.max_trending", 10)
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("app.data_dir", []string{
		"BRAINSTREAM_DATA_DIR",
	})

	bindEnvKeys("server.host", []string{
		"BRAINSTREAM_HOST",
	})

	bindEnvInt("server.port", []string{
		"BRAINSTREAM_PORT",
		"PORT",
	})

	bindEnvBool("scheduler.enabled", []string{
		"BRAINSTREAM_SCHEDULER",
	})

	bindEnvInt("scheduler.fetch_interval_minutes", []string{
		"BRAINSTREAM_FETCH_INTERVAL",
	})

	bindEnvBool("scheduler.run_on_start", []string{
		"BRAINSTREAM_RUN_ON_START",
	})

	bindEnvKeys("llm.provider", []string{
		"BRAINSTREAM_LLM_PROVIDER",
	})

	bindEnvKeys("llm.timeout", []string{
		"BRAINSTREAM_LLM_TIMEOUT",
	})

	// Gemini API key - support multiple formats
	bindEnvKeys("embedding.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("sources.github.token", []string{
		"GITHUB_TOKEN",
		"GH_TOKEN",
	})

	bindEnvKeys("profile.tech_stack", []string{
		"BRAINSTREAM_TECH_STACK",
	})

	bindEnvBool("app.debug", []string{
		"BRAINSTREAM_DEBUG",
		"DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// bindEnvInt binds the first found environment variable parsed as an integer
func bindEnvInt(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			if n, err := strconv.Atoi(value); err == nil {
				viper.Set(viperKey, n)
			}
			return
		}
	}
}

// bindEnvBool binds the first found environment variable parsed as a boolean
func bindEnvBool(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			if b, err := strconv.ParseBool(value); err == nil {
				viper.Set(viperKey, b)
			}
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}

	// Tech stack may arrive as a single comma-separated env value
	config.Profile.TechStack = splitList(config.Profile.TechStack)
	config.Sources.GitHub.Repos = splitList(config.Sources.GitHub.Repos)

	// Validate durations
	durations := map[string]string{
		"llm.timeout":     config.LLM.Timeout,
		"sources.timeout": config.Sources.Timeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// splitList splits any comma-separated entries and trims whitespace
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures configuration values are usable
func validateConfig(config *Config) error {
	var errors []string

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("server port must be between 1 and 65535, got %d", config.Server.Port))
	}
	if config.Scheduler.FetchIntervalMinutes < 1 {
		errors = append(errors, fmt.Sprintf("fetch interval must be at least 1 minute, got %d", config.Scheduler.FetchIntervalMinutes))
	}
	if config.Clustering.MinClusterSize < 2 {
		errors = append(errors, fmt.Sprintf("min_cluster_size must be at least 2, got %d", config.Clustering.MinClusterSize))
	}
	if config.Feed.DefaultLimit < 1 || config.Feed.DefaultLimit > 100 {
		errors = append(errors, fmt.Sprintf("feed default_limit must be between 1 and 100, got %d", config.Feed.DefaultLimit))
	}
	if config.Feed.SerendipitySlots < 0 {
		errors = append(errors, fmt.Sprintf("serendipity_slots must not be negative, got %d", config.Feed.SerendipitySlots))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// FetchInterval returns the scheduler interval as a duration
func (c *Config) FetchInterval() time.Duration {
	return time.Duration(c.Scheduler.FetchIntervalMinutes) * time.Minute
}

// LLMTimeout returns the summarizer subprocess timeout, defaulting to 120s
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// SourceTimeout returns the per-source HTTP timeout, defaulting to 30s
func (c *Config) SourceTimeout() time.Duration {
	d, err := time.ParseDuration(c.Sources.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// VectorDBPath returns the path of the vector store database
func (c *Config) VectorDBPath() string {
	return filepath.Join(c.App.DataDir, "vectors.db")
}

// StateDBPath returns the path of the bandit/action state database
func (c *Config) StateDBPath() string {
	return filepath.Join(c.App.DataDir, "state.db")
}

// Convenience getters for commonly used configuration values
func GetApp() App               { return Get().App }
func GetServer() Server         { return Get().Server }
func GetScheduler() Scheduler   { return Get().Scheduler }
func GetLLM() LLM               { return Get().LLM }
func GetClustering() Clustering { return Get().Clustering }
func GetFeed() Feed             { return Get().Feed }
func GetProfile() Profile       { return Get().Profile }
func GetDataDir() string        { return Get().App.DataDir }
func GetGeminiAPIKey() string   { return Get().Embedding.Gemini.APIKey }
func IsDebugMode() bool         { return Get().App.Debug }

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
