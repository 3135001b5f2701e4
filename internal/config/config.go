package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	VisionBackend string `yaml:"vision_backend"`
	ClaudeAPIKey  string `yaml:"claude_api_key"`
	ClaudeModel   string `yaml:"claude_model"`
	ClaudeBaseURL string `yaml:"claude_base_url"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	OllamaHost    string `yaml:"ollama_host"`
	OllamaModel   string `yaml:"ollama_model"`
	// AnalysisTimeout bounds one reasoning-service call; LookupTimeout applies
	// instead when web search is enabled, since the model searches per wine.
	AnalysisTimeout time.Duration `yaml:"analysis_timeout"`
	LookupTimeout   time.Duration `yaml:"lookup_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	LogFile         string        `yaml:"log_file"`
}

// Load builds the configuration from defaults, then the YAML file named by
// WINELENS_CONFIG (if set), then environment variables. Later sources win.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("WINELENS_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.VisionBackend = getEnv("VISION_BACKEND", cfg.VisionBackend)
	cfg.ClaudeAPIKey = getEnv("CLAUDE_API_KEY", cfg.ClaudeAPIKey)
	cfg.ClaudeModel = getEnv("CLAUDE_MODEL", cfg.ClaudeModel)
	cfg.ClaudeBaseURL = getEnv("CLAUDE_BASE_URL", cfg.ClaudeBaseURL)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OllamaModel = getEnv("OLLAMA_MODEL", cfg.OllamaModel)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	var err error
	if cfg.AnalysisTimeout, err = getDuration("ANALYSIS_TIMEOUT", cfg.AnalysisTimeout); err != nil {
		return nil, err
	}
	if cfg.LookupTimeout, err = getDuration("ANALYSIS_LOOKUP_TIMEOUT", cfg.LookupTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		VisionBackend:   "claude",
		ClaudeModel:     "claude-sonnet-4-5-20250929",
		GeminiModel:     "gemini-2.5-flash",
		OllamaHost:      "http://localhost:11434",
		OllamaModel:     "llava",
		AnalysisTimeout: 25 * time.Second,
		LookupTimeout:   90 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// loadFile overlays values from a YAML file. ${VAR} references are expanded
// so secrets can stay in the environment.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return d, nil
}
