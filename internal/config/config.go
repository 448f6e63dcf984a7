package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting of the service.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Store     StoreConfig
	Mediator  MediatorConfig
	Mediation MediationConfig
	AI        AIConfig
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	mediator, err := loadMediatorConfig()
	if err != nil {
		return nil, err
	}

	mediation, err := loadMediationConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Log:       loadLogConfig(),
		Store:     store,
		Mediator:  mediator,
		Mediation: mediation,
		AI:        ai,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := parseListEnv("CORS_ALLOWED_ORIGINS")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Accept ":8080" or "127.0.0.1:8080" as well as a bare port.
	if strings.Contains(port, ":") {
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
	}
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Driver        string
	DSN           string
	MongoURI      string
	MongoDatabase string
}

var storeDrivers = map[string]bool{"memory": true, "sqlite": true, "postgres": true, "mongo": true}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", "memory"))
	if !storeDrivers[driver] {
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", driver)
	}

	cfg := StoreConfig{
		Driver:        driver,
		DSN:           strings.TrimSpace(os.Getenv("STORE_DSN")),
		MongoURI:      strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase: getEnvOrDefault("MONGO_DATABASE", "mediation"),
	}
	if driver == "postgres" && cfg.DSN == "" {
		return StoreConfig{}, fmt.Errorf("STORE_DSN is required for STORE_DRIVER=postgres")
	}
	if driver == "mongo" && cfg.MongoURI == "" {
		return StoreConfig{}, fmt.Errorf("MONGO_URI is required for STORE_DRIVER=mongo")
	}
	return cfg, nil
}

// MediatorConfig selects and bounds the AI mediator gateway.
type MediatorConfig struct {
	Mode        string
	URL         string
	Timeout     time.Duration
	AutoTrigger bool
	ID          string
	DisplayName string
}

func loadMediatorConfig() (MediatorConfig, error) {
	timeout, err := parseDurationEnv("MEDIATOR_TIMEOUT", 20*time.Second)
	if err != nil {
		return MediatorConfig{}, err
	}

	autoTrigger, err := parseBoolEnv("MEDIATOR_AUTO_TRIGGER", false)
	if err != nil {
		return MediatorConfig{}, err
	}

	url := strings.TrimSpace(os.Getenv("MEDIATOR_URL"))
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("MEDIATOR_MODE")))
	if mode == "" {
		mode = "static"
		if url != "" {
			mode = "http"
		}
	}

	switch mode {
	case "http":
		if url == "" {
			return MediatorConfig{}, fmt.Errorf("MEDIATOR_URL is required for MEDIATOR_MODE=http")
		}
	case "ark", "static":
	default:
		return MediatorConfig{}, fmt.Errorf("invalid MEDIATOR_MODE value %q", mode)
	}

	return MediatorConfig{
		Mode:        mode,
		URL:         url,
		Timeout:     timeout,
		AutoTrigger: autoTrigger,
		ID:          getEnvOrDefault("AI_MEDIATOR_ID", "ai-mediator"),
		DisplayName: getEnvOrDefault("AI_MEDIATOR_NAME", "AI Mediator"),
	}, nil
}

// MediationConfig tunes the mediation service.
type MediationConfig struct {
	MaxRetries int
}

func loadMediationConfig() (MediationConfig, error) {
	retries := 5
	if override, err := parseOptionalIntEnv("MEDIATION_MAX_RETRIES"); err != nil {
		return MediationConfig{}, err
	} else if override != nil {
		if *override < 1 {
			retries = 1
		} else {
			retries = *override
		}
	}
	return MediationConfig{MaxRetries: retries}, nil
}

// AIConfig describes the Ark chat model used by MEDIATOR_MODE=ark.
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
}

// Enabled reports whether credentials and a model are configured.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or ARK_ACCESS_KEY and ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	history := 40
	if override, err := parseOptionalIntEnv("ARK_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		history = *override
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("Model")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: history,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv accepts Go durations ("15s") or a bare number of seconds.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
