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

// AI providers understood by AIConfig.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// Config aggregates every setting of the service.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	AI        AIConfig
	Realtime  RealtimeConfig
	RateLimit RateLimitConfig
	Contact   ContactConfig
	Log       LogConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	contact, err := loadContactConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Store:     loadStoreConfig(),
		AI:        ai,
		Realtime:  realtime,
		RateLimit: rateLimit,
		Contact:   contact,
		Log:       loadLogConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// accept ":8080" or "127.0.0.1:8080"
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// StoreConfig selects the conversation datastore.
type StoreConfig struct {
	Driver string
	DSN    string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Driver: strings.ToLower(getEnvOrDefault("STORE_DRIVER", "memory")),
		DSN:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
}

// AIConfig describes the chat completion backend.
type AIConfig struct {
	Provider     string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	OpenAIKey    string
	OpenAIModel  string
	OpenAIURL    string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
	AgencyName   string
}

// Enabled reports whether the selected provider has credentials and a model.
func (c AIConfig) Enabled() bool {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIKey != "" && c.OpenAIModel != ""
	}
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL or an AK/SK pair")
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderArk))
	if provider != ProviderArk && provider != ProviderOpenAI {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 20
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		historyLimit = max(*override, 1)
	}

	return AIConfig{
		Provider:     provider,
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:  getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIURL:    strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: historyLimit,
		AgencyName:   getEnvOrDefault("AGENCY_NAME", "Northbeam Digital"),
	}, nil
}

// RealtimeConfig tunes the insert fan-out.
type RealtimeConfig struct {
	Buffer int
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	buffer, err := parseOptionalIntEnv("REALTIME_BUFFER")
	if err != nil {
		return RealtimeConfig{}, err
	}
	if buffer == nil || *buffer < 1 {
		return RealtimeConfig{Buffer: 32}, nil
	}
	return RealtimeConfig{Buffer: *buffer}, nil
}

// RateLimitConfig limits completion calls per client address.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	cfg := RateLimitConfig{PerMinute: 20, Burst: 5}

	perMinute, err := parseOptionalIntEnv("COMPLETION_RATE_PER_MINUTE")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if perMinute != nil {
		cfg.PerMinute = *perMinute
	}

	burst, err := parseOptionalIntEnv("COMPLETION_RATE_BURST")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if burst != nil && *burst > 0 {
		cfg.Burst = *burst
	}
	return cfg, nil
}

// ContactConfig points the contact/careers relay at the outbound email endpoint.
type ContactConfig struct {
	EndpointURL string
	Timeout     time.Duration
}

// Enabled reports whether the relay has somewhere to deliver to.
func (c ContactConfig) Enabled() bool {
	return c.EndpointURL != ""
}

func loadContactConfig() (ContactConfig, error) {
	timeout, err := parseOptionalIntEnv("CONTACT_TIMEOUT_SECONDS")
	if err != nil {
		return ContactConfig{}, err
	}
	seconds := 10
	if timeout != nil && *timeout > 0 {
		seconds = *timeout
	}
	return ContactConfig{
		EndpointURL: strings.TrimSpace(os.Getenv("CONTACT_ENDPOINT_URL")),
		Timeout:     time.Duration(seconds) * time.Second,
	}, nil
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Env   string
	Level string
}

// Development reports whether human-readable logs were requested.
func (c LogConfig) Development() bool {
	return c.Env == "development"
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Env:   strings.ToLower(getEnvOrDefault("APP_ENV", "production")),
		Level: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
