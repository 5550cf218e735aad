package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr     string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	AllowedOrigins []string

	// Provider credentials. Each may be left empty when SecretSource is
	// "ssm", in which case the key is resolved from Parameter Store under
	// SSMKeyPrefix at startup.
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	ElevenLabsAPIKey string

	SecretSource string // env | ssm
	SSMKeyPrefix string

	DefaultVoiceID    string
	CacheTTLSeconds   int
	TaskPoolSize      int
	DrainTimeoutSecs  int
	QueuePollInterval int
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:        envOrDefault("LINGO_LISTEN_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("LINGO_DATABASE_URL"),
		RedisURL:          envOrDefault("LINGO_REDIS_URL", "redis://localhost:6379"),
		JWTSecret:         os.Getenv("LINGO_JWT_SECRET"),
		AllowedOrigins:    splitCSV(os.Getenv("LINGO_ALLOWED_ORIGINS")),
		DeepgramAPIKey:    os.Getenv("LINGO_DEEPGRAM_API_KEY"),
		OpenAIAPIKey:      os.Getenv("LINGO_OPENAI_API_KEY"),
		AnthropicAPIKey:   os.Getenv("LINGO_ANTHROPIC_API_KEY"),
		ElevenLabsAPIKey:  os.Getenv("LINGO_ELEVENLABS_API_KEY"),
		SecretSource:      envOrDefault("LINGO_SECRET_SOURCE", "env"),
		SSMKeyPrefix:      envOrDefault("LINGO_SSM_KEY_PREFIX", "/lingolink/prod"),
		DefaultVoiceID:    envOrDefault("LINGO_DEFAULT_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		CacheTTLSeconds:   ParsePositiveIntEnv("LINGO_CACHE_TTL_SECONDS", 24*3600),
		TaskPoolSize:      ParsePositiveIntEnv("LINGO_TASK_POOL_SIZE", 32),
		DrainTimeoutSecs:  ParsePositiveIntEnv("LINGO_DRAIN_TIMEOUT_SECONDS", 10),
		QueuePollInterval: ParsePositiveIntEnv("LINGO_QUEUE_POLL_INTERVAL_SECONDS", 1),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("LINGO_DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("LINGO_JWT_SECRET is required")
	}
	if cfg.SecretSource != "env" && cfg.SecretSource != "ssm" {
		return Config{}, fmt.Errorf("LINGO_SECRET_SOURCE must be one of env|ssm")
	}
	if cfg.SecretSource == "env" {
		for name, v := range map[string]string{
			"LINGO_DEEPGRAM_API_KEY":   cfg.DeepgramAPIKey,
			"LINGO_OPENAI_API_KEY":     cfg.OpenAIAPIKey,
			"LINGO_ELEVENLABS_API_KEY": cfg.ElevenLabsAPIKey,
		} {
			if v == "" {
				return Config{}, fmt.Errorf("%s is required when LINGO_SECRET_SOURCE=env", name)
			}
		}
	}
	return cfg, nil
}

func envOrDefault(k, v string) string {
	if raw := os.Getenv(k); raw != "" {
		return raw
	}
	return v
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func ParsePositiveIntEnv(k string, d int) int {
	raw := os.Getenv(k)
	if raw == "" {
		return d
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return d
	}
	return n
}
