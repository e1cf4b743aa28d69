package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	LLMAPIKey      string        `env:"LLM_API_KEY,required,notEmpty"`
	LLMBaseURL     string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel       string        `env:"LLM_MODEL" envDefault:"gpt-4"`
	LLMTemperature float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMMaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"1000"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	EmbeddingModel string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	TemplatesPath string `env:"TEMPLATES_PATH"`
	CatalogPath   string `env:"CATALOG_PATH" envDefault:"data/study_programs.csv"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	StartLimitWindow time.Duration `env:"START_LIMIT_WINDOW" envDefault:"10m"`
	StartLimitMax    int           `env:"START_LIMIT_MAX" envDefault:"5"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`

	SMTPHost         string `env:"SMTP_HOST"`
	SMTPPort         int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser         string `env:"SMTP_USER"`
	SMTPPass         string `env:"SMTP_PASS"`
	SMTPFrom         string `env:"SMTP_FROM"`
	SMTPFromName     string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS       bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	FeedbackNotifyTo string `env:"FEEDBACK_NOTIFY_TO"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OtelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OtelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelInsecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
	OtelSampleRatio float64 `env:"OTEL_SAMPLER_RATIO" envDefault:"0.1"`
	OtelServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"coach-llm"`
	OtelEnvironment string  `env:"OTEL_ENVIRONMENT" envDefault:"development"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
