package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"America/Mexico_City"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	Groq struct {
		APIKey        string        `envconfig:"GROQ_API_KEY"`
		BaseURL       string        `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
		Model         string        `envconfig:"GROQ_MODEL" default:"llama-3.3-70b-versatile"`
		FallbackModel string        `envconfig:"GROQ_FALLBACK_MODEL" default:"llama-3.1-8b-instant"`
		Timeout       time.Duration `envconfig:"GROQ_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Qwen struct {
		APIKey  string        `envconfig:"QWEN_API_KEY"`
		BaseURL string        `envconfig:"QWEN_BASE_URL" default:"https://dashscope.aliyuncs.com/compatible-mode/v1"`
		Model   string        `envconfig:"QWEN_MODEL" default:"qwen-max"`
		Timeout time.Duration `envconfig:"QWEN_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Scheduler struct {
		GenerateHour int `envconfig:"SCHEDULER_GENERATE_HOUR" default:"12"`
		ReadingHour  int `envconfig:"SCHEDULER_READING_HOUR" default:"13"`
	} `envconfig:""`

	Limits struct {
		PublishedTasks int `envconfig:"PUBLISHED_TASKS_LIMIT" default:"50"`
		AdminPageSize  int `envconfig:"ADMIN_PAGE_SIZE" default:"10"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
