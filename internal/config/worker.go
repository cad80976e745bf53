package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// AI-провайдеры, поддерживаемые генератором контента.
const (
	AIClientTypeOpenAI = "openai"
	AIClientTypeOllama = "ollama"
)

// WorkerConfig - настройки, нужные только воркеру (внешние генераторы, хранилище, метрики).
type WorkerConfig struct {
	AI             AIConfig
	ImageServer    ImageServerConfig
	Storage        StorageConfig
	PushGatewayURL string `env:"PUSHGATEWAY_URL" env-default:""`
	MetricsJob     string `env:"PUSHGATEWAY_JOB" env-default:"novel_vote_worker"`
}

// AIConfig настройки генератора текста.
type AIConfig struct {
	ClientType      string  `env:"AI_CLIENT_TYPE" env-default:"openai"`
	BaseURL         string  `env:"AI_BASE_URL" env-default:"https://openrouter.ai/api/v1"`
	Model           string  `env:"AI_MODEL" env-default:"deepseek/deepseek-chat"`
	Temperature     float32 `env:"AI_TEMPERATURE" env-default:"0.8"`
	MaxTokens       int     `env:"AI_MAX_TOKENS" env-default:"4096"`
	ContextTokens   int     `env:"AI_CONTEXT_TOKENS" env-default:"6000"`
	InputCostPer1K  float64 `env:"AI_INPUT_COST_PER_1K" env-default:"0"`
	OutputCostPer1K float64 `env:"AI_OUTPUT_COST_PER_1K" env-default:"0"`
	// Секретное поле, читается из файла
	APIKey string `env:"-"`
}

// ImageServerConfig конфигурация HTTP-сервера генерации изображений.
type ImageServerConfig struct {
	BaseURL     string        `env:"IMAGE_SERVER_BASE_URL" env-default:""`
	Timeout     time.Duration `env:"IMAGE_SERVER_TIMEOUT" env-default:"120s"`
	Style       string        `env:"IMAGE_STYLE" env-default:"storybook"`
	StyleSuffix string        `env:"IMAGE_PROMPT_STYLE_SUFFIX" env-default:", painterly book illustration, soft light, cohesive color grading"`
}

// StorageConfig конфигурация объектного хранилища (MinIO/S3).
type StorageConfig struct {
	Endpoint      string `env:"STORAGE_ENDPOINT" env-default:""`
	Bucket        string `env:"STORAGE_BUCKET" env-default:"illustrations"`
	UseSSL        bool   `env:"STORAGE_USE_SSL" env-default:"false"`
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" env-default:""`
	AccessKey     string `env:"STORAGE_ACCESS_KEY" env-default:""`
	// Секретное поле, читается из файла
	SecretKey string `env:"-"`
}

// IllustrationsEnabled сообщает, настроены ли генератор изображений и хранилище.
func (c *WorkerConfig) IllustrationsEnabled() bool {
	return c.ImageServer.BaseURL != "" && c.Storage.Endpoint != ""
}

// LoadWorkerConfig загружает настройки воркера через cleanenv.
func LoadWorkerConfig() (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading worker configuration: %w", err)
	}
	switch cfg.AI.ClientType {
	case AIClientTypeOpenAI, AIClientTypeOllama:
	default:
		return nil, fmt.Errorf("unsupported AI_CLIENT_TYPE %q", cfg.AI.ClientType)
	}

	var err error
	if cfg.AI.ClientType == AIClientTypeOpenAI {
		if cfg.AI.APIKey, err = ReadSecret("ai_api_key"); err != nil {
			return nil, err
		}
	}
	if cfg.Storage.Endpoint != "" {
		if cfg.Storage.SecretKey, err = ReadSecret("storage_secret_key"); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
