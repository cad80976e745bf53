package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envProduction = "production"

// Config содержит общую конфигурацию API-сервера и воркера.
type Config struct {
	AppEnv string `envconfig:"APP_ENV" default:"development"`

	// Настройки сервера
	Port           string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding    string `envconfig:"LOG_ENCODING" default:"json"`
	AllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// CIDR доверенных обратных прокси. Пусто: X-Forwarded-For игнорируется.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"novel_vote"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"20"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	RunMigrations bool          `envconfig:"DB_RUN_MIGRATIONS" default:"true"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string `ignored:"true"`

	// Настройки Redis (кэш счетчиков и кулдаун голосующих)
	RedisURL string `envconfig:"REDIS_URL" default:""`

	// Настройки RabbitMQ. Пустой URL включает внутрипроцессный диспетчер.
	RabbitMQURL           string `envconfig:"RABBITMQ_URL" default:""`
	GenerationTaskQueue   string `envconfig:"GENERATION_TASK_QUEUE" default:"generation_tasks"`
	IllustrationTaskQueue string `envconfig:"ILLUSTRATION_TASK_QUEUE" default:"illustration_tasks"`
	RabbitMQPrefetch      int    `envconfig:"RABBITMQ_PREFETCH" default:"4"`
	InProcessMaxTasks     int    `envconfig:"IN_PROCESS_MAX_TASKS" default:"8"`
	InProcessWorker       bool   `envconfig:"IN_PROCESS_WORKER" default:"true"`

	// Параметры конвейера голосования
	VoteThreshold        int64         `envconfig:"VOTE_THRESHOLD" default:"100"`
	VoteThresholdNonProd int64         `envconfig:"VOTE_THRESHOLD_NONPROD" default:"2"`
	VotingRoundDuration  time.Duration `envconfig:"VOTING_ROUND_DURATION" default:"24h"`
	VoterCooldown        time.Duration `envconfig:"VOTER_COOLDOWN" default:"3s"`
	TallyCacheTTL        time.Duration `envconfig:"TALLY_CACHE_TTL" default:"2s"`
	GenerationTimeout    time.Duration `envconfig:"GENERATION_TIMEOUT" default:"120s"`
	GenerationStaleAfter time.Duration `envconfig:"GENERATION_STALE_AFTER" default:"10m"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"30s"`
	StoryMaxChapters     int           `envconfig:"STORY_MAX_CHAPTERS" default:"0"`

	// Секрет для межсервисных токенов админ-эндпоинтов
	AdminJWTSecret string `ignored:"true"`
}

// IsProduction сообщает, запущено ли приложение в production-окружении.
func (c *Config) IsProduction() bool {
	return c.AppEnv == envProduction
}

// EffectiveVoteThreshold возвращает порог для текущего окружения.
// Вне production допускается отдельное (обычно меньшее) значение.
func (c *Config) EffectiveVoteThreshold() int64 {
	if c.IsProduction() || c.VoteThresholdNonProd <= 0 {
		return c.VoteThreshold
	}
	return c.VoteThresholdNonProd
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func (c *Config) getMaskedDSN() string {
	return fmt.Sprintf("postgres://%s:***@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Validate проверяет значения, которые envconfig проверить не может.
func (c *Config) Validate() error {
	if c.VoteThreshold <= 0 {
		return fmt.Errorf("VOTE_THRESHOLD must be positive, got %d", c.VoteThreshold)
	}
	if c.VotingRoundDuration <= 0 {
		return fmt.Errorf("VOTING_ROUND_DURATION must be positive, got %v", c.VotingRoundDuration)
	}
	if c.VoterCooldown < 0 {
		return fmt.Errorf("VOTER_COOLDOWN must not be negative, got %v", c.VoterCooldown)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive, got %v", c.GenerationTimeout)
	}
	if c.StoryMaxChapters < 0 {
		return fmt.Errorf("STORY_MAX_CHAPTERS must not be negative, got %d", c.StoryMaxChapters)
	}
	return nil
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	// Загружаем НЕсекретные переменные
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}

	// Загружаем ОБЯЗАТЕЛЬНЫЕ секреты
	var loadErr error
	cfg.DBPassword, loadErr = ReadSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}
	cfg.AdminJWTSecret, loadErr = ReadSecret("admin_jwt_secret")
	if loadErr != nil {
		return nil, loadErr
	}

	log.Printf("Конфигурация загружена (секреты из файлов):")
	log.Printf("  App Env: %s", cfg.AppEnv)
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  DB DSN: %s", cfg.getMaskedDSN())
	log.Printf("  DB Max Conns: %d", cfg.DBMaxConns)
	log.Printf("  Redis enabled: %t", cfg.RedisURL != "")
	log.Printf("  RabbitMQ enabled: %t", cfg.RabbitMQURL != "")
	log.Printf("  Vote Threshold (effective): %d", cfg.EffectiveVoteThreshold())
	log.Printf("  Voting Round Duration: %v", cfg.VotingRoundDuration)
	log.Printf("  Voter Cooldown: %v", cfg.VoterCooldown)
	log.Printf("  Generation Timeout: %v", cfg.GenerationTimeout)
	log.Println("  Admin JWT Secret: [ЗАГРУЖЕН]")

	return &cfg, nil
}
