// Пакет config — загрузка и валидация конфигурации Material Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Material Module.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Уникальный идентификатор экземпляра сервиса
	ServiceID string

	// Параметры подключения к PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// URL подключения к RabbitMQ (amqp://...)
	AMQPURL string
	// URL management API RabbitMQ для проверки зависимостей (опционально)
	AMQPManagementURL string

	// Очередь запросов анализа
	AnalysisQueue string
	// Очередь вердиктов анализатора
	VerdictQueue string
	// Очередь уведомлений
	NotifyQueue string

	// Путь к директории blob-хранилища
	BlobDir string
	// Базовый URL публичных ссылок на объекты
	BlobPublicURL string

	// Таймаут ожидания вердикта анализатора
	ValidationTimeout time.Duration
	// Максимальный размер файла в байтах
	MaxFileSize int64

	// URL JWKS endpoint для JWT-аутентификации (пустая строка — без аутентификации)
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// Размер LRU-кэша метаданных материалов
	CacheSize int
	// TTL записи кэша метаданных
	CacheTTL time.Duration

	// Интервал фоновой сверки blob-хранилища (0 — сверка отключена)
	ReconcileInterval time.Duration
	// Минимальный возраст объекта для попадания в сверку
	ReconcileMinAge time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// MM_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("MM_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("MM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// MM_SERVICE_ID — идентификатор экземпляра (по умолчанию "material-module")
	cfg.ServiceID = getEnvDefault("MM_SERVICE_ID", "material-module")

	// MM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("MM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// MM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("MM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MM_DB_PORT: %w", err)
	}

	// MM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("MM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// MM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("MM_DB_USER")
	if err != nil {
		return nil, err
	}

	// MM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("MM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// MM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("MM_DB_SSL_MODE", "disable")

	// MM_AMQP_URL — обязательный
	cfg.AMQPURL, err = getEnvRequired("MM_AMQP_URL")
	if err != nil {
		return nil, err
	}

	// MM_AMQP_MANAGEMENT_URL — management API для dephealth (опционально)
	cfg.AMQPManagementURL = getEnvDefault("MM_AMQP_MANAGEMENT_URL", "")

	// Очереди шины сообщений
	cfg.AnalysisQueue = getEnvDefault("MM_ANALYSIS_QUEUE", "material.process")
	cfg.VerdictQueue = getEnvDefault("MM_VERDICT_QUEUE", "material.responses")
	cfg.NotifyQueue = getEnvDefault("MM_NOTIFY_QUEUE", "mail.delivery")

	// MM_BLOB_DIR — обязательный
	cfg.BlobDir, err = getEnvRequired("MM_BLOB_DIR")
	if err != nil {
		return nil, err
	}

	// MM_BLOB_PUBLIC_URL — базовый URL публичных ссылок
	cfg.BlobPublicURL = getEnvDefault("MM_BLOB_PUBLIC_URL", "http://localhost:8080/api/v1/materials")

	// MM_VALIDATION_TIMEOUT — таймаут ожидания вердикта (по умолчанию 15s)
	cfg.ValidationTimeout, err = getEnvDuration("MM_VALIDATION_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_VALIDATION_TIMEOUT: %w", err)
	}

	// MM_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 50 MB)
	cfg.MaxFileSize, err = getEnvInt64("MM_MAX_FILE_SIZE", 52428800)
	if err != nil {
		return nil, fmt.Errorf("MM_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("MM_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// MM_JWKS_URL — JWT-аутентификация (опционально)
	cfg.JWKSUrl = getEnvDefault("MM_JWKS_URL", "")

	// MM_JWKS_CA_CERT — CA-сертификат JWKS endpoint (опционально)
	cfg.JWKSCACert = getEnvDefault("MM_JWKS_CA_CERT", "")

	// MM_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("MM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_JWT_LEEWAY: %w", err)
	}

	// MM_CACHE_SIZE — размер LRU-кэша (по умолчанию 1024)
	cfg.CacheSize, err = getEnvInt("MM_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("MM_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("MM_CACHE_SIZE: значение должно быть положительным")
	}

	// MM_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("MM_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MM_CACHE_TTL: %w", err)
	}

	// MM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	// MM_RECONCILE_INTERVAL — интервал сверки blob-хранилища (0 — отключена)
	cfg.ReconcileInterval, err = getEnvDuration("MM_RECONCILE_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MM_RECONCILE_INTERVAL: %w", err)
	}

	// MM_RECONCILE_MIN_AGE — минимальный возраст объекта для сверки
	cfg.ReconcileMinAge, err = getEnvDuration("MM_RECONCILE_MIN_AGE", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MM_RECONCILE_MIN_AGE: %w", err)
	}

	cfg.DephealthCheckInterval, err = getEnvDuration("MM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// MM_DEPHEALTH_GROUP — имя группы в метриках (по умолчанию "material-module")
	cfg.DephealthGroup = getEnvDefault("MM_DEPHEALTH_GROUP", "material-module")

	// MM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MM_LOG_LEVEL: %w", err)
	}

	// MM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("MM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// MM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("MM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 15s, 1m, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
