package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Hedge    HedgeConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// APITokenHash - bcrypt-хэш операторского токена для REST API
	APITokenHash string
}

// HedgeConfig - параметры оркестратора хеджей
type HedgeConfig struct {
	// Подключаемые биржи (имена фабрик адаптеров)
	Venues []string

	// URL внешнего фида ставок фандинга
	RateFeedURL string

	// Плечи режимов удержания
	FastLeverage  int
	SmartLeverage int

	// Пороги входа, bps спреда
	FastModeRate  float64
	SmartModeRate float64

	// Smart-режим: тик мониторинга, максимум удержания, bad streak
	SmartTickInterval    time.Duration
	SmartMaxHold         time.Duration
	BadStreakThreshold   int
	CloseSpreadThreshold float64 // bps; спред ниже - плохой тик

	// Уведомление о пороге P&L
	PnlNotifyEnabled bool
	PnlThresholdPct  float64
	PnlCheckInterval time.Duration
	GracePeriod      time.Duration // молодые позиции пропускаются

	// Защитные ордера (best-effort, только где биржа умеет)
	SlTpEnabled   bool
	StopLossPct   float64
	TakeProfitPct float64

	// Тайминги саги
	OpenTimeout      time.Duration // ожидание обеих ног при открытии
	CloseTimeout     time.Duration // ожидание обеих ног при закрытии
	SettleDelay      time.Duration // пауза перед валидацией открытия
	CloseSettleDelay time.Duration // пауза перед чтением балансов после закрытия

	// Лимиты открытия
	MarginFloor      float64       // минимальная используемая маржа, USD
	FundingWindowMax time.Duration // максимум до выплаты фандинга

	// Интервалы свипов (FAST_MODE закрывается не по интервалу,
	// а по часовой границе выплаты фандинга)
	FundingCalcInterval time.Duration // пересчёт накопленного фандинга
	LiquidationInterval time.Duration // проверка внешних ликвидаций
	ScanInterval        time.Duration // продюсер сигналов

	// Автоматическое открытие по сигналам (false = только REST)
	AutoOpenEnabled bool
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "fundingbot"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APITokenHash: getEnv("API_TOKEN_HASH", ""),
		},
		Hedge: HedgeConfig{
			Venues:      getEnvAsList("VENUES", []string{"extended", "aster"}),
			RateFeedURL: getEnv("RATE_FEED_URL", "http://localhost:8000/api/rates"),

			FastLeverage:  getEnvAsInt("FAST_LEVERAGE", 3),
			SmartLeverage: getEnvAsInt("SMART_LEVERAGE", 2),

			FastModeRate:  getEnvAsFloat("FAST_MODE_RATE", 30),
			SmartModeRate: getEnvAsFloat("SMART_MODE_RATE", 15),

			SmartTickInterval:    getEnvAsDuration("SMART_TICK_INTERVAL", 5*time.Minute),
			SmartMaxHold:         getEnvAsDuration("SMART_MAX_HOLD", 8*time.Hour),
			BadStreakThreshold:   getEnvAsInt("BAD_STREAK_THRESHOLD", 3),
			CloseSpreadThreshold: getEnvAsFloat("CLOSE_SPREAD_THRESHOLD", 5),

			PnlNotifyEnabled: getEnvAsBool("PNL_NOTIFY_ENABLED", true),
			PnlThresholdPct:  getEnvAsFloat("PNL_THRESHOLD_PCT", 1.0),
			PnlCheckInterval: getEnvAsDuration("PNL_CHECK_INTERVAL", 1*time.Minute),
			GracePeriod:      getEnvAsDuration("PNL_GRACE_PERIOD", 10*time.Minute),

			SlTpEnabled:   getEnvAsBool("SLTP_ENABLED", false),
			StopLossPct:   getEnvAsFloat("STOP_LOSS_PCT", 2.0),
			TakeProfitPct: getEnvAsFloat("TAKE_PROFIT_PCT", 3.0),

			OpenTimeout:      getEnvAsDuration("OPEN_TIMEOUT", 20*time.Second),
			CloseTimeout:     getEnvAsDuration("CLOSE_TIMEOUT", 30*time.Second),
			SettleDelay:      getEnvAsDuration("SETTLE_DELAY", 3*time.Second),
			CloseSettleDelay: getEnvAsDuration("CLOSE_SETTLE_DELAY", 20*time.Second),

			MarginFloor:      getEnvAsFloat("MARGIN_FLOOR", 5),
			FundingWindowMax: getEnvAsDuration("FUNDING_WINDOW_MAX", 60*time.Minute),

			FundingCalcInterval: getEnvAsDuration("FUNDING_CALC_INTERVAL", 5*time.Minute),
			LiquidationInterval: getEnvAsDuration("LIQUIDATION_INTERVAL", 1*time.Minute),
			ScanInterval:        getEnvAsDuration("SCAN_INTERVAL", 1*time.Hour),

			AutoOpenEnabled: getEnvAsBool("AUTO_OPEN_ENABLED", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// Без хэша токена API остаётся открытым - в проде недопустимо
	if c.Security.APITokenHash == "" {
		return fmt.Errorf("API_TOKEN_HASH is required (bcrypt hash of the operator token)")
	}

	if !strings.HasPrefix(c.Security.APITokenHash, "$2") {
		return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Хедж требует ровно две биржи минимум
	if len(c.Hedge.Venues) < 2 {
		return fmt.Errorf("VENUES must list at least 2 venues, got %d", len(c.Hedge.Venues))
	}

	// Плечи
	if c.Hedge.FastLeverage < 1 || c.Hedge.FastLeverage > 100 {
		return fmt.Errorf("FAST_LEVERAGE must be between 1 and 100, got %d", c.Hedge.FastLeverage)
	}

	if c.Hedge.SmartLeverage < 1 || c.Hedge.SmartLeverage > 100 {
		return fmt.Errorf("SMART_LEVERAGE must be between 1 and 100, got %d", c.Hedge.SmartLeverage)
	}

	// Пороги входа: fast должен быть строже smart
	if c.Hedge.FastModeRate < c.Hedge.SmartModeRate {
		return fmt.Errorf("FAST_MODE_RATE (%v) must be >= SMART_MODE_RATE (%v)",
			c.Hedge.FastModeRate, c.Hedge.SmartModeRate)
	}

	if c.Hedge.BadStreakThreshold < 1 {
		return fmt.Errorf("BAD_STREAK_THRESHOLD must be at least 1, got %d", c.Hedge.BadStreakThreshold)
	}

	// Таймауты саги должны быть положительными
	if c.Hedge.OpenTimeout <= 0 {
		return fmt.Errorf("OPEN_TIMEOUT must be positive, got %v", c.Hedge.OpenTimeout)
	}

	if c.Hedge.CloseTimeout <= 0 {
		return fmt.Errorf("CLOSE_TIMEOUT must be positive, got %v", c.Hedge.CloseTimeout)
	}

	if c.Hedge.MarginFloor <= 0 {
		return fmt.Errorf("MARGIN_FLOOR must be positive, got %v", c.Hedge.MarginFloor)
	}

	if c.Hedge.FundingWindowMax <= 0 {
		return fmt.Errorf("FUNDING_WINDOW_MAX must be positive, got %v", c.Hedge.FundingWindowMax)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
