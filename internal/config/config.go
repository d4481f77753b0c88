package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	AppPort      string
	RealtimePort string
	DatabaseURL  string
	LogLevel     string
	JWTSecret    string
	TokenExpires time.Duration

	PalCompletionBonus float64
	ChatAutoReply      bool
	ChatAutoReplyDelay time.Duration
	ChatRatePerSecond  float64
	ChatRateBurst      int
	GigPollInterval    time.Duration

	PaymeMerchantID   string
	PaymeMerchantKey  string
	PaymeCheckoutURL  string
	TelegramBotToken  string
	TelegramAdminChat string

	FirebaseCredentialsPath string
	OpsAPIKey               string

	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromName  string
	SMTPFromEmail string
	SupportEmail  string
}

// Load reads environment variables and returns a populated Config.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:      getEnv("APP_PORT", "8080"),
		RealtimePort: getEnv("REALTIME_PORT", "8081"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		JWTSecret:    getEnv("JWT_SECRET", "c3a1f08e9d2b47e6a5f4c1d8b7e29a6f0d3c5b8e1f4a7d2c9b6e3f0a5d8c1b4e"),
		TokenExpires: getEnvDuration("JWT_TTL_HOURS", 24) * time.Hour,

		PalCompletionBonus: getEnvFloat("PAL_COMPLETION_BONUS", 50),
		ChatAutoReply:      getEnvBool("CHAT_AUTO_REPLY", true),
		ChatAutoReplyDelay: getEnvDuration("CHAT_AUTO_REPLY_DELAY_MS", 2000) * time.Millisecond,
		ChatRatePerSecond:  getEnvFloat("CHAT_RATE_PER_SECOND", 5),
		ChatRateBurst:      getEnvInt("CHAT_RATE_BURST", 10),
		GigPollInterval:    getEnvDuration("GIG_POLL_INTERVAL_SECONDS", 60) * time.Second,

		PaymeMerchantID:   getEnv("PAYME_MERCHANT_ID", ""),
		PaymeMerchantKey:  getEnv("PAYME_MERCHANT_KEY", ""),
		PaymeCheckoutURL:  getEnv("PAYME_CHECKOUT_URL", "https://checkout.paycom.uz"),
		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAdminChat: getEnv("TELEGRAM_ADMIN_CHAT_ID", ""),

		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		OpsAPIKey:               getEnv("OPS_API_KEY", ""),

		SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFromName:  getEnv("SMTP_FROM_NAME", "CareCircle"),
		SMTPFromEmail: getEnv("SMTP_FROM_EMAIL", ""),
		SupportEmail:  getEnv("SUPPORT_EMAIL", ""),
	}

	if cfg.AppPort == "" {
		log.Fatal("APP_PORT must be set")
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback int) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return time.Duration(parsed)
		}
	}
	return time.Duration(fallback)
}
