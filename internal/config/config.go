package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/efreitasn/tradesim/internal/domain"
)

// Config holds all runtime configuration for the trading simulator.
// Money values are in cents.
type Config struct {
	Port            int
	LogLevel        string
	Symbols         []string
	InitialPrice    int64
	InitialCash     int64
	PriceStep       int64 // max absolute price move per cycle; 0 keeps prices static
	PriceSeed       int64 // 0 seeds from the clock
	BcryptCost      int
	CycleInterval   time.Duration // 0 disables the background scheduler
	JournalPath     string
	KafkaBrokers    []string
	KafkaTopic      string
	WebhookURL      string
	WebhookTimeout  time.Duration
	CORSOrigin      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads an optional .env file from the working directory, then
// environment variables, applies defaults, and validates values. Variables
// already set in the environment take precedence over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	symbols := getList("SYMBOLS", []string{"AAPL", "GOOGL", "MSFT"})
	if len(symbols) == 0 {
		return nil, fmt.Errorf("invalid SYMBOLS: at least one symbol is required")
	}
	for _, s := range symbols {
		if !domain.ValidInstrument(s) {
			return nil, fmt.Errorf("invalid SYMBOLS: %q is not a ticker symbol", s)
		}
	}

	initialPrice, err := getCents("INITIAL_PRICE", 10000)
	if err != nil {
		return nil, fmt.Errorf("invalid INITIAL_PRICE: %w", err)
	}
	if initialPrice <= 0 {
		return nil, fmt.Errorf("invalid INITIAL_PRICE: must be > 0")
	}

	initialCash, err := getCents("INITIAL_CASH", 1_000_000)
	if err != nil {
		return nil, fmt.Errorf("invalid INITIAL_CASH: %w", err)
	}
	if initialCash < 0 {
		return nil, fmt.Errorf("invalid INITIAL_CASH: must be >= 0")
	}

	priceStep, err := getInt64("PRICE_STEP_CENTS", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_STEP_CENTS: %w", err)
	}
	if priceStep < 0 {
		return nil, fmt.Errorf("invalid PRICE_STEP_CENTS: must be >= 0")
	}

	priceSeed, err := getInt64("PRICE_SEED", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_SEED: %w", err)
	}

	bcryptCost, err := getInt("BCRYPT_COST", bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("invalid BCRYPT_COST: must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	cycleInterval, err := getDuration("CYCLE_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid CYCLE_INTERVAL: %w", err)
	}
	if cycleInterval < 0 {
		return nil, fmt.Errorf("invalid CYCLE_INTERVAL: must be >= 0")
	}

	webhookURL := getStr("WEBHOOK_URL", "")
	if webhookURL != "" {
		parsed, err := url.ParseRequestURI(webhookURL)
		if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, fmt.Errorf("invalid WEBHOOK_URL: %q must be an absolute http(s) URL", webhookURL)
		}
	}

	webhookTimeout, err := getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		Symbols:         symbols,
		InitialPrice:    initialPrice,
		InitialCash:     initialCash,
		PriceStep:       priceStep,
		PriceSeed:       priceSeed,
		BcryptCost:      bcryptCost,
		CycleInterval:   cycleInterval,
		JournalPath:     getStr("JOURNAL_PATH", ""),
		KafkaBrokers:    getList("KAFKA_BROKERS", nil),
		KafkaTopic:      getStr("KAFKA_TOPIC", "tradesim.transactions"),
		WebhookURL:      webhookURL,
		WebhookTimeout:  webhookTimeout,
		CORSOrigin:      getStr("CORS_ORIGIN", "*"),
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// getCents parses a dollar amount such as "100.00".
func getCents(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return domain.DollarsToCents(f)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated value, dropping empty entries.
func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
