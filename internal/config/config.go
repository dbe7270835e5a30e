package config // config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Monetary values are integer cents; the
// commission rate is the only float in the system and is applied exactly
// once, at settlement time.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	JWTSecret string

	// PayHere gateway credentials and redirect endpoints.
	MerchantID     string
	MerchantSecret string
	ReturnURL      string
	CancelURL      string
	NotifyURL      string

	Currency       string  // settlement currency, e.g. "LKR"
	CommissionRate float64 // platform share of each settled booking

	MinWithdrawalCents     int64 // default wallet withdrawal floor
	DefaultHourlyRateCents int64 // fallback rate when the directory has none

	ReservationTTLMin int // minutes before an unpaid reservation expires
	SweepIntervalMin  int // minutes between expiry sweeps
}

// Load reads configuration from the environment.  Required variables are
// enforced by must() and missing values cause the program to exit with a
// fatal log message; tuning knobs fall back to sensible defaults.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret: must("JWT_SECRET"),

		MerchantID:     must("PAYHERE_MERCHANT_ID"),
		MerchantSecret: must("PAYHERE_MERCHANT_SECRET"),
		ReturnURL:      must("PAYHERE_RETURN_URL"),
		CancelURL:      must("PAYHERE_CANCEL_URL"),
		NotifyURL:      must("PAYHERE_NOTIFY_URL"),

		Currency:       envOr("CURRENCY", "LKR"),
		CommissionRate: envFloat("COMMISSION_RATE", 0.071),

		MinWithdrawalCents:     envInt64("MIN_WITHDRAWAL_CENTS", 100000),
		DefaultHourlyRateCents: envInt64("DEFAULT_HOURLY_RATE_CENTS", 500000),

		ReservationTTLMin: envIntOr("RESERVATION_TTL_MIN", 15),
		SweepIntervalMin:  envIntOr("SWEEP_INTERVAL_MIN", 5),
	}
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// envOr returns the variable's value or a default when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envIntOr parses an optional integer variable; a malformed value is fatal
// rather than silently defaulted.
func envIntOr(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// envInt64 is envIntOr for 64-bit cent amounts.
func envInt64(key string, def int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// envFloat parses an optional float variable, used only for the
// commission rate.
func envFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Fatalf("invalid float for %s: %q", key, s)
	}
	return f
}
