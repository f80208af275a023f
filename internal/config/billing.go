package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// BillingConfig carries every tunable of the billing and settlement path.
// These are threaded into the services explicitly so a settlement-time rate
// change is an input, not a hidden global.
type BillingConfig struct {
	UnitSeconds     int64           // billing unit size; partial units round up
	PayoutRate      decimal.Decimal // consultant share of each charge
	MinStartBalance int64           // minimum customer balance to open a session
	DriftTolerance  int64           // reconciliation tolerance, normally 0
	GatewayURL      string
	GatewayTimeout  time.Duration
}

func LoadBillingConfig() *BillingConfig {
	cfg := &BillingConfig{
		UnitSeconds:     getEnvAsInt64("BILLING_UNIT_SECONDS", 30),
		PayoutRate:      getEnvAsDecimal("BILLING_PAYOUT_RATE", "0.70"),
		MinStartBalance: getEnvAsInt64("BILLING_MIN_START_BALANCE", 10),
		DriftTolerance:  getEnvAsInt64("RECONCILE_DRIFT_TOLERANCE", 0),
		GatewayURL:      getEnv("PAYMENT_GATEWAY_URL", "http://localhost:9090/authorize"),
		GatewayTimeout:  getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
	}
	// The unit size divides every session duration; a non-positive value
	// would break billing at the first session close.
	if cfg.UnitSeconds <= 0 {
		log.Printf("[CONFIG] Invalid BILLING_UNIT_SECONDS %d, using 30", cfg.UnitSeconds)
		cfg.UnitSeconds = 30
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsDecimal(key, defaultVal string) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultVal)
}
