package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadBillingConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadBillingConfig()
		assert.Equal(t, int64(30), cfg.UnitSeconds)
		assert.Equal(t, "0.7", cfg.PayoutRate.String())
		assert.Equal(t, int64(10), cfg.MinStartBalance)
		assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	})

	t.Run("overrides from environment", func(t *testing.T) {
		t.Setenv("BILLING_UNIT_SECONDS", "60")
		t.Setenv("BILLING_PAYOUT_RATE", "0.85")
		cfg := LoadBillingConfig()
		assert.Equal(t, int64(60), cfg.UnitSeconds)
		assert.Equal(t, "0.85", cfg.PayoutRate.String())
	})

	t.Run("non-positive unit size falls back", func(t *testing.T) {
		t.Setenv("BILLING_UNIT_SECONDS", "0")
		cfg := LoadBillingConfig()
		assert.Equal(t, int64(30), cfg.UnitSeconds)

		t.Setenv("BILLING_UNIT_SECONDS", "-15")
		cfg = LoadBillingConfig()
		assert.Equal(t, int64(30), cfg.UnitSeconds)
	})
}
