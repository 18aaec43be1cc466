// Package facilitator implements the payment facilitator service: the
// single HTTP endpoint that validates a signed EIP-3009 authorization,
// executes the transfer, and mints a signed receipt (§4.2).
package facilitator

import (
	"fmt"
	"os"
	"strconv"
)

// DefaultPort is used when PORT is unset.
const DefaultPort = "4020"

// DefaultFeePercent is used when FEE_PERCENT is unset.
const DefaultFeePercent = 2.0

// DefaultReceiptTTLSeconds is the receipt lifetime when not overridden.
const DefaultReceiptTTLSeconds = 86400

// Config holds the facilitator's environment-derived settings (§4.2, §6).
// It is read-only after Load: the pipeline never mutates it, satisfying
// the shared-read-only-config half of the concurrency model (§5).
type Config struct {
	Port            string
	JWTSecret       string
	FeePercent      float64
	FacilitatorURL  string
	MockTransfers   bool
	PrivateKey      string
	RPCURL          string
	ReceiptTTLSecs  int64
}

// Load reads configuration from the environment and validates it eagerly,
// matching the teacher's fail-fast style of checking required variables
// at startup rather than at first use.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           envOrDefault("PORT", DefaultPort),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		FacilitatorURL: os.Getenv("FACILITATOR_URL"),
		MockTransfers:  os.Getenv("MOCK_TRANSFERS") != "false",
		PrivateKey:     os.Getenv("FACILITATOR_PRIVATE_KEY"),
		RPCURL:         os.Getenv("RPC_URL"),
		ReceiptTTLSecs: DefaultReceiptTTLSeconds,
	}

	feePercent := DefaultFeePercent
	if raw := os.Getenv("FEE_PERCENT"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FEE_PERCENT %q: %w", raw, err)
		}
		feePercent = parsed
	}
	cfg.FeePercent = feePercent

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the required-field and range invariants from §4.2 and
// §6's configuration table.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.FeePercent < 0 || c.FeePercent > 50 {
		return fmt.Errorf("FEE_PERCENT must be within [0,50], got %v", c.FeePercent)
	}
	if !c.MockTransfers {
		if c.PrivateKey == "" {
			return fmt.Errorf("FACILITATOR_PRIVATE_KEY is required when MOCK_TRANSFERS=false")
		}
		if c.RPCURL == "" {
			return fmt.Errorf("RPC_URL is required when MOCK_TRANSFERS=false")
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
