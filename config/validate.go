package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"charge2earn/crypto"
)

var ErrInvalidConfig = errors.New("config: invalid")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// Validate checks cross-field constraints after defaults are applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("nil config")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return invalid("DataDir is required")
	}
	if _, _, err := net.SplitHostPort(cfg.RPC.Address); err != nil {
		return invalid("rpc.Address %q: %v", cfg.RPC.Address, err)
	}
	if cfg.RPC.RateLimit < 0 || cfg.RPC.Burst < 0 {
		return invalid("rpc rate limit must not be negative")
	}
	if cfg.RPC.RateLimit > 0 && cfg.RPC.Burst == 0 {
		return invalid("rpc.Burst must be positive when RateLimit is set")
	}
	if cfg.Rent.UnitsPerByteYear == 0 || cfg.Rent.ExemptionYears == 0 {
		return invalid("rent schedule must be positive")
	}
	if cfg.Program.FeeRecipient != "" {
		if _, err := crypto.DecodeAddress(cfg.Program.FeeRecipient); err != nil {
			return invalid("program.FeeRecipient: %v", err)
		}
	}
	if cfg.Faucet.Enabled && cfg.Faucet.MaxAmount == 0 {
		return invalid("faucet.MaxAmount must be positive when the faucet is enabled")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return invalid("telemetry.SampleRatio must be within [0, 1]")
	}
	for i, entry := range cfg.Genesis {
		if _, err := crypto.DecodeAddress(entry.Address); err != nil {
			return invalid("genesis[%d].Address: %v", i, err)
		}
	}
	return nil
}
