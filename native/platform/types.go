package platform

import (
	"fmt"

	"predictchain/native/common"
	"predictchain/native/safemath"
)

const (
	// MaxBurnRateBps caps both the bet and claim burn rates (10%).
	MaxBurnRateBps uint16 = 1000
	// MaxPlatformFeeBps caps the platform fee (5%).
	MaxPlatformFeeBps uint16 = 500
)

// Config is the platform-wide singleton holding rates, counters and the pause
// flag.
type Config struct {
	Authority        [20]byte
	TokenMint        [20]byte
	Treasury         [20]byte
	BetBurnRateBps   uint16
	ClaimBurnRateBps uint16
	PlatformFeeBps   uint16
	MinBetAmount     uint64
	TotalBurned      uint64
	TotalVolume      uint64
	Paused           bool
}

// Clone returns a copy safe for mutation.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// IsPaused implements common.PauseView. Every module gated through the
// platform shares the single pause flag.
func (c *Config) IsPaused(module string) bool {
	if c == nil {
		return false
	}
	switch module {
	case common.ModuleMarket, common.ModuleBurn:
		return c.Paused
	default:
		return false
	}
}

// RecordBurn adds amount to the burned counter.
func (c *Config) RecordBurn(amount uint64) error {
	total, err := safemath.Add(c.TotalBurned, amount)
	if err != nil {
		return fmt.Errorf("platform: total burned: %w", err)
	}
	c.TotalBurned = total
	return nil
}

// RecordVolume adds amount to the volume counter.
func (c *Config) RecordVolume(amount uint64) error {
	total, err := safemath.Add(c.TotalVolume, amount)
	if err != nil {
		return fmt.Errorf("platform: total volume: %w", err)
	}
	c.TotalVolume = total
	return nil
}

// ParamUpdate carries the optional fields of an update_parameters call. Nil
// fields are left unchanged.
type ParamUpdate struct {
	BetBurnRateBps   *uint16
	ClaimBurnRateBps *uint16
	PlatformFeeBps   *uint16
	MinBetAmount     *uint64
}

// Validate checks every provided rate against its cap.
func (u ParamUpdate) Validate() error {
	if u.BetBurnRateBps != nil {
		if err := validateBurnRate(*u.BetBurnRateBps); err != nil {
			return err
		}
	}
	if u.ClaimBurnRateBps != nil {
		if err := validateBurnRate(*u.ClaimBurnRateBps); err != nil {
			return err
		}
	}
	if u.PlatformFeeBps != nil {
		if err := validateFee(*u.PlatformFeeBps); err != nil {
			return err
		}
	}
	return nil
}

func (u ParamUpdate) apply(cfg *Config) {
	if u.BetBurnRateBps != nil {
		cfg.BetBurnRateBps = *u.BetBurnRateBps
	}
	if u.ClaimBurnRateBps != nil {
		cfg.ClaimBurnRateBps = *u.ClaimBurnRateBps
	}
	if u.PlatformFeeBps != nil {
		cfg.PlatformFeeBps = *u.PlatformFeeBps
	}
	if u.MinBetAmount != nil {
		cfg.MinBetAmount = *u.MinBetAmount
	}
}

func validateBurnRate(rate uint16) error {
	if rate > MaxBurnRateBps {
		return fmt.Errorf("%w: %dbp exceeds %dbp", ErrRateTooHigh, rate, MaxBurnRateBps)
	}
	return nil
}

func validateFee(rate uint16) error {
	if rate > MaxPlatformFeeBps {
		return fmt.Errorf("%w: %dbp exceeds %dbp", ErrFeeTooHigh, rate, MaxPlatformFeeBps)
	}
	return nil
}
