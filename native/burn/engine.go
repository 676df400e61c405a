package burn

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"predictchain/core/events"
	"predictchain/core/types"
	"predictchain/native/common"
	"predictchain/native/platform"
	"predictchain/native/token"
)

var (
	ErrInvalidAmount  = errors.New("burn: amount must be positive")
	ErrInvalidProofID = errors.New("burn: invalid proof id")
	ErrDuplicateProof = errors.New("burn: proof already processed")

	errNilState = errors.New("burn: state not configured")
	errNilToken = errors.New("burn: token service not configured")
)

// MaxProofIDLength bounds externally supplied settlement proof identifiers.
const MaxProofIDLength = 100

type engineState interface {
	common.Journal
	PlatformConfig() (*platform.Config, bool, error)
	PutPlatformConfig(cfg *platform.Config) error
	BurnProofSeen(id string) (bool, error)
	MarkBurnProof(id string) error
	AppendEvent(evt *types.Event)
}

// Engine moves platform tokens for every fee-bearing flow and keeps the
// platform burn and volume counters in step with what was actually burned.
type Engine struct {
	state engineState
	token token.Service
	nowFn func() int64
}

func NewEngine() *Engine {
	return &Engine{nowFn: func() int64 { return time.Now().Unix() }}
}

func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken configures the platform token service.
func (e *Engine) SetToken(svc token.Service) { e.token = svc }

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	return nil
}

func (e *Engine) config() (*platform.Config, error) {
	cfg, ok, err := e.state.PlatformConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, platform.ErrNotInitialized
	}
	return cfg, nil
}

// ChargeBet collects a bet: the net stake goes to the market vault, the fee
// to the treasury and the burn share is destroyed from the bettor's balance.
func (e *Engine) ChargeBet(user, vault [20]byte, marketID uint64, option string, amount uint64) (Split, error) {
	if err := e.ready(); err != nil {
		return Split{}, err
	}
	var split Split
	err := common.Atomic(e.state, func() error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := common.Guard(cfg, common.ModuleBurn); err != nil {
			return err
		}
		split, err = BetSplit(amount, cfg.BetBurnRateBps, cfg.PlatformFeeBps)
		if err != nil {
			return err
		}
		if err := e.token.Transfer(user, vault, split.Net); err != nil {
			return fmt.Errorf("burn: transfer stake: %w", err)
		}
		if err := e.token.Transfer(user, cfg.Treasury, split.Fee); err != nil {
			return fmt.Errorf("burn: transfer fee: %w", err)
		}
		if err := e.token.Burn(user, split.Burn); err != nil {
			return fmt.Errorf("burn: burn stake share: %w", err)
		}
		if err := cfg.RecordVolume(amount); err != nil {
			return err
		}
		if err := cfg.RecordBurn(split.Burn); err != nil {
			return err
		}
		if err := e.state.PutPlatformConfig(cfg); err != nil {
			return err
		}
		opt := option
		e.emit(events.BurnTypePredictionBet, user, marketID, amount, split.Burn, &opt)
		return nil
	})
	if err != nil {
		return Split{}, err
	}
	return split, nil
}

// ChargeClaim pays a reward out of the market vault, burning the claim share
// from the vault.
func (e *Engine) ChargeClaim(vault, user [20]byte, marketID uint64, reward uint64) (Split, error) {
	if err := e.ready(); err != nil {
		return Split{}, err
	}
	var split Split
	err := common.Atomic(e.state, func() error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := common.Guard(cfg, common.ModuleBurn); err != nil {
			return err
		}
		split, err = ClaimSplit(reward, cfg.ClaimBurnRateBps)
		if err != nil {
			return err
		}
		if err := e.token.Transfer(vault, user, split.Net); err != nil {
			return fmt.Errorf("burn: transfer reward: %w", err)
		}
		if err := e.token.Burn(vault, split.Burn); err != nil {
			return fmt.Errorf("burn: burn reward share: %w", err)
		}
		if err := cfg.RecordBurn(split.Burn); err != nil {
			return err
		}
		if err := e.state.PutPlatformConfig(cfg); err != nil {
			return err
		}
		e.emit(events.BurnTypeRewardClaim, user, marketID, reward, split.Burn, nil)
		return nil
	})
	if err != nil {
		return Split{}, err
	}
	return split, nil
}

// ChargeCreation escrows a creator stake in the market vault and burns the
// bet-rate share of it from the vault.
func (e *Engine) ChargeCreation(creator, vault [20]byte, marketID uint64, stake uint64) (Split, error) {
	if err := e.ready(); err != nil {
		return Split{}, err
	}
	var split Split
	err := common.Atomic(e.state, func() error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := common.Guard(cfg, common.ModuleBurn); err != nil {
			return err
		}
		split, err = ClaimSplit(stake, cfg.BetBurnRateBps)
		if err != nil {
			return err
		}
		if err := e.token.Transfer(creator, vault, stake); err != nil {
			return fmt.Errorf("burn: transfer creator stake: %w", err)
		}
		if err := e.token.Burn(vault, split.Burn); err != nil {
			return fmt.Errorf("burn: burn creator stake share: %w", err)
		}
		if err := cfg.RecordBurn(split.Burn); err != nil {
			return err
		}
		if err := e.state.PutPlatformConfig(cfg); err != nil {
			return err
		}
		e.emit(events.BurnTypeMarketCreation, creator, marketID, stake, split.Burn, nil)
		return nil
	})
	if err != nil {
		return Split{}, err
	}
	return split, nil
}

// ProcessBetBurn settles a bet burn reported by the settlement service. The
// proof id makes the call idempotent: a repeated id is rejected.
func (e *Engine) ProcessBetBurn(user [20]byte, marketID uint64, amount uint64, proofID string) (Split, error) {
	return e.processExternal(events.BurnTypePredictionBet, user, marketID, amount, proofID)
}

// ProcessClaimBurn settles a claim burn reported by the settlement service.
func (e *Engine) ProcessClaimBurn(user [20]byte, marketID uint64, amount uint64, proofID string) (Split, error) {
	return e.processExternal(events.BurnTypeRewardClaim, user, marketID, amount, proofID)
}

func (e *Engine) processExternal(kind events.BurnType, user [20]byte, marketID uint64, amount uint64, proofID string) (Split, error) {
	if err := e.ready(); err != nil {
		return Split{}, err
	}
	if amount == 0 {
		return Split{}, ErrInvalidAmount
	}
	proofID = strings.TrimSpace(proofID)
	if proofID == "" || len(proofID) > MaxProofIDLength {
		return Split{}, ErrInvalidProofID
	}
	var split Split
	err := common.Atomic(e.state, func() error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if err := common.Guard(cfg, common.ModuleBurn); err != nil {
			return err
		}
		seen, err := e.state.BurnProofSeen(proofID)
		if err != nil {
			return err
		}
		if seen {
			return ErrDuplicateProof
		}
		if kind == events.BurnTypePredictionBet {
			split, err = BetSplit(amount, cfg.BetBurnRateBps, cfg.PlatformFeeBps)
		} else {
			split, err = ClaimSplit(amount, cfg.ClaimBurnRateBps)
		}
		if err != nil {
			return err
		}
		if err := e.token.Burn(user, split.Burn); err != nil {
			return fmt.Errorf("burn: burn: %w", err)
		}
		if err := e.token.Transfer(user, cfg.Treasury, split.Fee); err != nil {
			return fmt.Errorf("burn: transfer fee: %w", err)
		}
		if err := cfg.RecordBurn(split.Burn); err != nil {
			return err
		}
		if kind == events.BurnTypePredictionBet {
			if err := cfg.RecordVolume(amount); err != nil {
				return err
			}
		}
		if err := e.state.PutPlatformConfig(cfg); err != nil {
			return err
		}
		if err := e.state.MarkBurnProof(proofID); err != nil {
			return err
		}
		e.emit(kind, user, marketID, amount, split.Burn, nil)
		return nil
	})
	if err != nil {
		return Split{}, err
	}
	return split, nil
}

func (e *Engine) emit(kind events.BurnType, user [20]byte, marketID, amount, burned uint64, option *string) {
	e.state.AppendEvent(events.Burn{
		BurnType:         kind,
		User:             user,
		Market:           marketID,
		Amount:           amount,
		BurnAmount:       burned,
		PredictionOption: option,
		Timestamp:        e.nowFn(),
	}.Event())
}
