package platform

import (
	"errors"
	"time"

	"predictchain/core/events"
	"predictchain/core/types"
	"predictchain/native/common"
)

var (
	ErrUnauthorized       = errors.New("platform: unauthorized")
	ErrRateTooHigh        = errors.New("platform: burn rate too high")
	ErrFeeTooHigh         = errors.New("platform: fee too high")
	ErrAlreadyInitialized = errors.New("platform: already initialized")
	ErrNotInitialized     = errors.New("platform: not initialized")
	// ErrPlatformPaused aliases the shared guard error so callers can match
	// either name.
	ErrPlatformPaused = common.ErrPlatformPaused

	errNilState = errors.New("platform: state not configured")
)

type engineState interface {
	common.Journal
	PlatformConfig() (*Config, bool, error)
	PutPlatformConfig(cfg *Config) error
	AppendEvent(evt *types.Event)
}

// Engine owns the platform configuration singleton.
type Engine struct {
	state engineState
	nowFn func() int64
}

// NewEngine returns an engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{nowFn: func() int64 { return time.Now().Unix() }}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source. Nil restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// InitParams groups the values supplied at platform initialisation.
type InitParams struct {
	Authority        [20]byte
	TokenMint        [20]byte
	Treasury         [20]byte
	BetBurnRateBps   uint16
	ClaimBurnRateBps uint16
	PlatformFeeBps   uint16
	MinBetAmount     uint64
}

// Initialize creates the configuration singleton with zeroed counters.
func (e *Engine) Initialize(params InitParams) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := validateBurnRate(params.BetBurnRateBps); err != nil {
		return err
	}
	if err := validateBurnRate(params.ClaimBurnRateBps); err != nil {
		return err
	}
	if err := validateFee(params.PlatformFeeBps); err != nil {
		return err
	}
	return common.Atomic(e.state, func() error {
		if _, ok, err := e.state.PlatformConfig(); err != nil {
			return err
		} else if ok {
			return ErrAlreadyInitialized
		}
		return e.state.PutPlatformConfig(&Config{
			Authority:        params.Authority,
			TokenMint:        params.TokenMint,
			Treasury:         params.Treasury,
			BetBurnRateBps:   params.BetBurnRateBps,
			ClaimBurnRateBps: params.ClaimBurnRateBps,
			PlatformFeeBps:   params.PlatformFeeBps,
			MinBetAmount:     params.MinBetAmount,
		})
	})
}

// Config returns a copy of the stored configuration.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := e.state.PlatformConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

// UpdateParameters validates every provided field before applying any of
// them.
func (e *Engine) UpdateParameters(caller [20]byte, update ParamUpdate) error {
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if caller != cfg.Authority {
		return ErrUnauthorized
	}
	if err := update.Validate(); err != nil {
		return err
	}
	return common.Atomic(e.state, func() error {
		update.apply(cfg)
		if err := e.state.PutPlatformConfig(cfg); err != nil {
			return err
		}
		e.state.AppendEvent(events.PlatformUpdated{
			Admin:         caller,
			BetBurnRate:   cfg.BetBurnRateBps,
			ClaimBurnRate: cfg.ClaimBurnRateBps,
			PlatformFee:   cfg.PlatformFeeBps,
		}.Event())
		return nil
	})
}

// SetPause flips the platform-wide pause flag. Counters are untouched.
func (e *Engine) SetPause(caller [20]byte, paused bool) error {
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if caller != cfg.Authority {
		return ErrUnauthorized
	}
	return common.Atomic(e.state, func() error {
		cfg.Paused = paused
		if err := e.state.PutPlatformConfig(cfg); err != nil {
			return err
		}
		if paused {
			e.state.AppendEvent(events.PlatformPaused{Admin: caller, Timestamp: e.now()}.Event())
		} else {
			e.state.AppendEvent(events.PlatformUnpaused{Admin: caller, Timestamp: e.now()}.Event())
		}
		return nil
	})
}
