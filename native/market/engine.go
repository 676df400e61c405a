package market

import (
	"errors"
	"fmt"
	"time"

	"predictchain/core/events"
	"predictchain/core/types"
	"predictchain/native/burn"
	"predictchain/native/common"
	"predictchain/native/platform"
	"predictchain/native/safemath"
	"predictchain/native/token"
)

var (
	ErrUnauthorized             = errors.New("market: unauthorized")
	ErrUnauthorizedCreator      = errors.New("market: creator not authorized")
	ErrInvalidQuestion          = errors.New("market: invalid question")
	ErrInvalidOptionCount       = errors.New("market: invalid option count")
	ErrInvalidOption            = errors.New("market: invalid option")
	ErrInvalidCategory          = errors.New("market: invalid category")
	ErrInvalidEndTimestamp      = errors.New("market: invalid end timestamp")
	ErrMarketDurationTooShort   = errors.New("market: duration too short")
	ErrInsufficientCreatorStake = errors.New("market: insufficient creator stake")
	ErrMarketNotFound           = errors.New("market: not found")
	ErrMarketPaused             = errors.New("market: paused")
	ErrMarketNotActive          = errors.New("market: not active")
	ErrMarketExpired            = errors.New("market: expired")
	ErrInvalidOptionIndex       = errors.New("market: invalid option index")
	ErrBetTooSmall              = errors.New("market: bet too small")
	ErrBetTooLarge              = errors.New("market: bet too large")
	ErrPoolOverflow             = errors.New("market: pool overflow")
	ErrOptionMismatch           = errors.New("market: position is on a different option")
	ErrMarketAlreadyResolved    = errors.New("market: already resolved")
	ErrMarketNotResolved        = errors.New("market: not resolved")
	ErrPredictionNotFound       = errors.New("market: prediction not found")
	ErrRewardAlreadyClaimed     = errors.New("market: reward already claimed")
	ErrNotAWinner               = errors.New("market: not a winner")
	ErrStakeAlreadyReclaimed    = errors.New("market: creator stake already reclaimed")
	ErrReentrancyDetected       = common.ErrReentrancyDetected

	errNilState   = errors.New("market: state not configured")
	errNilCharger = errors.New("market: burn charger not configured")
)

// CreatorRegistry answers whether an address may open markets.
type CreatorRegistry interface {
	IsCreator(addr [20]byte) (bool, error)
}

// ResolutionGate authorises resolutions. Authorize must fail unless an
// approved, unexpired proposal for outcome exists and resolver may act on it.
type ResolutionGate interface {
	Authorize(marketID uint64, resolver [20]byte, outcome uint8, now int64) error
	Consume(marketID uint64) error
}

// Charger moves and burns platform tokens on behalf of the market.
type Charger interface {
	ChargeBet(user, vault [20]byte, marketID uint64, option string, amount uint64) (burn.Split, error)
	ChargeClaim(vault, user [20]byte, marketID uint64, reward uint64) (burn.Split, error)
	ChargeCreation(creator, vault [20]byte, marketID uint64, stake uint64) (burn.Split, error)
}

type engineState interface {
	common.Journal
	PlatformConfig() (*platform.Config, bool, error)
	AllocateMarketID() (uint64, error)
	Market(id uint64) (*Market, bool, error)
	PutMarket(m *Market) error
	Prediction(marketID uint64, user [20]byte) (*Prediction, bool, error)
	PutPrediction(p *Prediction) error
	AppendEvent(evt *types.Event)
}

// Engine implements the market lifecycle.
type Engine struct {
	state    engineState
	creators CreatorRegistry
	gate     ResolutionGate
	charger  Charger
	token    token.Service
	nowFn    func() int64
}

func NewEngine() *Engine {
	return &Engine{nowFn: func() int64 { return time.Now().Unix() }}
}

func (e *Engine) SetState(state engineState)          { e.state = state }
func (e *Engine) SetCreatorRegistry(r CreatorRegistry) { e.creators = r }
func (e *Engine) SetResolutionGate(g ResolutionGate)   { e.gate = g }
func (e *Engine) SetCharger(c Charger)                 { e.charger = c }
func (e *Engine) SetToken(svc token.Service)           { e.token = svc }

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.charger == nil {
		return errNilCharger
	}
	return nil
}

func (e *Engine) platformConfig() (*platform.Config, error) {
	cfg, ok, err := e.state.PlatformConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, platform.ErrNotInitialized
	}
	return cfg, nil
}

// Market returns the stored market.
func (e *Engine) Market(id uint64) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	m, ok, err := e.state.Market(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMarketNotFound, id)
	}
	return m, nil
}

// Prediction returns user's position on the market.
func (e *Engine) Prediction(marketID uint64, user [20]byte) (*Prediction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, ok, err := e.state.Prediction(marketID, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPredictionNotFound
	}
	return p, nil
}

// locked holds the market's reentrancy guard for the duration of fn. The
// guard is persisted before fn runs so a nested call observes it, and the
// released market is stored once fn succeeds. On failure the caller's
// snapshot restores the unlocked record.
func (e *Engine) locked(m *Market, fn func() error) (err error) {
	if err := m.Guard.Enter(); err != nil {
		return err
	}
	defer func() {
		m.Guard.Exit()
		if err == nil {
			err = e.state.PutMarket(m)
		}
	}()
	if err := e.state.PutMarket(m); err != nil {
		return err
	}
	return fn()
}

// Create opens a market on behalf of an authorised creator and escrows its
// stake.
func (e *Engine) Create(creator [20]byte, params CreateParams) (*Market, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.platformConfig()
	if err != nil {
		return nil, err
	}
	if err := common.Guard(cfg, common.ModuleMarket); err != nil {
		return nil, err
	}
	if e.creators == nil {
		return nil, ErrUnauthorizedCreator
	}
	allowed, err := e.creators.IsCreator(creator)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrUnauthorizedCreator
	}
	params, err = params.normalize()
	if err != nil {
		return nil, err
	}
	now := e.now()
	if params.EndTimestamp <= now || params.EndTimestamp-now > MaxEndHorizon {
		return nil, ErrInvalidEndTimestamp
	}
	if params.EndTimestamp-now < MinMarketDuration {
		return nil, ErrMarketDurationTooShort
	}
	if params.CreatorStake < MinCreatorStake {
		return nil, ErrInsufficientCreatorStake
	}

	var created *Market
	err = common.Atomic(e.state, func() error {
		id, err := e.state.AllocateMarketID()
		if err != nil {
			return err
		}
		m := &Market{
			ID:             id,
			Creator:        creator,
			Question:       params.Question,
			Options:        params.Options,
			Category:       params.Category,
			CreatedAt:      now,
			ResolutionDate: params.EndTimestamp,
			Status:         StatusActive,
			Pools:          make([]uint64, len(params.Options)),
		}
		if err := e.locked(m, func() error {
			split, err := e.charger.ChargeCreation(creator, VaultAddress(id), id, params.CreatorStake)
			if err != nil {
				return err
			}
			m.CreatorStake = split.Net
			return nil
		}); err != nil {
			return err
		}
		e.state.AppendEvent(events.MarketCreated{
			Market:       id,
			Creator:      creator,
			Question:     m.Question,
			Options:      m.Options,
			Category:     m.Category,
			EndTimestamp: m.ResolutionDate,
			CreatorStake: params.CreatorStake,
		}.Event())
		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// PlacePrediction stakes amount on optionIndex. The position and pools are
// credited and stored before the token movement; any failure reverts both.
func (e *Engine) PlacePrediction(user [20]byte, marketID uint64, optionIndex uint8, amount uint64) (*Prediction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.platformConfig()
	if err != nil {
		return nil, err
	}
	if err := common.Guard(cfg, common.ModuleMarket); err != nil {
		return nil, err
	}
	m, err := e.Market(marketID)
	if err != nil {
		return nil, err
	}
	if m.Guard.Entered {
		return nil, ErrReentrancyDetected
	}
	if m.Paused {
		return nil, ErrMarketPaused
	}
	if m.Status != StatusActive {
		return nil, ErrMarketNotActive
	}
	if m.Expired(e.now()) {
		return nil, ErrMarketExpired
	}
	if int(optionIndex) >= len(m.Options) {
		return nil, ErrInvalidOptionIndex
	}
	if amount == 0 || amount < cfg.MinBetAmount {
		return nil, ErrBetTooSmall
	}
	if amount > MaxBetAmount {
		return nil, ErrBetTooLarge
	}
	if total, err := safemath.Add(m.TotalPool, amount); err != nil || total > MaxTotalPoolSize {
		return nil, ErrPoolOverflow
	}
	split, err := burn.BetSplit(amount, cfg.BetBurnRateBps, cfg.PlatformFeeBps)
	if err != nil {
		return nil, err
	}
	pred, ok, err := e.state.Prediction(marketID, user)
	if err != nil {
		return nil, err
	}
	if ok && pred.OptionIndex != optionIndex {
		return nil, ErrOptionMismatch
	}
	if !ok {
		pred = &Prediction{User: user, MarketID: marketID, OptionIndex: optionIndex}
	}

	err = common.Atomic(e.state, func() error {
		return e.locked(m, func() error {
			if pred.NetAmount, err = safemath.Add(pred.NetAmount, split.Net); err != nil {
				return err
			}
			if m.Pools[optionIndex], err = safemath.Add(m.Pools[optionIndex], split.Net); err != nil {
				return err
			}
			if m.TotalPool, err = safemath.Add(m.TotalPool, split.Net); err != nil {
				return err
			}
			if err := e.state.PutPrediction(pred); err != nil {
				return err
			}
			if err := e.state.PutMarket(m); err != nil {
				return err
			}
			if _, err := e.charger.ChargeBet(user, VaultAddress(marketID), marketID, m.Options[optionIndex], amount); err != nil {
				return err
			}
			e.state.AppendEvent(events.PredictionPlaced{
				User:        user,
				Market:      marketID,
				OptionIndex: optionIndex,
				Amount:      amount,
				NetAmount:   split.Net,
				BurnAmount:  split.Burn,
			}.Event())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	out := *pred
	return &out, nil
}

// Resolve settles the market on winningOption once the committee has
// approved that outcome.
func (e *Engine) Resolve(resolver [20]byte, marketID uint64, winningOption uint8) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	m, err := e.Market(marketID)
	if err != nil {
		return err
	}
	if m.Status == StatusResolved {
		return ErrMarketAlreadyResolved
	}
	if int(winningOption) >= len(m.Options) {
		return ErrInvalidOptionIndex
	}
	if e.gate == nil {
		return ErrUnauthorized
	}
	now := e.now()
	if err := e.gate.Authorize(marketID, resolver, winningOption, now); err != nil {
		return err
	}
	return common.Atomic(e.state, func() error {
		winner := winningOption
		m.Status = StatusResolved
		m.WinningOption = &winner
		m.ResolvedAt = now
		if err := e.state.PutMarket(m); err != nil {
			return err
		}
		if err := e.gate.Consume(marketID); err != nil {
			return err
		}
		e.state.AppendEvent(events.MarketResolved{
			Market:         marketID,
			Resolver:       resolver,
			WinningOption:  winningOption,
			ResolutionTime: now,
		}.Event())
		return nil
	})
}

// ClaimReward pays a winner their pro-rata share of the total pool, less the
// claim burn.
func (e *Engine) ClaimReward(user [20]byte, marketID uint64) (burn.Split, error) {
	if err := e.ready(); err != nil {
		return burn.Split{}, err
	}
	cfg, err := e.platformConfig()
	if err != nil {
		return burn.Split{}, err
	}
	if err := common.Guard(cfg, common.ModuleMarket); err != nil {
		return burn.Split{}, err
	}
	m, err := e.Market(marketID)
	if err != nil {
		return burn.Split{}, err
	}
	if m.Guard.Entered {
		return burn.Split{}, ErrReentrancyDetected
	}
	if m.Paused {
		return burn.Split{}, ErrMarketPaused
	}
	if m.Status != StatusResolved || m.WinningOption == nil {
		return burn.Split{}, ErrMarketNotResolved
	}
	pred, err := e.Prediction(marketID, user)
	if err != nil {
		return burn.Split{}, err
	}
	if pred.Claimed {
		return burn.Split{}, ErrRewardAlreadyClaimed
	}
	winner := *m.WinningOption
	if pred.OptionIndex != winner {
		return burn.Split{}, ErrNotAWinner
	}
	reward, err := safemath.MulDiv(pred.NetAmount, m.TotalPool, m.Pools[winner])
	if err != nil {
		return burn.Split{}, err
	}

	var split burn.Split
	err = common.Atomic(e.state, func() error {
		return e.locked(m, func() error {
			split, err = e.charger.ChargeClaim(VaultAddress(marketID), user, marketID, reward)
			if err != nil {
				return err
			}
			pred.Claimed = true
			pred.ClaimedAmount = split.Net
			if err := e.state.PutPrediction(pred); err != nil {
				return err
			}
			e.state.AppendEvent(events.RewardClaimed{
				User:       user,
				Market:     marketID,
				Amount:     reward,
				NetAmount:  split.Net,
				BurnAmount: split.Burn,
			}.Event())
			return nil
		})
	})
	if err != nil {
		return burn.Split{}, err
	}
	return split, nil
}

// SetPaused pauses or unpauses a single market. Only the platform authority
// may call it; repeating the current state is a no-op.
func (e *Engine) SetPaused(caller [20]byte, marketID uint64, paused bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	cfg, err := e.platformConfig()
	if err != nil {
		return err
	}
	if caller != cfg.Authority {
		return ErrUnauthorized
	}
	m, err := e.Market(marketID)
	if err != nil {
		return err
	}
	if m.Paused == paused {
		return nil
	}
	return common.Atomic(e.state, func() error {
		m.Paused = paused
		switch {
		case paused && m.Status == StatusActive:
			m.Status = StatusPaused
		case !paused && m.Status == StatusPaused:
			m.Status = StatusActive
		}
		if err := e.state.PutMarket(m); err != nil {
			return err
		}
		now := e.now()
		if paused {
			e.state.AppendEvent(events.MarketPaused{Market: marketID, Admin: caller, Timestamp: now}.Event())
		} else {
			e.state.AppendEvent(events.MarketUnpaused{Market: marketID, Admin: caller, Timestamp: now}.Event())
		}
		return nil
	})
}

// ReclaimCreatorStake returns the escrowed creator stake once the market is
// resolved.
func (e *Engine) ReclaimCreatorStake(creator [20]byte, marketID uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if e.token == nil {
		return 0, errors.New("market: token service not configured")
	}
	m, err := e.Market(marketID)
	if err != nil {
		return 0, err
	}
	if m.Guard.Entered {
		return 0, ErrReentrancyDetected
	}
	if creator != m.Creator {
		return 0, ErrUnauthorized
	}
	if m.Status != StatusResolved {
		return 0, ErrMarketNotResolved
	}
	if m.StakeReclaimed {
		return 0, ErrStakeAlreadyReclaimed
	}
	amount := m.CreatorStake
	err = common.Atomic(e.state, func() error {
		return e.locked(m, func() error {
			if err := e.token.Transfer(VaultAddress(marketID), creator, amount); err != nil {
				return fmt.Errorf("market: return creator stake: %w", err)
			}
			m.StakeReclaimed = true
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// OptionCount returns the number of options on a market.
func (e *Engine) OptionCount(marketID uint64) (int, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return 0, err
	}
	return len(m.Options), nil
}

// IsResolved reports whether the market has been settled.
func (e *Engine) IsResolved(marketID uint64) (bool, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return false, err
	}
	return m.Status == StatusResolved, nil
}
