package points

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"predictchain/core/events"
	"predictchain/core/types"
	"predictchain/native/burn"
	"predictchain/native/common"
	"predictchain/native/safemath"
)

var (
	ErrUnauthorized           = errors.New("points: unauthorized")
	ErrAlreadyInitialized     = errors.New("points: already initialized")
	ErrNotInitialized         = errors.New("points: not initialized")
	ErrInvalidAmount          = errors.New("points: amount must be positive")
	ErrActivityTypeTooLong    = errors.New("points: activity type too long")
	ErrEndpointTooLong        = errors.New("points: endpoint too long")
	ErrBelowMinimumRedemption = errors.New("points: below minimum redemption")
	ErrCooldownNotMet         = errors.New("points: redemption cooldown not met")
	ErrInsufficientBalance    = errors.New("points: insufficient balance")
	ErrInvalidIdentity        = errors.New("points: invalid external identity")
	ErrAlreadyLinked          = errors.New("points: identity already linked")
	ErrRedemptionNotFound     = errors.New("points: redemption not found")
	ErrInvalidTransition      = errors.New("points: invalid redemption transition")
	ErrInvalidRequestID       = errors.New("points: invalid request id")

	errNilState = errors.New("points: state not configured")
	errNilToken = errors.New("points: token not configured")
)

// Token is the non-transferable points balance service.
type Token interface {
	Mint(to [20]byte, amount uint64) error
	Burn(from [20]byte, amount uint64) error
	BalanceOf(addr [20]byte) (uint64, error)
}

type engineState interface {
	common.Journal
	PointsSystem() (*System, bool, error)
	PutPointsSystem(sys *System) error
	PointsStats(user [20]byte) (*UserStats, bool, error)
	PutPointsStats(stats *UserStats) error
	Redemption(id uint64) (*Redemption, bool, error)
	PutRedemption(r *Redemption) error
	Profile(user [20]byte) (*Profile, bool, error)
	PutProfile(p *Profile) error
	AppendEvent(evt *types.Event)
}

// Engine is the points ledger. It is not gated by the platform pause.
type Engine struct {
	state engineState
	token Token
	nowFn func() int64
}

func NewEngine() *Engine {
	return &Engine{nowFn: func() int64 { return time.Now().Unix() }}
}

func (e *Engine) SetState(state engineState) { e.state = state }
func (e *Engine) SetToken(t Token)           { e.token = t }

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// InitParams configures the points system.
type InitParams struct {
	Authority           [20]byte
	Mint                [20]byte
	RedemptionContract  [20]byte
	Endpoint            string
	MinRedemptionAmount uint64
	CooldownPeriod      int64
}

func (e *Engine) Initialize(params InitParams) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	endpoint := strings.TrimSpace(params.Endpoint)
	if utf8.RuneCountInString(endpoint) > MaxEndpointLength {
		return ErrEndpointTooLong
	}
	if params.CooldownPeriod < 0 {
		return fmt.Errorf("points: negative cooldown %d", params.CooldownPeriod)
	}
	return common.Atomic(e.state, func() error {
		_, ok, err := e.state.PointsSystem()
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyInitialized
		}
		return e.state.PutPointsSystem(&System{
			Authority:           params.Authority,
			Mint:                params.Mint,
			RedemptionContract:  params.RedemptionContract,
			Endpoint:            endpoint,
			MinRedemptionAmount: params.MinRedemptionAmount,
			CooldownPeriod:      params.CooldownPeriod,
			NextRedemptionID:    1,
		})
	})
}

// System returns the stored points singleton.
func (e *Engine) System() (*System, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sys, ok, err := e.state.PointsSystem()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return sys, nil
}

// Stats returns the user's stats, zero-valued if they have none yet.
func (e *Engine) Stats(user [20]byte) (*UserStats, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stats, ok, err := e.state.PointsStats(user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &UserStats{User: user}, nil
	}
	return stats, nil
}

// Redemption returns a stored redemption record.
func (e *Engine) Redemption(id uint64) (*Redemption, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	r, ok, err := e.state.Redemption(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRedemptionNotFound
	}
	return r, nil
}

// Mint credits points earned through activityType.
func (e *Engine) Mint(caller, user [20]byte, amount uint64, activityType string) error {
	sys, err := e.System()
	if err != nil {
		return err
	}
	if e.token == nil {
		return errNilToken
	}
	if caller != sys.Authority {
		return ErrUnauthorized
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if utf8.RuneCountInString(activityType) > MaxActivityTypeLength {
		return ErrActivityTypeTooLong
	}
	stats, err := e.Stats(user)
	if err != nil {
		return err
	}
	now := e.nowFn()
	return common.Atomic(e.state, func() error {
		if sys.TotalMinted, err = safemath.Add(sys.TotalMinted, amount); err != nil {
			return err
		}
		if stats.TotalEarned, err = safemath.Add(stats.TotalEarned, amount); err != nil {
			return err
		}
		stats.LastEarnedAt = now
		if err := e.token.Mint(user, amount); err != nil {
			return fmt.Errorf("points: mint: %w", err)
		}
		if err := e.state.PutPointsSystem(sys); err != nil {
			return err
		}
		if err := e.state.PutPointsStats(stats); err != nil {
			return err
		}
		e.state.AppendEvent(events.PointsMinted{
			User:         user,
			Amount:       amount,
			ActivityType: activityType,
			Timestamp:    now,
		}.Event())
		return nil
	})
}

// Redeem burns amount points and records a pending redemption for off-chain
// settlement.
func (e *Engine) Redeem(user [20]byte, amount uint64) (*Redemption, error) {
	sys, err := e.System()
	if err != nil {
		return nil, err
	}
	if e.token == nil {
		return nil, errNilToken
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if amount < sys.MinRedemptionAmount {
		return nil, ErrBelowMinimumRedemption
	}
	stats, err := e.Stats(user)
	if err != nil {
		return nil, err
	}
	now := e.nowFn()
	if stats.LastRedeemedAt != nil && now-*stats.LastRedeemedAt < sys.CooldownPeriod {
		return nil, fmt.Errorf("%w: %ds remaining", ErrCooldownNotMet, sys.CooldownPeriod-(now-*stats.LastRedeemedAt))
	}
	balance, err := e.token.BalanceOf(user)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, ErrInsufficientBalance
	}
	split := burn.Full(amount)

	var record *Redemption
	err = common.Atomic(e.state, func() error {
		if err := e.token.Burn(user, split.Burn); err != nil {
			return fmt.Errorf("points: burn: %w", err)
		}
		if sys.TotalRedeemed, err = safemath.Add(sys.TotalRedeemed, amount); err != nil {
			return err
		}
		if stats.TotalRedeemed, err = safemath.Add(stats.TotalRedeemed, amount); err != nil {
			return err
		}
		redeemedAt := now
		stats.LastRedeemedAt = &redeemedAt
		record = &Redemption{
			ID:        sys.NextRedemptionID,
			User:      user,
			Amount:    amount,
			Timestamp: now,
			Status:    RedemptionPending,
		}
		if sys.NextRedemptionID, err = safemath.Add(sys.NextRedemptionID, 1); err != nil {
			return err
		}
		if err := e.state.PutRedemption(record); err != nil {
			return err
		}
		if err := e.state.PutPointsSystem(sys); err != nil {
			return err
		}
		if err := e.state.PutPointsStats(stats); err != nil {
			return err
		}
		e.state.AppendEvent(events.PointsRedeemed{
			User:         user,
			Amount:       amount,
			RedemptionID: record.ID,
			Timestamp:    now,
		}.Event())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// LinkIdentity binds the wallet to an external account. The binding is
// permanent.
func (e *Engine) LinkIdentity(user [20]byte, externalID, username string) (*Profile, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	externalID = strings.TrimSpace(externalID)
	username = strings.TrimSpace(username)
	if externalID == "" || utf8.RuneCountInString(externalID) > MaxExternalIDLength {
		return nil, fmt.Errorf("%w: external id", ErrInvalidIdentity)
	}
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength {
		return nil, fmt.Errorf("%w: username", ErrInvalidIdentity)
	}
	_, ok, err := e.state.Profile(user)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrAlreadyLinked
	}
	profile := &Profile{Wallet: user, ExternalID: externalID, ExternalUsername: username, LinkedAt: e.nowFn()}
	err = common.Atomic(e.state, func() error {
		if err := e.state.PutProfile(profile); err != nil {
			return err
		}
		e.state.AppendEvent(events.TwitterLinked{
			User:            user,
			TwitterID:       externalID,
			TwitterUsername: username,
			Timestamp:       profile.LinkedAt,
		}.Event())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Profile returns the linked identity for user.
func (e *Engine) Profile(user [20]byte) (*Profile, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.Profile(user)
}

// AdvanceRedemption records a settlement callback. Only the authority or the
// redemption contract may call it.
func (e *Engine) AdvanceRedemption(caller [20]byte, id uint64, next RedemptionStatus, requestID string) (*Redemption, error) {
	sys, err := e.System()
	if err != nil {
		return nil, err
	}
	if caller != sys.Authority && caller != sys.RedemptionContract {
		return nil, ErrUnauthorized
	}
	if len(requestID) > MaxRequestIDLength {
		return nil, ErrInvalidRequestID
	}
	r, err := e.Redemption(id)
	if err != nil {
		return nil, err
	}
	if !r.Status.canAdvance(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, next)
	}
	err = common.Atomic(e.state, func() error {
		r.Status = next
		if requestID != "" {
			r.RequestID = requestID
		}
		return e.state.PutRedemption(r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
