package market

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"predictchain/native/common"
	"predictchain/native/safemath"
)

const (
	MaxQuestionLength = 200
	MaxOptionLength   = 50
	MaxCategoryLength = 50
	MinOptions        = 2
	MaxOptions        = 10

	// MinCreatorStake is 100 tokens at six decimals.
	MinCreatorStake  uint64 = 100_000_000
	MaxBetAmount     uint64 = 1_000_000_000_000_000
	MaxTotalPoolSize uint64 = 100_000_000_000_000_000

	MinMarketDuration int64 = 3600
	// MaxEndHorizon bounds how far in the future a market may close.
	MaxEndHorizon int64 = 365 * 24 * 3600
	// ExpiryBuffer is the grace period after the resolution date during which
	// bets are still accepted.
	ExpiryBuffer int64 = 300
)

// Status is the lifecycle state of a market.
type Status uint8

const (
	StatusActive Status = iota
	StatusPaused
	StatusResolved
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusResolved:
		return "resolved"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Market is a pooled-stake question with a fixed option set.
type Market struct {
	ID             uint64
	Creator        [20]byte
	Question       string
	Options        []string
	Category       string
	CreatedAt      int64
	ResolutionDate int64
	Status         Status
	Pools          []uint64
	TotalPool      uint64
	CreatorStake   uint64
	WinningOption  *uint8
	Paused         bool
	Guard          common.ReentrancyGuard
	ResolvedAt     int64
	StakeReclaimed bool
}

// Clone returns a deep copy.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Options = append([]string(nil), m.Options...)
	clone.Pools = append([]uint64(nil), m.Pools...)
	if m.WinningOption != nil {
		w := *m.WinningOption
		clone.WinningOption = &w
	}
	return &clone
}

// Expired reports whether bets are closed at now.
func (m *Market) Expired(now int64) bool {
	return now > m.ResolutionDate+ExpiryBuffer
}

// StatusAt derives the effective status at now. Expiry is never stored.
func (m *Market) StatusAt(now int64) Status {
	if m.Status == StatusActive && m.Expired(now) {
		return StatusExpired
	}
	return m.Status
}

// CheckPools verifies that the option pools add up to the total pool.
func (m *Market) CheckPools() error {
	sum, err := safemath.Sum(m.Pools)
	if err != nil {
		return err
	}
	if sum != m.TotalPool {
		return fmt.Errorf("market %d: pools sum to %d, total pool is %d", m.ID, sum, m.TotalPool)
	}
	return nil
}

// Prediction is a user's accumulated position on one market.
type Prediction struct {
	User          [20]byte
	MarketID      uint64
	OptionIndex   uint8
	NetAmount     uint64
	Claimed       bool
	ClaimedAmount uint64
}

// VaultAddress derives the account that escrows a market's pool.
func VaultAddress(id uint64) [20]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	hash := ethcrypto.Keccak256([]byte("market-vault"), buf[:])
	var out [20]byte
	copy(out[:], hash[len(hash)-20:])
	return out
}

// CreateParams carries the user-supplied fields of a new market.
type CreateParams struct {
	Question     string
	Options      []string
	Category     string
	EndTimestamp int64
	CreatorStake uint64
}

func (p CreateParams) normalize() (CreateParams, error) {
	out := CreateParams{
		Question:     strings.TrimSpace(p.Question),
		Category:     strings.TrimSpace(p.Category),
		EndTimestamp: p.EndTimestamp,
		CreatorStake: p.CreatorStake,
	}
	if out.Question == "" || utf8.RuneCountInString(out.Question) > MaxQuestionLength {
		return CreateParams{}, ErrInvalidQuestion
	}
	if len(p.Options) < MinOptions || len(p.Options) > MaxOptions {
		return CreateParams{}, ErrInvalidOptionCount
	}
	out.Options = make([]string, len(p.Options))
	for i, opt := range p.Options {
		trimmed := strings.TrimSpace(opt)
		if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxOptionLength {
			return CreateParams{}, fmt.Errorf("%w: option %d", ErrInvalidOption, i)
		}
		out.Options[i] = trimmed
	}
	if out.Category == "" || utf8.RuneCountInString(out.Category) > MaxCategoryLength {
		return CreateParams{}, ErrInvalidCategory
	}
	return out, nil
}
