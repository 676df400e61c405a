package events

import (
	"predictchain/core/types"
)

const (
	TypeMarketCreated    = "MarketCreated"
	TypeMarketResolved   = "MarketResolved"
	TypePredictionPlaced = "PredictionPlaced"
	TypeRewardClaimed    = "RewardClaimed"
	TypeMarketPaused     = "MarketPaused"
	TypeMarketUnpaused   = "MarketUnpaused"
)

// MarketCreated is emitted once a whitelisted creator opens a market.
// CreatorStake is the amount the creator supplied, before the creation burn;
// the escrowed remainder is on the market record.
type MarketCreated struct {
	Market       uint64
	Creator      [20]byte
	Question     string
	Options      []string
	Category     string
	EndTimestamp int64
	CreatorStake uint64
}

func (MarketCreated) EventType() string { return TypeMarketCreated }

func (e MarketCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketCreated,
		Attributes: map[string]string{
			"market":        formatUint(e.Market),
			"creator":       formatAddress(e.Creator),
			"question":      e.Question,
			"options":       formatList(e.Options),
			"category":      e.Category,
			"end_timestamp": formatInt(e.EndTimestamp),
			"creator_stake": formatUint(e.CreatorStake),
		},
	}
}

type MarketResolved struct {
	Market         uint64
	Resolver       [20]byte
	WinningOption  uint8
	ResolutionTime int64
}

func (MarketResolved) EventType() string { return TypeMarketResolved }

func (e MarketResolved) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketResolved,
		Attributes: map[string]string{
			"market":          formatUint(e.Market),
			"resolver":        formatAddress(e.Resolver),
			"winning_option":  formatUint(uint64(e.WinningOption)),
			"resolution_time": formatInt(e.ResolutionTime),
		},
	}
}

// PredictionPlaced records a bet. Amount is gross; NetAmount is what was
// credited to the pool.
type PredictionPlaced struct {
	User        [20]byte
	Market      uint64
	OptionIndex uint8
	Amount      uint64
	NetAmount   uint64
	BurnAmount  uint64
}

func (PredictionPlaced) EventType() string { return TypePredictionPlaced }

func (e PredictionPlaced) Event() *types.Event {
	return &types.Event{
		Type: TypePredictionPlaced,
		Attributes: map[string]string{
			"user":         formatAddress(e.User),
			"market":       formatUint(e.Market),
			"option_index": formatUint(uint64(e.OptionIndex)),
			"amount":       formatUint(e.Amount),
			"net_amount":   formatUint(e.NetAmount),
			"burn_amount":  formatUint(e.BurnAmount),
		},
	}
}

type RewardClaimed struct {
	User       [20]byte
	Market     uint64
	Amount     uint64
	NetAmount  uint64
	BurnAmount uint64
}

func (RewardClaimed) EventType() string { return TypeRewardClaimed }

func (e RewardClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardClaimed,
		Attributes: map[string]string{
			"user":        formatAddress(e.User),
			"market":      formatUint(e.Market),
			"amount":      formatUint(e.Amount),
			"net_amount":  formatUint(e.NetAmount),
			"burn_amount": formatUint(e.BurnAmount),
		},
	}
}

type MarketPaused struct {
	Market    uint64
	Admin     [20]byte
	Timestamp int64
}

func (MarketPaused) EventType() string { return TypeMarketPaused }

func (e MarketPaused) Event() *types.Event {
	return marketPauseEvent(TypeMarketPaused, e.Market, e.Admin, e.Timestamp)
}

type MarketUnpaused struct {
	Market    uint64
	Admin     [20]byte
	Timestamp int64
}

func (MarketUnpaused) EventType() string { return TypeMarketUnpaused }

func (e MarketUnpaused) Event() *types.Event {
	return marketPauseEvent(TypeMarketUnpaused, e.Market, e.Admin, e.Timestamp)
}

func marketPauseEvent(eventType string, market uint64, admin [20]byte, ts int64) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"market":    formatUint(market),
			"admin":     formatAddress(admin),
			"timestamp": formatInt(ts),
		},
	}
}
