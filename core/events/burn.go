package events

import "predictchain/core/types"

const TypeBurn = "BurnEvent"

// BurnType identifies the flow that produced a burn.
type BurnType uint8

const (
	BurnTypePredictionBet BurnType = iota
	BurnTypeRewardClaim
	BurnTypeMarketCreation
)

// String returns the variant name used on the wire.
func (t BurnType) String() string {
	switch t {
	case BurnTypePredictionBet:
		return "PredictionBet"
	case BurnTypeRewardClaim:
		return "RewardClaim"
	case BurnTypeMarketCreation:
		return "MarketCreation"
	default:
		return "Unknown"
	}
}

// Burn is consumed asynchronously by the off-chain settlement webhook.
type Burn struct {
	BurnType             BurnType
	User                 [20]byte
	Market               uint64
	Amount               uint64
	BurnAmount           uint64
	PredictionOption     *string
	Timestamp            int64
	TransactionSignature [64]byte
}

func (Burn) EventType() string { return TypeBurn }

func (e Burn) Event() *types.Event {
	attrs := map[string]string{
		"burn_type":             e.BurnType.String(),
		"user":                  formatAddress(e.User),
		"market":                formatUint(e.Market),
		"amount":                formatUint(e.Amount),
		"burn_amount":           formatUint(e.BurnAmount),
		"timestamp":             formatInt(e.Timestamp),
		"transaction_signature": formatSignature(e.TransactionSignature),
	}
	if e.PredictionOption != nil {
		attrs["prediction_option"] = *e.PredictionOption
	}
	return &types.Event{Type: TypeBurn, Attributes: attrs}
}
