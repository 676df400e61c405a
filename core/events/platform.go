package events

import "predictchain/core/types"

const (
	TypePlatformUpdated  = "PlatformUpdated"
	TypePlatformPaused   = "PlatformPaused"
	TypePlatformUnpaused = "PlatformUnpaused"
)

// PlatformUpdated carries the full rate set after a successful parameter
// update.
type PlatformUpdated struct {
	Admin         [20]byte
	BetBurnRate   uint16
	ClaimBurnRate uint16
	PlatformFee   uint16
}

func (PlatformUpdated) EventType() string { return TypePlatformUpdated }

func (e PlatformUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePlatformUpdated,
		Attributes: map[string]string{
			"admin":           formatAddress(e.Admin),
			"bet_burn_rate":   formatUint(uint64(e.BetBurnRate)),
			"claim_burn_rate": formatUint(uint64(e.ClaimBurnRate)),
			"platform_fee":    formatUint(uint64(e.PlatformFee)),
		},
	}
}

type PlatformPaused struct {
	Admin     [20]byte
	Timestamp int64
}

func (PlatformPaused) EventType() string { return TypePlatformPaused }

func (e PlatformPaused) Event() *types.Event {
	return &types.Event{
		Type: TypePlatformPaused,
		Attributes: map[string]string{
			"admin":     formatAddress(e.Admin),
			"timestamp": formatInt(e.Timestamp),
		},
	}
}

type PlatformUnpaused struct {
	Admin     [20]byte
	Timestamp int64
}

func (PlatformUnpaused) EventType() string { return TypePlatformUnpaused }

func (e PlatformUnpaused) Event() *types.Event {
	return &types.Event{
		Type: TypePlatformUnpaused,
		Attributes: map[string]string{
			"admin":     formatAddress(e.Admin),
			"timestamp": formatInt(e.Timestamp),
		},
	}
}
