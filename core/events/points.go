package events

import "predictchain/core/types"

const (
	TypePointsMinted   = "PointsMinted"
	TypePointsRedeemed = "PointsRedeemed"
	TypeTwitterLinked  = "TwitterLinked"
)

type PointsMinted struct {
	User         [20]byte
	Amount       uint64
	ActivityType string
	Timestamp    int64
}

func (PointsMinted) EventType() string { return TypePointsMinted }

func (e PointsMinted) Event() *types.Event {
	return &types.Event{
		Type: TypePointsMinted,
		Attributes: map[string]string{
			"user":          formatAddress(e.User),
			"amount":        formatUint(e.Amount),
			"activity_type": e.ActivityType,
			"timestamp":     formatInt(e.Timestamp),
		},
	}
}

type PointsRedeemed struct {
	User         [20]byte
	Amount       uint64
	RedemptionID uint64
	Timestamp    int64
}

func (PointsRedeemed) EventType() string { return TypePointsRedeemed }

func (e PointsRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypePointsRedeemed,
		Attributes: map[string]string{
			"user":          formatAddress(e.User),
			"amount":        formatUint(e.Amount),
			"redemption_id": formatUint(e.RedemptionID),
			"timestamp":     formatInt(e.Timestamp),
		},
	}
}

// TwitterLinked keeps the original field names; the binding itself is
// provider-agnostic.
type TwitterLinked struct {
	User            [20]byte
	TwitterID       string
	TwitterUsername string
	Timestamp       int64
}

func (TwitterLinked) EventType() string { return TypeTwitterLinked }

func (e TwitterLinked) Event() *types.Event {
	return &types.Event{
		Type: TypeTwitterLinked,
		Attributes: map[string]string{
			"user":             formatAddress(e.User),
			"twitter_id":       e.TwitterID,
			"twitter_username": e.TwitterUsername,
			"timestamp":        formatInt(e.Timestamp),
		},
	}
}
