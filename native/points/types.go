package points

const (
	MaxActivityTypeLength = 50
	MaxEndpointLength     = 200
	MaxExternalIDLength   = 50
	MaxUsernameLength     = 50
	MaxRequestIDLength    = 100
)

// System is the points singleton.
type System struct {
	Authority           [20]byte
	Mint                [20]byte
	RedemptionContract  [20]byte
	Endpoint            string
	MinRedemptionAmount uint64
	CooldownPeriod      int64
	TotalMinted         uint64
	TotalRedeemed       uint64
	NextRedemptionID    uint64
}

// UserStats tracks one user's earning and redemption history.
// LastRedeemedAt is nil until the first redemption.
type UserStats struct {
	User           [20]byte
	TotalEarned    uint64
	TotalRedeemed  uint64
	LastEarnedAt   int64
	LastRedeemedAt *int64
}

// RedemptionStatus is the settlement state of a redemption.
type RedemptionStatus uint8

const (
	RedemptionPending RedemptionStatus = iota
	RedemptionProcessing
	RedemptionCompleted
	RedemptionFailed
)

func (s RedemptionStatus) String() string {
	switch s {
	case RedemptionPending:
		return "pending"
	case RedemptionProcessing:
		return "processing"
	case RedemptionCompleted:
		return "completed"
	case RedemptionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseRedemptionStatus maps the lower-case status name back to its value.
func ParseRedemptionStatus(s string) (RedemptionStatus, bool) {
	for _, status := range []RedemptionStatus{RedemptionPending, RedemptionProcessing, RedemptionCompleted, RedemptionFailed} {
		if status.String() == s {
			return status, true
		}
	}
	return 0, false
}

// canAdvance lists the only legal settlement transitions.
func (s RedemptionStatus) canAdvance(next RedemptionStatus) bool {
	switch s {
	case RedemptionPending:
		return next == RedemptionProcessing || next == RedemptionFailed
	case RedemptionProcessing:
		return next == RedemptionCompleted || next == RedemptionFailed
	default:
		return false
	}
}

// Redemption is the append-only audit record of a redeem call.
type Redemption struct {
	ID        uint64
	User      [20]byte
	Amount    uint64
	Timestamp int64
	Status    RedemptionStatus
	RequestID string
}

// Profile binds a wallet to an external social identity.
type Profile struct {
	Wallet           [20]byte
	ExternalID       string
	ExternalUsername string
	LinkedAt         int64
}
