package rpc

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"predictchain/core/types"
	"predictchain/native/access"
	"predictchain/native/committee"
	"predictchain/native/market"
	"predictchain/native/platform"
	"predictchain/native/points"
	"predictchain/services/eventarchive"
)

// Amounts are rendered as decimal strings so values above 2^53 survive JSON
// clients that decode numbers as float64.

type PlatformResult struct {
	Authority        string `json:"authority"`
	TokenMint        string `json:"tokenMint"`
	Treasury         string `json:"treasury"`
	BetBurnRateBps   uint16 `json:"betBurnRateBps"`
	ClaimBurnRateBps uint16 `json:"claimBurnRateBps"`
	PlatformFeeBps   uint16 `json:"platformFeeBps"`
	MinBetAmount     string `json:"minBetAmount"`
	TotalBurned      string `json:"totalBurned"`
	TotalVolume      string `json:"totalVolume"`
	Paused           bool   `json:"paused"`
}

type CreatorsResult struct {
	Admin    string   `json:"admin"`
	Creators []string `json:"creators"`
}

type MarketResult struct {
	ID             uint64   `json:"id"`
	Creator        string   `json:"creator"`
	Vault          string   `json:"vault"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	Category       string   `json:"category"`
	CreatedAt      int64    `json:"createdAt"`
	ResolutionDate int64    `json:"resolutionDate"`
	Status         string   `json:"status"`
	Pools          []string `json:"pools"`
	TotalPool      string   `json:"totalPool"`
	CreatorStake   string   `json:"creatorStake"`
	WinningOption  *uint8   `json:"winningOption,omitempty"`
	Paused         bool     `json:"paused"`
	ResolvedAt     int64    `json:"resolvedAt,omitempty"`
	StakeReclaimed bool     `json:"stakeReclaimed"`
}

type PredictionResult struct {
	User          string `json:"user"`
	MarketID      uint64 `json:"marketId"`
	OptionIndex   uint8  `json:"optionIndex"`
	NetAmount     string `json:"netAmount"`
	Claimed       bool   `json:"claimed"`
	ClaimedAmount string `json:"claimedAmount"`
}

type ProposalResult struct {
	MarketID          uint64   `json:"marketId"`
	ProposedOutcome   uint8    `json:"proposedOutcome"`
	Proposer          string   `json:"proposer"`
	Approvals         []string `json:"approvals"`
	RequiredApprovals uint8    `json:"requiredApprovals"`
	CreatedAt         int64    `json:"createdAt"`
	ExpiryTime        int64    `json:"expiryTime"`
	Expired           bool     `json:"expired"`
}

type PointsStatsResult struct {
	User           string `json:"user"`
	TotalEarned    string `json:"totalEarned"`
	TotalRedeemed  string `json:"totalRedeemed"`
	LastEarnedAt   int64  `json:"lastEarnedAt"`
	LastRedeemedAt *int64 `json:"lastRedeemedAt,omitempty"`
}

type RedemptionResult struct {
	ID        uint64 `json:"id"`
	User      string `json:"user"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
	RequestID string `json:"requestId,omitempty"`
}

type ProfileResult struct {
	Wallet           string `json:"wallet"`
	ExternalID       string `json:"externalId"`
	ExternalUsername string `json:"externalUsername"`
	LinkedAt         int64  `json:"linkedAt"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Points  string `json:"points"`
}

type EventResult struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type ArchivedEventResult struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	MarketID   *uint64           `json:"marketId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	ArchivedAt int64             `json:"archivedAt"`
}

func formatAddress(addr [20]byte) string {
	return ethcommon.Address(addr).Hex()
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatAddresses(addrs [][20]byte) []string {
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = formatAddress(addr)
	}
	return out
}

func platformResult(cfg *platform.Config) PlatformResult {
	return PlatformResult{
		Authority:        formatAddress(cfg.Authority),
		TokenMint:        formatAddress(cfg.TokenMint),
		Treasury:         formatAddress(cfg.Treasury),
		BetBurnRateBps:   cfg.BetBurnRateBps,
		ClaimBurnRateBps: cfg.ClaimBurnRateBps,
		PlatformFeeBps:   cfg.PlatformFeeBps,
		MinBetAmount:     formatAmount(cfg.MinBetAmount),
		TotalBurned:      formatAmount(cfg.TotalBurned),
		TotalVolume:      formatAmount(cfg.TotalVolume),
		Paused:           cfg.Paused,
	}
}

func creatorsResult(reg *access.Registry) CreatorsResult {
	return CreatorsResult{Admin: formatAddress(reg.Admin), Creators: formatAddresses(reg.Creators)}
}

// marketResult reports the status as observed at now, so markets past their
// end time read as expired before anyone touches them.
func marketResult(m *market.Market, now int64) MarketResult {
	pools := make([]string, len(m.Pools))
	for i, p := range m.Pools {
		pools[i] = formatAmount(p)
	}
	return MarketResult{
		ID:             m.ID,
		Creator:        formatAddress(m.Creator),
		Vault:          formatAddress(market.VaultAddress(m.ID)),
		Question:       m.Question,
		Options:        append([]string(nil), m.Options...),
		Category:       m.Category,
		CreatedAt:      m.CreatedAt,
		ResolutionDate: m.ResolutionDate,
		Status:         m.StatusAt(now).String(),
		Pools:          pools,
		TotalPool:      formatAmount(m.TotalPool),
		CreatorStake:   formatAmount(m.CreatorStake),
		WinningOption:  m.WinningOption,
		Paused:         m.Paused,
		ResolvedAt:     m.ResolvedAt,
		StakeReclaimed: m.StakeReclaimed,
	}
}

func predictionResult(p *market.Prediction) PredictionResult {
	return PredictionResult{
		User:          formatAddress(p.User),
		MarketID:      p.MarketID,
		OptionIndex:   p.OptionIndex,
		NetAmount:     formatAmount(p.NetAmount),
		Claimed:       p.Claimed,
		ClaimedAmount: formatAmount(p.ClaimedAmount),
	}
}

func proposalResult(p *committee.Proposal, now int64) ProposalResult {
	return ProposalResult{
		MarketID:          p.MarketID,
		ProposedOutcome:   p.ProposedOutcome,
		Proposer:          formatAddress(p.Proposer),
		Approvals:         formatAddresses(p.Approvals),
		RequiredApprovals: p.RequiredApprovals,
		CreatedAt:         p.CreatedAt,
		ExpiryTime:        p.ExpiryTime,
		Expired:           p.Expired(now),
	}
}

func pointsStatsResult(user [20]byte, s *points.UserStats) PointsStatsResult {
	return PointsStatsResult{
		User:           formatAddress(user),
		TotalEarned:    formatAmount(s.TotalEarned),
		TotalRedeemed:  formatAmount(s.TotalRedeemed),
		LastEarnedAt:   s.LastEarnedAt,
		LastRedeemedAt: s.LastRedeemedAt,
	}
}

func redemptionResult(r *points.Redemption) RedemptionResult {
	return RedemptionResult{
		ID:        r.ID,
		User:      formatAddress(r.User),
		Amount:    formatAmount(r.Amount),
		Timestamp: r.Timestamp,
		Status:    r.Status.String(),
		RequestID: r.RequestID,
	}
}

func profileResult(p *points.Profile) ProfileResult {
	return ProfileResult{
		Wallet:           formatAddress(p.Wallet),
		ExternalID:       p.ExternalID,
		ExternalUsername: p.ExternalUsername,
		LinkedAt:         p.LinkedAt,
	}
}

func eventResults(from uint64, evts []*types.Event) []EventResult {
	out := make([]EventResult, len(evts))
	for i, evt := range evts {
		out[i] = EventResult{Sequence: from + uint64(i), Type: evt.Type, Attributes: evt.Attributes}
	}
	return out
}

func archivedEventResults(recs []eventarchive.Record) ([]ArchivedEventResult, error) {
	out := make([]ArchivedEventResult, 0, len(recs))
	for _, rec := range recs {
		evt, err := rec.Event()
		if err != nil {
			return nil, err
		}
		out = append(out, ArchivedEventResult{
			ID:         rec.ID,
			Type:       rec.Type,
			MarketID:   rec.MarketID,
			Attributes: evt.Attributes,
			ArchivedAt: rec.ArchivedAt.Unix(),
		})
	}
	return out, nil
}
