package state

import (
	"predictchain/native/access"
	"predictchain/native/committee"
	"predictchain/native/market"
	"predictchain/native/platform"
	"predictchain/native/points"
)

// PlatformConfig loads the platform singleton.
func (m *Manager) PlatformConfig() (*platform.Config, bool, error) {
	cfg := new(platform.Config)
	ok, err := m.KVGet(platformConfigKey, cfg)
	if err != nil || !ok {
		return nil, ok, err
	}
	return cfg, true, nil
}

func (m *Manager) PutPlatformConfig(cfg *platform.Config) error {
	return m.KVPut(platformConfigKey, cfg)
}

func (m *Manager) AccessRegistry() (*access.Registry, bool, error) {
	reg := new(access.Registry)
	ok, err := m.KVGet(accessRegistryKey, reg)
	if err != nil || !ok {
		return nil, ok, err
	}
	return reg, true, nil
}

func (m *Manager) PutAccessRegistry(reg *access.Registry) error {
	return m.KVPut(accessRegistryKey, reg)
}

// MarketSequence returns the highest market id allocated so far.
func (m *Manager) MarketSequence() (uint64, error) {
	var seq uint64
	if _, err := m.KVGet(marketSequenceKey, &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// AllocateMarketID reserves the next market id. Ids start at 1.
func (m *Manager) AllocateMarketID() (uint64, error) {
	seq, err := m.MarketSequence()
	if err != nil {
		return 0, err
	}
	seq++
	if err := m.KVPut(marketSequenceKey, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

type storedMarket struct {
	ID             uint64
	Creator        [20]byte
	Question       string
	Options        []string
	Category       string
	CreatedAt      uint64
	ResolutionDate uint64
	Status         uint8
	Pools          []uint64
	TotalPool      uint64
	CreatorStake   uint64
	HasWinner      bool
	WinningOption  uint8
	Paused         bool
	Locked         bool
	ResolvedAt     uint64
	StakeReclaimed bool
}

func newStoredMarket(mk *market.Market) *storedMarket {
	s := &storedMarket{
		ID:             mk.ID,
		Creator:        mk.Creator,
		Question:       mk.Question,
		Options:        mk.Options,
		Category:       mk.Category,
		CreatedAt:      uint64(mk.CreatedAt),
		ResolutionDate: uint64(mk.ResolutionDate),
		Status:         uint8(mk.Status),
		Pools:          mk.Pools,
		TotalPool:      mk.TotalPool,
		CreatorStake:   mk.CreatorStake,
		Paused:         mk.Paused,
		Locked:         mk.Guard.Entered,
		ResolvedAt:     uint64(mk.ResolvedAt),
		StakeReclaimed: mk.StakeReclaimed,
	}
	if mk.WinningOption != nil {
		s.HasWinner = true
		s.WinningOption = *mk.WinningOption
	}
	return s
}

func (s *storedMarket) toMarket() *market.Market {
	mk := &market.Market{
		ID:             s.ID,
		Creator:        s.Creator,
		Question:       s.Question,
		Options:        s.Options,
		Category:       s.Category,
		CreatedAt:      int64(s.CreatedAt),
		ResolutionDate: int64(s.ResolutionDate),
		Status:         market.Status(s.Status),
		Pools:          s.Pools,
		TotalPool:      s.TotalPool,
		CreatorStake:   s.CreatorStake,
		Paused:         s.Paused,
		ResolvedAt:     int64(s.ResolvedAt),
		StakeReclaimed: s.StakeReclaimed,
	}
	mk.Guard.Entered = s.Locked
	if s.HasWinner {
		w := s.WinningOption
		mk.WinningOption = &w
	}
	return mk
}

func (m *Manager) Market(id uint64) (*market.Market, bool, error) {
	stored := new(storedMarket)
	ok, err := m.KVGet(MarketKey(id), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toMarket(), true, nil
}

func (m *Manager) PutMarket(mk *market.Market) error {
	return m.KVPut(MarketKey(mk.ID), newStoredMarket(mk))
}

func (m *Manager) Prediction(marketID uint64, user [20]byte) (*market.Prediction, bool, error) {
	p := new(market.Prediction)
	ok, err := m.KVGet(PredictionKey(marketID, user), p)
	if err != nil || !ok {
		return nil, ok, err
	}
	return p, true, nil
}

func (m *Manager) PutPrediction(p *market.Prediction) error {
	return m.KVPut(PredictionKey(p.MarketID, p.User), p)
}

func (m *Manager) Committee() (*committee.Committee, bool, error) {
	c := new(committee.Committee)
	ok, err := m.KVGet(committeeKey, c)
	if err != nil || !ok {
		return nil, ok, err
	}
	return c, true, nil
}

func (m *Manager) PutCommittee(c *committee.Committee) error {
	return m.KVPut(committeeKey, c)
}

type storedProposal struct {
	MarketID          uint64
	ProposedOutcome   uint8
	Proposer          [20]byte
	Approvals         [][20]byte
	RequiredApprovals uint8
	CreatedAt         uint64
	ExpiryTime        uint64
}

func (m *Manager) Proposal(marketID uint64) (*committee.Proposal, bool, error) {
	stored := new(storedProposal)
	ok, err := m.KVGet(ProposalKey(marketID), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &committee.Proposal{
		MarketID:          stored.MarketID,
		ProposedOutcome:   stored.ProposedOutcome,
		Proposer:          stored.Proposer,
		Approvals:         stored.Approvals,
		RequiredApprovals: stored.RequiredApprovals,
		CreatedAt:         int64(stored.CreatedAt),
		ExpiryTime:        int64(stored.ExpiryTime),
	}, true, nil
}

func (m *Manager) PutProposal(p *committee.Proposal) error {
	return m.KVPut(ProposalKey(p.MarketID), &storedProposal{
		MarketID:          p.MarketID,
		ProposedOutcome:   p.ProposedOutcome,
		Proposer:          p.Proposer,
		Approvals:         p.Approvals,
		RequiredApprovals: p.RequiredApprovals,
		CreatedAt:         uint64(p.CreatedAt),
		ExpiryTime:        uint64(p.ExpiryTime),
	})
}

func (m *Manager) DeleteProposal(marketID uint64) error {
	return m.KVDelete(ProposalKey(marketID))
}

type storedPointsSystem struct {
	Authority           [20]byte
	Mint                [20]byte
	RedemptionContract  [20]byte
	Endpoint            string
	MinRedemptionAmount uint64
	CooldownPeriod      uint64
	TotalMinted         uint64
	TotalRedeemed       uint64
	NextRedemptionID    uint64
}

func (m *Manager) PointsSystem() (*points.System, bool, error) {
	stored := new(storedPointsSystem)
	ok, err := m.KVGet(pointsSystemKey, stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &points.System{
		Authority:           stored.Authority,
		Mint:                stored.Mint,
		RedemptionContract:  stored.RedemptionContract,
		Endpoint:            stored.Endpoint,
		MinRedemptionAmount: stored.MinRedemptionAmount,
		CooldownPeriod:      int64(stored.CooldownPeriod),
		TotalMinted:         stored.TotalMinted,
		TotalRedeemed:       stored.TotalRedeemed,
		NextRedemptionID:    stored.NextRedemptionID,
	}, true, nil
}

func (m *Manager) PutPointsSystem(sys *points.System) error {
	return m.KVPut(pointsSystemKey, &storedPointsSystem{
		Authority:           sys.Authority,
		Mint:                sys.Mint,
		RedemptionContract:  sys.RedemptionContract,
		Endpoint:            sys.Endpoint,
		MinRedemptionAmount: sys.MinRedemptionAmount,
		CooldownPeriod:      uint64(sys.CooldownPeriod),
		TotalMinted:         sys.TotalMinted,
		TotalRedeemed:       sys.TotalRedeemed,
		NextRedemptionID:    sys.NextRedemptionID,
	})
}

type storedUserStats struct {
	User           [20]byte
	TotalEarned    uint64
	TotalRedeemed  uint64
	LastEarnedAt   uint64
	HasRedeemed    bool
	LastRedeemedAt uint64
}

func (m *Manager) PointsStats(user [20]byte) (*points.UserStats, bool, error) {
	stored := new(storedUserStats)
	ok, err := m.KVGet(PointsStatsKey(user), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	stats := &points.UserStats{
		User:          stored.User,
		TotalEarned:   stored.TotalEarned,
		TotalRedeemed: stored.TotalRedeemed,
		LastEarnedAt:  int64(stored.LastEarnedAt),
	}
	if stored.HasRedeemed {
		last := int64(stored.LastRedeemedAt)
		stats.LastRedeemedAt = &last
	}
	return stats, true, nil
}

func (m *Manager) PutPointsStats(stats *points.UserStats) error {
	stored := &storedUserStats{
		User:          stats.User,
		TotalEarned:   stats.TotalEarned,
		TotalRedeemed: stats.TotalRedeemed,
		LastEarnedAt:  uint64(stats.LastEarnedAt),
	}
	if stats.LastRedeemedAt != nil {
		stored.HasRedeemed = true
		stored.LastRedeemedAt = uint64(*stats.LastRedeemedAt)
	}
	return m.KVPut(PointsStatsKey(stats.User), stored)
}

type storedRedemption struct {
	ID        uint64
	User      [20]byte
	Amount    uint64
	Timestamp uint64
	Status    uint8
	RequestID string
}

func (m *Manager) Redemption(id uint64) (*points.Redemption, bool, error) {
	stored := new(storedRedemption)
	ok, err := m.KVGet(RedemptionKey(id), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &points.Redemption{
		ID:        stored.ID,
		User:      stored.User,
		Amount:    stored.Amount,
		Timestamp: int64(stored.Timestamp),
		Status:    points.RedemptionStatus(stored.Status),
		RequestID: stored.RequestID,
	}, true, nil
}

func (m *Manager) PutRedemption(r *points.Redemption) error {
	return m.KVPut(RedemptionKey(r.ID), &storedRedemption{
		ID:        r.ID,
		User:      r.User,
		Amount:    r.Amount,
		Timestamp: uint64(r.Timestamp),
		Status:    uint8(r.Status),
		RequestID: r.RequestID,
	})
}

type storedProfile struct {
	Wallet           [20]byte
	ExternalID       string
	ExternalUsername string
	LinkedAt         uint64
}

func (m *Manager) Profile(user [20]byte) (*points.Profile, bool, error) {
	stored := new(storedProfile)
	ok, err := m.KVGet(ProfileKey(user), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &points.Profile{
		Wallet:           stored.Wallet,
		ExternalID:       stored.ExternalID,
		ExternalUsername: stored.ExternalUsername,
		LinkedAt:         int64(stored.LinkedAt),
	}, true, nil
}

func (m *Manager) PutProfile(p *points.Profile) error {
	return m.KVPut(ProfileKey(p.Wallet), &storedProfile{
		Wallet:           p.Wallet,
		ExternalID:       p.ExternalID,
		ExternalUsername: p.ExternalUsername,
		LinkedAt:         uint64(p.LinkedAt),
	})
}

// TokenBalance returns zero for holders that have never been credited.
func (m *Manager) TokenBalance(symbol string, addr [20]byte) (uint64, error) {
	var bal uint64
	if _, err := m.KVGet(TokenBalanceKey(symbol, addr), &bal); err != nil {
		return 0, err
	}
	return bal, nil
}

func (m *Manager) SetTokenBalance(symbol string, addr [20]byte, amount uint64) error {
	return m.KVPut(TokenBalanceKey(symbol, addr), amount)
}

func (m *Manager) TokenSupply(symbol string) (uint64, error) {
	var supply uint64
	if _, err := m.KVGet(TokenSupplyKey(symbol), &supply); err != nil {
		return 0, err
	}
	return supply, nil
}

func (m *Manager) SetTokenSupply(symbol string, amount uint64) error {
	return m.KVPut(TokenSupplyKey(symbol), amount)
}

func (m *Manager) BurnProofSeen(id string) (bool, error) {
	return m.KVGet(BurnProofKey(id), nil)
}

func (m *Manager) MarkBurnProof(id string) error {
	return m.KVPut(BurnProofKey(id), true)
}
