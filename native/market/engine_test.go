package market_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"predictchain/core/events"
	"predictchain/core/state"
	"predictchain/native/access"
	"predictchain/native/burn"
	"predictchain/native/committee"
	"predictchain/native/market"
	"predictchain/native/platform"
	"predictchain/native/safemath"
	"predictchain/native/token"
	"predictchain/storage"
)

const start int64 = 1_700_000_000

var (
	authority = [20]byte{0xA1}
	treasury  = [20]byte{0x7E}
	creator   = [20]byte{0xC0}
	judge1    = [20]byte{0xD1}
	judge2    = [20]byte{0xD2}
	alice     = [20]byte{0x01}
	bob       = [20]byte{0x02}
	carol     = [20]byte{0x03}
)

// hookedToken wraps the ledger so tests can inject failures or nested calls
// into the external token step.
type hookedToken struct {
	*token.Ledger
	onTransfer func() error
	failBurn   error
}

func (h *hookedToken) Transfer(from, to [20]byte, amount uint64) error {
	if hook := h.onTransfer; hook != nil {
		h.onTransfer = nil
		if err := hook(); err != nil {
			return err
		}
	}
	return h.Ledger.Transfer(from, to, amount)
}

func (h *hookedToken) Burn(from [20]byte, amount uint64) error {
	if h.failBurn != nil {
		return h.failBurn
	}
	return h.Ledger.Burn(from, amount)
}

type fixture struct {
	now       int64
	mgr       *state.Manager
	platform  *platform.Engine
	market    *market.Engine
	committee *committee.Engine
	token     *hookedToken
}

func newFixture(t *testing.T, betBurn, claimBurn, fee uint16) *fixture {
	t.Helper()
	f := &fixture{now: start, mgr: state.NewManager(storage.NewMemDB())}
	clock := func() int64 { return f.now }

	f.platform = platform.NewEngine()
	f.platform.SetState(f.mgr)
	f.platform.SetNowFunc(clock)
	require.NoError(t, f.platform.Initialize(platform.InitParams{
		Authority:        authority,
		Treasury:         treasury,
		BetBurnRateBps:   betBurn,
		ClaimBurnRateBps: claimBurn,
		PlatformFeeBps:   fee,
		MinBetAmount:     10,
	}))

	creators := access.NewEngine()
	creators.SetState(f.mgr)
	require.NoError(t, creators.Initialize(authority))
	require.NoError(t, creators.AddCreator(authority, creator))

	ledger, err := token.NewLedger("PRED", f.mgr)
	require.NoError(t, err)
	f.token = &hookedToken{Ledger: ledger}
	for _, holder := range [][20]byte{creator, alice, bob, carol} {
		require.NoError(t, ledger.Mint(holder, 1_000_000_000))
	}

	burner := burn.NewEngine()
	burner.SetState(f.mgr)
	burner.SetToken(f.token)
	burner.SetNowFunc(clock)

	f.market = market.NewEngine()
	f.market.SetState(f.mgr)
	f.market.SetNowFunc(clock)
	f.market.SetCreatorRegistry(creators)
	f.market.SetCharger(burner)
	f.market.SetToken(f.token)

	f.committee = committee.NewEngine()
	f.committee.SetState(f.mgr)
	f.committee.SetNowFunc(clock)
	f.committee.SetMarketView(f.market)
	require.NoError(t, f.committee.Configure(authority, [][20]byte{judge1, judge2}, 2))
	f.market.SetResolutionGate(f.committee)

	require.NoError(t, f.mgr.Commit())
	return f
}

func (f *fixture) create(t *testing.T) *market.Market {
	t.Helper()
	m, err := f.market.Create(creator, market.CreateParams{
		Question:     "Will the launch happen this year?",
		Options:      []string{"yes", "no"},
		Category:     "space",
		EndTimestamp: f.now + 86_400,
		CreatorStake: market.MinCreatorStake,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) resolve(t *testing.T, id uint64, outcome uint8) {
	t.Helper()
	_, err := f.committee.Propose(judge1, id, outcome, f.now+3600)
	require.NoError(t, err)
	_, err = f.committee.Approve(judge2, id)
	require.NoError(t, err)
	require.NoError(t, f.market.Resolve(judge1, id, outcome))
}

func (f *fixture) balance(t *testing.T, addr [20]byte) uint64 {
	t.Helper()
	bal, err := f.token.BalanceOf(addr)
	require.NoError(t, err)
	return bal
}

func TestCreateEscrowsStakeAndBurnsCreationShare(t *testing.T) {
	f := newFixture(t, 100, 0, 0)
	m := f.create(t)

	require.EqualValues(t, 1, m.ID)
	require.Equal(t, market.StatusActive, m.Status)
	require.Equal(t, []uint64{0, 0}, m.Pools)
	require.EqualValues(t, 99_000_000, m.CreatorStake)
	require.EqualValues(t, 99_000_000, f.balance(t, market.VaultAddress(m.ID)))

	evts := f.mgr.PendingEvents()
	require.Len(t, evts, 2)
	require.Equal(t, events.TypeBurn, evts[0].Type)
	require.Equal(t, "MarketCreation", evts[0].Attributes["burn_type"])
	require.Equal(t, events.TypeMarketCreated, evts[1].Type)
	require.Equal(t, `["yes","no"]`, evts[1].Attributes["options"])
	require.Equal(t, "100000000", evts[1].Attributes["creator_stake"])
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	valid := market.CreateParams{
		Question:     "Q?",
		Options:      []string{"a", "b"},
		Category:     "c",
		EndTimestamp: start + 7200,
		CreatorStake: market.MinCreatorStake,
	}
	cases := []struct {
		name   string
		caller [20]byte
		mutate func(p *market.CreateParams)
		want   error
	}{
		{"not a creator", alice, func(*market.CreateParams) {}, market.ErrUnauthorizedCreator},
		{"empty question", creator, func(p *market.CreateParams) { p.Question = "  " }, market.ErrInvalidQuestion},
		{"one option", creator, func(p *market.CreateParams) { p.Options = []string{"a"} }, market.ErrInvalidOptionCount},
		{"eleven options", creator, func(p *market.CreateParams) { p.Options = make([]string, 11) }, market.ErrInvalidOptionCount},
		{"blank option", creator, func(p *market.CreateParams) { p.Options = []string{"a", ""} }, market.ErrInvalidOption},
		{"past end", creator, func(p *market.CreateParams) { p.EndTimestamp = start }, market.ErrInvalidEndTimestamp},
		{"beyond a year", creator, func(p *market.CreateParams) { p.EndTimestamp = start + market.MaxEndHorizon + 1 }, market.ErrInvalidEndTimestamp},
		{"too short", creator, func(p *market.CreateParams) { p.EndTimestamp = start + 3599 }, market.ErrMarketDurationTooShort},
		{"small stake", creator, func(p *market.CreateParams) { p.CreatorStake = market.MinCreatorStake - 1 }, market.ErrInsufficientCreatorStake},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := valid
			params.Options = append([]string(nil), valid.Options...)
			tc.mutate(&params)
			_, err := f.market.Create(tc.caller, params)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Empty(t, f.mgr.PendingEvents())
}

func TestPoolsSumToTotalAfterBets(t *testing.T) {
	f := newFixture(t, 100, 0, 50)
	m := f.create(t)

	_, err := f.market.PlacePrediction(alice, m.ID, 0, 1000)
	require.NoError(t, err)
	_, err = f.market.PlacePrediction(bob, m.ID, 1, 2000)
	require.NoError(t, err)
	pred, err := f.market.PlacePrediction(alice, m.ID, 0, 500)
	require.NoError(t, err)
	require.EqualValues(t, 985+493, pred.NetAmount)

	_, err = f.market.PlacePrediction(bob, m.ID, 0, 100)
	require.ErrorIs(t, err, market.ErrOptionMismatch)

	got, err := f.market.Market(m.ID)
	require.NoError(t, err)
	require.NoError(t, got.CheckPools())
	require.Equal(t, []uint64{1478, 1970}, got.Pools)
	require.False(t, got.Guard.Entered)

	cfg, err := f.platform.Config()
	require.NoError(t, err)
	require.EqualValues(t, 3500, cfg.TotalVolume)
}

func TestPlacePredictionChecks(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	m := f.create(t)

	_, err := f.market.PlacePrediction(alice, m.ID, 2, 100)
	require.ErrorIs(t, err, market.ErrInvalidOptionIndex)
	_, err = f.market.PlacePrediction(alice, m.ID, 0, 5)
	require.ErrorIs(t, err, market.ErrBetTooSmall)
	_, err = f.market.PlacePrediction(alice, m.ID, 0, market.MaxBetAmount+1)
	require.ErrorIs(t, err, market.ErrBetTooLarge)
	_, err = f.market.PlacePrediction(alice, 42, 0, 100)
	require.ErrorIs(t, err, market.ErrMarketNotFound)

	// Bets stay open through the buffer after the resolution date.
	f.now = m.ResolutionDate + market.ExpiryBuffer
	_, err = f.market.PlacePrediction(alice, m.ID, 0, 100)
	require.NoError(t, err)
	f.now++
	_, err = f.market.PlacePrediction(alice, m.ID, 0, 100)
	require.ErrorIs(t, err, market.ErrMarketExpired)

	got, err := f.market.Market(m.ID)
	require.NoError(t, err)
	require.Equal(t, market.StatusExpired, got.StatusAt(f.now))
}

func TestPoolOverflowChecksGrossAmount(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	m := f.create(t)

	stored, err := f.market.Market(m.ID)
	require.NoError(t, err)
	stored.Pools[1] = market.MaxTotalPoolSize - 50
	stored.TotalPool = market.MaxTotalPoolSize - 50
	require.NoError(t, f.mgr.PutMarket(stored))

	_, err = f.market.PlacePrediction(alice, m.ID, 0, 51)
	require.ErrorIs(t, err, market.ErrPoolOverflow)
	_, err = f.market.PlacePrediction(alice, m.ID, 0, 50)
	require.NoError(t, err)
}

func TestPlatformPauseBlocksBetsAndKeepsTotals(t *testing.T) {
	f := newFixture(t, 100, 100, 0)
	m := f.create(t)
	_, err := f.market.PlacePrediction(alice, m.ID, 0, 1000)
	require.NoError(t, err)
	before, err := f.platform.Config()
	require.NoError(t, err)

	require.NoError(t, f.platform.SetPause(authority, true))
	_, err = f.market.PlacePrediction(alice, m.ID, 0, 1000)
	require.ErrorIs(t, err, platform.ErrPlatformPaused)
	_, err = f.market.Create(creator, market.CreateParams{
		Question: "Q?", Options: []string{"a", "b"}, Category: "c",
		EndTimestamp: start + 7200, CreatorStake: market.MinCreatorStake,
	})
	require.ErrorIs(t, err, platform.ErrPlatformPaused)

	require.NoError(t, f.platform.SetPause(authority, false))
	after, err := f.platform.Config()
	require.NoError(t, err)
	require.Equal(t, before.TotalBurned, after.TotalBurned)
	require.Equal(t, before.TotalVolume, after.TotalVolume)

	_, err = f.market.PlacePrediction(alice, m.ID, 0, 1000)
	require.NoError(t, err)
}

func TestMarketPauseRequiresAuthority(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	m := f.create(t)

	require.ErrorIs(t, f.market.SetPaused(creator, m.ID, true), market.ErrUnauthorized)
	require.NoError(t, f.market.SetPaused(authority, m.ID, true))
	got, err := f.market.Market(m.ID)
	require.NoError(t, err)
	require.Equal(t, market.StatusPaused, got.Status)

	_, err = f.market.PlacePrediction(alice, m.ID, 0, 100)
	require.ErrorIs(t, err, market.ErrMarketPaused)

	require.NoError(t, f.market.SetPaused(authority, m.ID, false))
	_, err = f.market.PlacePrediction(alice, m.ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, f.mgr.PendingEvents(), 2+2+2)
}

func TestClaimRewardRoundsDown(t *testing.T) {
	f := newFixture(t, 0, 150, 0)
	m := f.create(t)

	_, err := f.market.PlacePrediction(alice, m.ID, 0, 100)
	require.NoError(t, err)
	_, err = f.market.PlacePrediction(carol, m.ID, 0, 200)
	require.NoError(t, err)
	_, err = f.market.PlacePrediction(bob, m.ID, 1, 700)
	require.NoError(t, err)

	_, err = f.market.ClaimReward(alice, m.ID)
	require.ErrorIs(t, err, market.ErrMarketNotResolved)

	f.resolve(t, m.ID, 0)

	before := f.balance(t, alice)
	split, err := f.market.ClaimReward(alice, m.ID)
	require.NoError(t, err)
	require.EqualValues(t, 333, split.Gross)
	require.EqualValues(t, 4, split.Burn)
	require.EqualValues(t, 329, split.Net)
	require.Equal(t, before+329, f.balance(t, alice))

	_, err = f.market.ClaimReward(alice, m.ID)
	require.ErrorIs(t, err, market.ErrRewardAlreadyClaimed)
	_, err = f.market.ClaimReward(bob, m.ID)
	require.ErrorIs(t, err, market.ErrNotAWinner)
	_, err = f.market.ClaimReward(creator, m.ID)
	require.ErrorIs(t, err, market.ErrPredictionNotFound)

	pred, err := f.market.Prediction(m.ID, alice)
	require.NoError(t, err)
	require.True(t, pred.Claimed)
	require.EqualValues(t, 329, pred.ClaimedAmount)
}

func TestClaimAgainstEmptyWinningPool(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	m := f.create(t)
	_, err := f.market.PlacePrediction(alice, m.ID, 0, 100)
	require.NoError(t, err)
	f.resolve(t, m.ID, 0)

	stored, err := f.market.Market(m.ID)
	require.NoError(t, err)
	stored.Pools[0] = 0
	require.NoError(t, f.mgr.PutMarket(stored))

	_, err = f.market.ClaimReward(alice, m.ID)
	require.ErrorIs(t, err, safemath.ErrDivisionByZero)
	require.ErrorIs(t, err, safemath.ErrArithmetic)
}

func TestMarketPauseAfterResolveBlocksClaims(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	m := f.create(t)
	_, err := f.market.PlacePrediction(alice, m.ID, 0, 100)
	require.NoError(t, err)
	_, err = f.market.PlacePrediction(bob, m.ID, 0, 100)
	require.NoError(t, err)
	f.resolve(t, m.ID, 0)

	require.NoError(t, f.market.SetPaused(authority, m.ID, true))
	got, err := f.market.Market(m.ID)
	require.NoError(t, err)
	require.Equal(t, market.StatusResolved, got.Status)
	require.True(t, got.Paused)
	_, err = f.market.ClaimReward(alice, m.ID)
	require.ErrorIs(t, err, market.ErrMarketPaused)

	require.NoError(t, f.market.SetPaused(authority, m.ID, false))
	got, err = f.market.Market(m.ID)
	require.NoError(t, err)
	require.Equal(t, market.StatusResolved, got.Status)
	_, err = f.market.ClaimReward(alice, m.ID)
	require.NoError(t, err)

	require.NoError(t, f.platform.SetPause(authority, true))
	_, err = f.market.ClaimReward(bob, m.ID)
	require.ErrorIs(t, err, platform.ErrPlatformPaused)
	pred, err := f.market.Prediction(m.ID, bob)
	require.NoError(t, err)
	require.False(t, pred.Claimed)

	require.NoError(t, f.platform.SetPause(authority, false))
	_, err = f.market.ClaimReward(bob, m.ID)
	require.NoError(t, err)
}

func TestResolveRequiresApprovedMatchingProposal(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	m := f.create(t)

	require.ErrorIs(t, f.market.Resolve(judge1, m.ID, 0), committee.ErrProposalNotFound)

	_, err := f.committee.Propose(judge1, m.ID, 1, f.now+600)
	require.NoError(t, err)
	require.ErrorIs(t, f.market.Resolve(judge1, m.ID, 1), committee.ErrInsufficientApprovals)

	_, err = f.committee.Approve(judge2, m.ID)
	require.NoError(t, err)
	require.ErrorIs(t, f.market.Resolve(judge1, m.ID, 0), committee.ErrOutcomeMismatch)
	require.ErrorIs(t, f.market.Resolve(alice, m.ID, 1), committee.ErrUnauthorized)
	require.ErrorIs(t, f.market.Resolve(judge1, m.ID, 5), market.ErrInvalidOptionIndex)

	require.NoError(t, f.market.Resolve(judge2, m.ID, 1))
	require.ErrorIs(t, f.market.Resolve(judge1, m.ID, 1), market.ErrMarketAlreadyResolved)

	got, err := f.market.Market(m.ID)
	require.NoError(t, err)
	require.Equal(t, market.StatusResolved, got.Status)
	require.NotNil(t, got.WinningOption)
	require.EqualValues(t, 1, *got.WinningOption)

	_, err = f.committee.Proposal(m.ID)
	require.ErrorIs(t, err, committee.ErrProposalNotFound)
}

func TestResolveRejectsExpiredProposal(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	m := f.create(t)

	_, err := f.committee.Propose(judge1, m.ID, 0, f.now+60)
	require.NoError(t, err)
	_, err = f.committee.Approve(judge2, m.ID)
	require.NoError(t, err)
	f.now += 61
	require.ErrorIs(t, f.market.Resolve(judge1, m.ID, 0), committee.ErrProposalExpired)
}

func TestFailedTokenStepRollsBackPoolCredit(t *testing.T) {
	f := newFixture(t, 100, 0, 0)
	m := f.create(t)
	require.NoError(t, f.mgr.Commit())

	f.token.failBurn = errors.New("mint authority offline")
	_, err := f.market.PlacePrediction(alice, m.ID, 0, 1000)
	require.Error(t, err)

	got, err := f.market.Market(m.ID)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 0}, got.Pools)
	require.Zero(t, got.TotalPool)
	require.False(t, got.Guard.Entered)
	_, err = f.market.Prediction(m.ID, alice)
	require.ErrorIs(t, err, market.ErrPredictionNotFound)
	require.EqualValues(t, 1_000_000_000, f.balance(t, alice))
	require.Empty(t, f.mgr.PendingEvents())

	f.token.failBurn = nil
	_, err = f.market.PlacePrediction(alice, m.ID, 0, 1000)
	require.NoError(t, err)
}

func TestNestedBetIsRejectedAsReentrant(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	m := f.create(t)

	var nested error
	f.token.onTransfer = func() error {
		_, nested = f.market.PlacePrediction(bob, m.ID, 0, 100)
		return nested
	}
	_, err := f.market.PlacePrediction(alice, m.ID, 0, 100)
	require.ErrorIs(t, nested, market.ErrReentrancyDetected)
	require.ErrorIs(t, err, market.ErrReentrancyDetected)

	got, err := f.market.Market(m.ID)
	require.NoError(t, err)
	require.False(t, got.Guard.Entered)
	require.Zero(t, got.TotalPool)

	_, err = f.market.PlacePrediction(alice, m.ID, 0, 100)
	require.NoError(t, err)
}

func TestReclaimCreatorStake(t *testing.T) {
	f := newFixture(t, 0, 0, 0)
	m := f.create(t)

	_, err := f.market.ReclaimCreatorStake(creator, m.ID)
	require.ErrorIs(t, err, market.ErrMarketNotResolved)

	f.resolve(t, m.ID, 0)
	_, err = f.market.ReclaimCreatorStake(alice, m.ID)
	require.ErrorIs(t, err, market.ErrUnauthorized)

	before := f.balance(t, creator)
	amount, err := f.market.ReclaimCreatorStake(creator, m.ID)
	require.NoError(t, err)
	require.Equal(t, market.MinCreatorStake, amount)
	require.Equal(t, before+amount, f.balance(t, creator))

	_, err = f.market.ReclaimCreatorStake(creator, m.ID)
	require.ErrorIs(t, err, market.ErrStakeAlreadyReclaimed)
}
