package core

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"predictchain/core/events"
	"predictchain/core/genesis"
	"predictchain/native/market"
	"predictchain/native/platform"
	"predictchain/native/points"
	"predictchain/native/token"
	"predictchain/observability/logging"
	"predictchain/storage"
)

const testGenesis = `{
  "platform": {
    "authority": "0x00000000000000000000000000000000000000a1",
    "treasury": "0x00000000000000000000000000000000000000e7",
    "betBurnRateBps": 100,
    "claimBurnRateBps": 150,
    "platformFeeBps": 50,
    "minBetAmount": "10"
  },
  "creators": ["0x00000000000000000000000000000000000000c0"],
  "committee": {
    "members": ["0x00000000000000000000000000000000000000d1", "0x00000000000000000000000000000000000000d2"],
    "requiredApprovals": 2
  },
  "points": {
    "authority": "0x00000000000000000000000000000000000000a1",
    "redemptionContract": "0x00000000000000000000000000000000000000c7",
    "endpoint": "https://settle.example/redeem?token=s3cret",
    "minRedemptionAmount": "100",
    "cooldownSeconds": 3600
  },
  "alloc": {
    "0x00000000000000000000000000000000000000c0": "1000000000",
    "0x0000000000000000000000000000000000000001": "1000000",
    "0x0000000000000000000000000000000000000002": "1000000"
  }
}`

var (
	authority = [20]byte{19: 0xa1}
	creator   = [20]byte{19: 0xc0}
	judge1    = [20]byte{19: 0xd1}
	judge2    = [20]byte{19: 0xd2}
	alice     = [20]byte{19: 0x01}
	bob       = [20]byte{19: 0x02}
	contract  = [20]byte{19: 0xc7}
)

// flakyToken fails every burn while broken is set. It wraps the processor's
// own ledger, so its writes go through the journaled state manager.
type flakyToken struct {
	*token.Ledger
	broken bool
}

func (f *flakyToken) Burn(from [20]byte, amount uint64) error {
	if f.broken {
		return errors.New("burn unavailable")
	}
	return f.Ledger.Burn(from, amount)
}

type harness struct {
	now  int64
	db   *storage.MemDB
	proc *Processor
	rec  *events.Recorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{now: 1_700_000_000, db: storage.NewMemDB(), rec: &events.Recorder{}}
	opts = append([]Option{WithClock(func() int64 { return h.now }), WithEmitter(h.rec)}, opts...)
	proc, err := NewProcessor(h.db, opts...)
	require.NoError(t, err)
	h.proc = proc

	spec, err := genesis.ParseSpec([]byte(testGenesis))
	require.NoError(t, err)
	require.NoError(t, proc.ApplyGenesis(spec))
	return h
}

func TestGenesisAppliesOnce(t *testing.T) {
	h := newHarness(t)

	ok, err := h.proc.Initialized()
	require.NoError(t, err)
	require.True(t, ok)

	spec, err := genesis.ParseSpec([]byte(testGenesis))
	require.NoError(t, err)
	require.ErrorIs(t, h.proc.ApplyGenesis(spec), ErrGenesisApplied)

	bal, err := h.proc.Balance(alice)
	require.NoError(t, err)
	require.EqualValues(t, 1_000_000, bal)

	reg, err := h.proc.Creators()
	require.NoError(t, err)
	require.Equal(t, [][20]byte{creator}, reg.Creators)
}

func TestMarketLifecycle(t *testing.T) {
	h := newHarness(t)

	m, err := h.proc.CreateMarket(creator, market.CreateParams{
		Question:     "Will the bill pass?",
		Options:      []string{"yes", "no"},
		Category:     "politics",
		EndTimestamp: h.now + 86_400,
		CreatorStake: market.MinCreatorStake,
	})
	require.NoError(t, err)

	_, err = h.proc.PlacePrediction(alice, m.ID, 0, 10_000)
	require.NoError(t, err)
	_, err = h.proc.PlacePrediction(bob, m.ID, 1, 30_000)
	require.NoError(t, err)

	_, err = h.proc.ProposeResolution(judge1, m.ID, 0, h.now+3600)
	require.NoError(t, err)
	_, err = h.proc.ApproveResolution(judge2, m.ID)
	require.NoError(t, err)
	require.NoError(t, h.proc.ResolveMarket(judge2, m.ID, 0))

	split, err := h.proc.ClaimReward(alice, m.ID)
	require.NoError(t, err)
	// Pools hold 9850 and 29550 net; alice owns the whole winning pool.
	require.EqualValues(t, 39_400, split.Gross)
	require.EqualValues(t, 591, split.Burn)
	require.EqualValues(t, 38_809, split.Net)

	bal, err := h.proc.Balance(alice)
	require.NoError(t, err)
	require.EqualValues(t, 1_000_000-10_000+38_809, bal)

	cfg, err := h.proc.PlatformConfig()
	require.NoError(t, err)
	require.EqualValues(t, 40_000, cfg.TotalVolume)
	require.EqualValues(t, 1_000_000+100+300+591, cfg.TotalBurned)

	require.NotEmpty(t, h.rec.OfType(events.TypeMarketResolved))
	require.Len(t, h.rec.OfType(events.TypeBurn), 4)

	logged, err := h.proc.Events(0, 1000)
	require.NoError(t, err)
	require.Equal(t, len(h.rec.Events), len(logged))
	for i := range logged {
		require.Equal(t, h.rec.Events[i].Type, logged[i].Type)
	}
}

func TestRejectedOperationLeavesStorageUntouched(t *testing.T) {
	ledgerToken := &flakyToken{}
	h := &harness{now: 1_700_000_000, db: storage.NewMemDB(), rec: &events.Recorder{}}
	proc, err := NewProcessor(h.db,
		WithClock(func() int64 { return h.now }),
		WithEmitter(h.rec),
		WithTokenService(ledgerToken),
	)
	require.NoError(t, err)
	ledgerToken.Ledger = proc.token
	h.proc = proc
	spec, err := genesis.ParseSpec([]byte(testGenesis))
	require.NoError(t, err)
	require.NoError(t, proc.ApplyGenesis(spec))

	m, err := proc.CreateMarket(creator, market.CreateParams{
		Question: "Q?", Options: []string{"a", "b"}, Category: "c",
		EndTimestamp: h.now + 7200, CreatorStake: market.MinCreatorStake,
	})
	require.NoError(t, err)

	before := h.db.Keys()
	eventsBefore := len(h.rec.Events)
	ledgerToken.broken = true

	_, err = proc.PlacePrediction(alice, m.ID, 0, 1000)
	require.Error(t, err)
	require.Equal(t, before, h.db.Keys())
	require.Len(t, h.rec.Events, eventsBefore)

	stored, err := proc.Market(m.ID)
	require.NoError(t, err)
	require.Zero(t, stored.TotalPool)
	require.False(t, stored.Guard.Entered)
}

func TestPauseBlocksBetsAndBurnsButNotPoints(t *testing.T) {
	h := newHarness(t)
	m, err := h.proc.CreateMarket(creator, market.CreateParams{
		Question: "Q?", Options: []string{"a", "b"}, Category: "c",
		EndTimestamp: h.now + 7200, CreatorStake: market.MinCreatorStake,
	})
	require.NoError(t, err)

	require.NoError(t, h.proc.SetPlatformPaused(authority, true))
	_, err = h.proc.PlacePrediction(alice, m.ID, 0, 1000)
	require.ErrorIs(t, err, platform.ErrPlatformPaused)
	_, err = h.proc.ProcessBetBurn(alice, m.ID, 1000, "proof-1")
	require.ErrorIs(t, err, platform.ErrPlatformPaused)
	require.NoError(t, h.proc.MintPoints(authority, alice, 500, "daily"))

	require.NoError(t, h.proc.SetPlatformPaused(authority, false))
	_, err = h.proc.PlacePrediction(alice, m.ID, 0, 1000)
	require.NoError(t, err)
}

func TestSettlementFlow(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.proc.MintPoints(authority, alice, 500, "daily"))

	r, err := h.proc.RedeemPoints(alice, 200)
	require.NoError(t, err)

	r, err = h.proc.BeginSettlement(contract, r.ID)
	require.NoError(t, err)
	require.Equal(t, points.RedemptionProcessing, r.Status)
	_, err = uuid.Parse(r.RequestID)
	require.NoError(t, err)

	r, err = h.proc.AdvanceRedemption(contract, r.ID, points.RedemptionCompleted, "")
	require.NoError(t, err)
	require.Equal(t, points.RedemptionCompleted, r.Status)

	stored, err := h.proc.Redemption(r.ID)
	require.NoError(t, err)
	require.Equal(t, r.RequestID, stored.RequestID)

	bal, err := h.proc.PointsBalance(alice)
	require.NoError(t, err)
	require.EqualValues(t, 300, bal)
}

func TestMarketsPagination(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		_, err := h.proc.CreateMarket(creator, market.CreateParams{
			Question: "Q?", Options: []string{"a", "b"}, Category: "c",
			EndTimestamp: h.now + 7200, CreatorStake: market.MinCreatorStake,
		})
		require.NoError(t, err)
	}
	page, err := h.proc.Markets(2, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.EqualValues(t, 2, page[0].ID)
}

func TestSensitiveFieldsAreMaskedInLogs(t *testing.T) {
	var buf bytes.Buffer
	h := newHarness(t, WithLogger(logging.New(&buf, "marketd", "test", slog.LevelInfo)))

	_, err := h.proc.LinkIdentity(alice, "twitter-98765432", "alice")
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, `"endpoint":"https://settle.example"`)
	require.NotContains(t, out, "s3cret")
	require.Contains(t, out, `"external_id":"***5432"`)
	require.NotContains(t, out, "twitter-98765432")
}

func TestOperationsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	h := newHarness(t, WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))))

	_, err := h.proc.CreateMarket(creator, market.CreateParams{
		Question: "Q?", Options: []string{"a", "b"}, Category: "c",
		EndTimestamp: h.now + 7200, CreatorStake: market.MinCreatorStake,
	})
	require.NoError(t, err)
	_, err = h.proc.PlacePrediction(alice, 404, 0, 1000)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	require.Equal(t, "genesis", spans[0].Name())
	require.Equal(t, "create_market", spans[1].Name())
	require.Equal(t, codes.Unset, spans[1].Status().Code)
	require.Equal(t, "place_prediction", spans[2].Name())
	require.Equal(t, codes.Error, spans[2].Status().Code)
	require.Len(t, spans[2].Events(), 1)
}
