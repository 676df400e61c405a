package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"predictchain/core/events"
	"predictchain/core/genesis"
	"predictchain/core/state"
	"predictchain/core/types"
	"predictchain/native/access"
	"predictchain/native/burn"
	"predictchain/native/committee"
	"predictchain/native/market"
	"predictchain/native/platform"
	"predictchain/native/points"
	"predictchain/native/token"
	"predictchain/observability/logging"
	"predictchain/observability/metrics"
	"predictchain/storage"
)

const (
	DefaultTokenSymbol  = "PRED"
	DefaultPointsSymbol = "PTS"
)

// ErrGenesisApplied is returned when genesis is applied to a ledger that
// already holds a platform configuration.
var ErrGenesisApplied = errors.New("core: genesis already applied")

// Processor is the single entry point for ledger mutations. It serialises
// operations, lets each engine run against the journaled state, and commits
// the journal to storage in one batch only when the operation succeeds.
type Processor struct {
	mu sync.Mutex

	state     *state.Manager
	platform  *platform.Engine
	access    *access.Engine
	burn      *burn.Engine
	market    *market.Engine
	committee *committee.Engine
	points    *points.Engine
	token     *token.Ledger
	pointsTok *token.Ledger

	logger  *slog.Logger
	metrics *metrics.MarketMetrics
	tracer  trace.Tracer
}

type processorConfig struct {
	tokenSymbol  string
	pointsSymbol string
	now          func() int64
	logger       *slog.Logger
	emitters     []events.Emitter
	metrics      *metrics.MarketMetrics
	token        token.Service
	tracing      trace.TracerProvider
}

// Option customises a Processor.
type Option func(*processorConfig)

// WithClock overrides the wall clock for every engine.
func WithClock(now func() int64) Option {
	return func(c *processorConfig) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *processorConfig) { c.logger = logger }
}

// WithEmitter subscribes emitter to committed events. It may be given more
// than once.
func WithEmitter(emitter events.Emitter) Option {
	return func(c *processorConfig) { c.emitters = append(c.emitters, emitter) }
}

// WithMetrics records operation outcomes and committed events.
func WithMetrics(m *metrics.MarketMetrics) Option {
	return func(c *processorConfig) { c.metrics = m }
}

// WithTracerProvider overrides the global OpenTelemetry provider used for
// per-operation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *processorConfig) { c.tracing = tp }
}

// WithTokenSymbols overrides the platform and points token symbols.
func WithTokenSymbols(platformSymbol, pointsSymbol string) Option {
	return func(c *processorConfig) {
		c.tokenSymbol = platformSymbol
		c.pointsSymbol = pointsSymbol
	}
}

// WithTokenService replaces the platform token service seen by the burn and
// market engines. Balance queries still read the state-backed ledger.
//
// A rejected operation is only rolled back if svc writes through the
// processor's journaled state manager, as token.Ledger does. Writes a service
// makes anywhere else survive Discard and must be reverted by the service.
func WithTokenService(svc token.Service) Option {
	return func(c *processorConfig) { c.token = svc }
}

// NewProcessor wires every engine over db.
func NewProcessor(db storage.Database, opts ...Option) (*Processor, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	cfg := processorConfig{
		tokenSymbol:  DefaultTokenSymbol,
		pointsSymbol: DefaultPointsSymbol,
		now:          func() int64 { return time.Now().Unix() },
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracing == nil {
		cfg.tracing = otel.GetTracerProvider()
	}

	mgr := state.NewManager(db)
	emitters := events.Fanout(cfg.emitters)
	if cfg.metrics != nil {
		emitters = append(emitters, cfg.metrics)
	}
	mgr.SetEmitter(emitters)

	tok, err := token.NewLedger(cfg.tokenSymbol, mgr)
	if err != nil {
		return nil, err
	}
	pointsTok, err := token.NewLedger(cfg.pointsSymbol, mgr, token.NonTransferable())
	if err != nil {
		return nil, err
	}
	if tok.Symbol() == pointsTok.Symbol() {
		return nil, fmt.Errorf("core: token and points symbols must differ")
	}
	var svc token.Service = tok
	if cfg.token != nil {
		svc = cfg.token
	}

	p := &Processor{
		state:     mgr,
		platform:  platform.NewEngine(),
		access:    access.NewEngine(),
		burn:      burn.NewEngine(),
		market:    market.NewEngine(),
		committee: committee.NewEngine(),
		points:    points.NewEngine(),
		token:     tok,
		pointsTok: pointsTok,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		tracer:    cfg.tracing.Tracer("predictchain/core"),
	}

	p.platform.SetState(mgr)
	p.platform.SetNowFunc(cfg.now)
	p.access.SetState(mgr)
	p.access.SetNowFunc(cfg.now)
	p.burn.SetState(mgr)
	p.burn.SetToken(svc)
	p.burn.SetNowFunc(cfg.now)
	p.committee.SetState(mgr)
	p.committee.SetNowFunc(cfg.now)
	p.committee.SetMarketView(p.market)
	p.market.SetState(mgr)
	p.market.SetNowFunc(cfg.now)
	p.market.SetCreatorRegistry(p.access)
	p.market.SetResolutionGate(p.committee)
	p.market.SetCharger(p.burn)
	p.market.SetToken(svc)
	p.points.SetState(mgr)
	p.points.SetToken(pointsTok)
	p.points.SetNowFunc(cfg.now)
	return p, nil
}

// apply runs fn under the processor lock and commits on success. A failed
// operation leaves storage untouched.
func (p *Processor) apply(op string, fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, span := p.tracer.Start(context.Background(), op, trace.WithAttributes(attribute.String("ledger.op", op)))
	defer span.End()

	start := time.Now()
	err := fn()
	if err == nil {
		if commitErr := p.state.Commit(); commitErr != nil {
			err = fmt.Errorf("core: commit %s: %w", op, commitErr)
			p.logger.Error("commit failed", "op", op, "error", commitErr)
		}
	}
	if err != nil {
		p.state.Discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Debug("operation rejected", "op", op, "error", err)
	} else {
		p.logger.Debug("operation committed", "op", op)
	}
	if p.metrics != nil {
		p.metrics.ObserveOperation(op, err, time.Since(start))
	}
	return err
}

func (p *Processor) read(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn()
}

// ApplyGenesis initialises every singleton and credits the initial balances
// in a single commit.
func (p *Processor) ApplyGenesis(spec *genesis.Spec) error {
	if spec == nil {
		return fmt.Errorf("core: nil genesis spec")
	}
	err := p.apply("genesis", func() error {
		if _, ok, err := p.state.PlatformConfig(); err != nil {
			return err
		} else if ok {
			return ErrGenesisApplied
		}
		params := spec.PlatformParams()
		if err := p.platform.Initialize(params); err != nil {
			return err
		}
		if err := p.access.Initialize(params.Authority); err != nil {
			return err
		}
		for _, creator := range spec.CreatorAddresses() {
			if err := p.access.AddCreator(params.Authority, creator); err != nil {
				return err
			}
		}
		if members := spec.CommitteeMembers(); len(members) > 0 {
			if err := p.committee.Configure(params.Authority, members, spec.Committee.RequiredApprovals); err != nil {
				return err
			}
		}
		if pp := spec.PointsParams(); pp != nil {
			if err := p.points.Initialize(*pp); err != nil {
				return err
			}
		}
		for _, alloc := range spec.Allocations() {
			if err := p.token.Mint(alloc.Address, alloc.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		if pp := spec.PointsParams(); pp != nil {
			p.logger.Info("points configured", logging.Endpoint("endpoint", pp.Endpoint))
		}
	}
	return err
}

// Initialized reports whether genesis has been applied.
func (p *Processor) Initialized() (bool, error) {
	var ok bool
	err := p.read(func() error {
		var err error
		_, ok, err = p.state.PlatformConfig()
		return err
	})
	return ok, err
}

// --- platform ---

func (p *Processor) InitializePlatform(params platform.InitParams) error {
	return p.apply("initialize_platform", func() error { return p.platform.Initialize(params) })
}

func (p *Processor) UpdateParameters(caller [20]byte, update platform.ParamUpdate) error {
	return p.apply("update_parameters", func() error { return p.platform.UpdateParameters(caller, update) })
}

func (p *Processor) SetPlatformPaused(caller [20]byte, paused bool) error {
	return p.apply("set_platform_pause", func() error { return p.platform.SetPause(caller, paused) })
}

func (p *Processor) PlatformConfig() (cfg *platform.Config, err error) {
	err = p.read(func() error {
		cfg, err = p.platform.Config()
		return err
	})
	return cfg, err
}

// --- access ---

func (p *Processor) InitializeAccess(admin [20]byte) error {
	return p.apply("initialize_access", func() error { return p.access.Initialize(admin) })
}

func (p *Processor) AddCreator(caller, creator [20]byte) error {
	return p.apply("add_creator", func() error { return p.access.AddCreator(caller, creator) })
}

func (p *Processor) RemoveCreator(caller, creator [20]byte) error {
	return p.apply("remove_creator", func() error { return p.access.RemoveCreator(caller, creator) })
}

func (p *Processor) Creators() (reg *access.Registry, err error) {
	err = p.read(func() error {
		reg, err = p.access.Registry()
		return err
	})
	return reg, err
}

// --- committee ---

func (p *Processor) ConfigureCommittee(caller [20]byte, members [][20]byte, required uint8) error {
	return p.apply("configure_committee", func() error { return p.committee.Configure(caller, members, required) })
}

func (p *Processor) ProposeResolution(proposer [20]byte, marketID uint64, outcome uint8, expiry int64) (prop *committee.Proposal, err error) {
	err = p.apply("propose_resolution", func() error {
		prop, err = p.committee.Propose(proposer, marketID, outcome, expiry)
		return err
	})
	return prop, err
}

func (p *Processor) ApproveResolution(member [20]byte, marketID uint64) (prop *committee.Proposal, err error) {
	err = p.apply("approve_resolution", func() error {
		prop, err = p.committee.Approve(member, marketID)
		return err
	})
	return prop, err
}

func (p *Processor) Proposal(marketID uint64) (prop *committee.Proposal, err error) {
	err = p.read(func() error {
		prop, err = p.committee.Proposal(marketID)
		return err
	})
	return prop, err
}

// --- markets ---

func (p *Processor) CreateMarket(creator [20]byte, params market.CreateParams) (m *market.Market, err error) {
	err = p.apply("create_market", func() error {
		m, err = p.market.Create(creator, params)
		return err
	})
	return m, err
}

func (p *Processor) PlacePrediction(user [20]byte, marketID uint64, option uint8, amount uint64) (pred *market.Prediction, err error) {
	err = p.apply("place_prediction", func() error {
		pred, err = p.market.PlacePrediction(user, marketID, option, amount)
		return err
	})
	return pred, err
}

func (p *Processor) ResolveMarket(resolver [20]byte, marketID uint64, winningOption uint8) error {
	return p.apply("resolve_market", func() error { return p.market.Resolve(resolver, marketID, winningOption) })
}

func (p *Processor) ClaimReward(user [20]byte, marketID uint64) (split burn.Split, err error) {
	err = p.apply("claim_reward", func() error {
		split, err = p.market.ClaimReward(user, marketID)
		return err
	})
	return split, err
}

func (p *Processor) SetMarketPaused(caller [20]byte, marketID uint64, paused bool) error {
	return p.apply("set_market_pause", func() error { return p.market.SetPaused(caller, marketID, paused) })
}

func (p *Processor) ReclaimCreatorStake(creator [20]byte, marketID uint64) (amount uint64, err error) {
	err = p.apply("reclaim_creator_stake", func() error {
		amount, err = p.market.ReclaimCreatorStake(creator, marketID)
		return err
	})
	return amount, err
}

func (p *Processor) Market(id uint64) (m *market.Market, err error) {
	err = p.read(func() error {
		m, err = p.market.Market(id)
		return err
	})
	return m, err
}

// Markets returns up to limit markets starting at id from.
func (p *Processor) Markets(from uint64, limit int) (out []*market.Market, err error) {
	if from == 0 {
		from = 1
	}
	err = p.read(func() error {
		last, err := p.state.MarketSequence()
		if err != nil {
			return err
		}
		for id := from; id <= last && len(out) < limit; id++ {
			m, err := p.market.Market(id)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

func (p *Processor) Prediction(marketID uint64, user [20]byte) (pred *market.Prediction, err error) {
	err = p.read(func() error {
		pred, err = p.market.Prediction(marketID, user)
		return err
	})
	return pred, err
}

// --- burn settlement ---

func (p *Processor) ProcessBetBurn(user [20]byte, marketID, amount uint64, proofID string) (split burn.Split, err error) {
	err = p.apply("process_bet_burn", func() error {
		split, err = p.burn.ProcessBetBurn(user, marketID, amount, proofID)
		return err
	})
	return split, err
}

func (p *Processor) ProcessClaimBurn(user [20]byte, marketID, amount uint64, proofID string) (split burn.Split, err error) {
	err = p.apply("process_claim_burn", func() error {
		split, err = p.burn.ProcessClaimBurn(user, marketID, amount, proofID)
		return err
	})
	return split, err
}

// --- points ---

func (p *Processor) InitializePoints(params points.InitParams) error {
	err := p.apply("initialize_points", func() error { return p.points.Initialize(params) })
	if err == nil {
		p.logger.Info("points configured", logging.Endpoint("endpoint", params.Endpoint))
	}
	return err
}

func (p *Processor) MintPoints(caller, user [20]byte, amount uint64, activity string) error {
	return p.apply("mint_points", func() error { return p.points.Mint(caller, user, amount, activity) })
}

func (p *Processor) RedeemPoints(user [20]byte, amount uint64) (r *points.Redemption, err error) {
	err = p.apply("redeem_points", func() error {
		r, err = p.points.Redeem(user, amount)
		return err
	})
	return r, err
}

func (p *Processor) LinkIdentity(user [20]byte, externalID, username string) (profile *points.Profile, err error) {
	err = p.apply("link_identity", func() error {
		profile, err = p.points.LinkIdentity(user, externalID, username)
		return err
	})
	if err == nil {
		p.logger.Info("identity linked",
			"user", ethcommon.Address(user).Hex(),
			logging.Identity("external_id", externalID))
	}
	return profile, err
}

// BeginSettlement moves a pending redemption to processing and tags it with
// a fresh settlement request id.
func (p *Processor) BeginSettlement(caller [20]byte, id uint64) (r *points.Redemption, err error) {
	requestID := uuid.NewString()
	err = p.apply("begin_settlement", func() error {
		r, err = p.points.AdvanceRedemption(caller, id, points.RedemptionProcessing, requestID)
		return err
	})
	return r, err
}

func (p *Processor) AdvanceRedemption(caller [20]byte, id uint64, status points.RedemptionStatus, requestID string) (r *points.Redemption, err error) {
	err = p.apply("advance_redemption", func() error {
		r, err = p.points.AdvanceRedemption(caller, id, status, requestID)
		return err
	})
	return r, err
}

func (p *Processor) PointsStats(user [20]byte) (stats *points.UserStats, err error) {
	err = p.read(func() error {
		stats, err = p.points.Stats(user)
		return err
	})
	return stats, err
}

func (p *Processor) Redemption(id uint64) (r *points.Redemption, err error) {
	err = p.read(func() error {
		r, err = p.points.Redemption(id)
		return err
	})
	return r, err
}

// Profile returns the linked identity for user. ok is false when none exists.
func (p *Processor) Profile(user [20]byte) (profile *points.Profile, ok bool, err error) {
	err = p.read(func() error {
		profile, ok, err = p.points.Profile(user)
		return err
	})
	return profile, ok, err
}

// --- balances and events ---

func (p *Processor) Balance(addr [20]byte) (bal uint64, err error) {
	err = p.read(func() error {
		bal, err = p.token.BalanceOf(addr)
		return err
	})
	return bal, err
}

func (p *Processor) PointsBalance(addr [20]byte) (bal uint64, err error) {
	err = p.read(func() error {
		bal, err = p.pointsTok.BalanceOf(addr)
		return err
	})
	return bal, err
}

// Events returns up to limit committed events starting at sequence from.
func (p *Processor) Events(from uint64, limit int) (out []*types.Event, err error) {
	err = p.read(func() error {
		count, err := p.state.EventCount()
		if err != nil {
			return err
		}
		for seq := from; seq < count && len(out) < limit; seq++ {
			evt, err := p.state.EventAt(seq)
			if err != nil {
				return err
			}
			out = append(out, evt)
		}
		return nil
	})
	return out, err
}
