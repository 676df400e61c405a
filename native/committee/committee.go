package committee

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"predictchain/core/types"
	"predictchain/native/common"
	"predictchain/native/platform"
)

// MaxMembers bounds both the committee and the approval list of a proposal.
const MaxMembers = 32

const (
	EventCommitteeConfigured = "committee.configured"
	EventProposalCreated     = "committee.proposal_created"
	EventProposalApproved    = "committee.proposal_approved"
)

var (
	ErrUnauthorized          = errors.New("committee: unauthorized")
	ErrNotConfigured         = errors.New("committee: not configured")
	ErrInvalidMembers        = errors.New("committee: invalid member set")
	ErrInvalidThreshold      = errors.New("committee: invalid approval threshold")
	ErrInvalidExpiry         = errors.New("committee: expiry must be in the future")
	ErrInvalidOutcome        = errors.New("committee: invalid outcome")
	ErrMarketResolved        = errors.New("committee: market already resolved")
	ErrProposalExists        = errors.New("committee: open proposal already exists")
	ErrProposalNotFound      = errors.New("committee: proposal not found")
	ErrProposalExpired       = errors.New("committee: proposal expired")
	ErrAlreadyApproved       = errors.New("committee: already approved")
	ErrInsufficientApprovals = errors.New("committee: insufficient approvals")
	ErrOutcomeMismatch       = errors.New("committee: outcome does not match proposal")

	errNilState = errors.New("committee: state not configured")
)

// Committee is the singleton resolver set.
type Committee struct {
	Members           [][20]byte
	RequiredApprovals uint8
}

// IsMember reports whether addr sits on the committee.
func (c *Committee) IsMember(addr [20]byte) bool {
	if c == nil {
		return false
	}
	for _, m := range c.Members {
		if m == addr {
			return true
		}
	}
	return false
}

// Proposal is an outstanding resolution vote for one market.
type Proposal struct {
	MarketID          uint64
	ProposedOutcome   uint8
	Proposer          [20]byte
	Approvals         [][20]byte
	RequiredApprovals uint8
	CreatedAt         int64
	ExpiryTime        int64
}

// Expired reports whether the proposal can no longer be approved or executed.
func (p *Proposal) Expired(now int64) bool { return now > p.ExpiryTime }

// ApprovalsFrom counts the approvals cast by current members of c.
func (p *Proposal) ApprovalsFrom(c *Committee) int {
	count := 0
	for _, a := range p.Approvals {
		if c.IsMember(a) {
			count++
		}
	}
	return count
}

// Approved reports whether approvals from current members of c meet the
// threshold snapshotted on the proposal.
func (p *Proposal) Approved(c *Committee) bool {
	return p.ApprovalsFrom(c) >= int(p.RequiredApprovals)
}

func (p *Proposal) hasApproved(addr [20]byte) bool {
	for _, a := range p.Approvals {
		if a == addr {
			return true
		}
	}
	return false
}

// MarketView exposes the market facts proposals are checked against.
type MarketView interface {
	OptionCount(marketID uint64) (int, error)
	IsResolved(marketID uint64) (bool, error)
}

type engineState interface {
	common.Journal
	PlatformConfig() (*platform.Config, bool, error)
	Committee() (*Committee, bool, error)
	PutCommittee(c *Committee) error
	Proposal(marketID uint64) (*Proposal, bool, error)
	PutProposal(p *Proposal) error
	DeleteProposal(marketID uint64) error
	AppendEvent(evt *types.Event)
}

// Engine runs committee-approved market resolution.
type Engine struct {
	state   engineState
	markets MarketView
	nowFn   func() int64
}

func NewEngine() *Engine {
	return &Engine{nowFn: func() int64 { return time.Now().Unix() }}
}

func (e *Engine) SetState(state engineState) { e.state = state }

// SetMarketView configures the market lookup used to validate proposals.
func (e *Engine) SetMarketView(view MarketView) { e.markets = view }

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) committee() (*Committee, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	c, ok, err := e.state.Committee()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfigured
	}
	return c, nil
}

// Committee returns the configured committee.
func (e *Engine) Committee() (*Committee, error) { return e.committee() }

// Proposal returns the stored proposal for a market.
func (e *Engine) Proposal(marketID uint64) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, ok, err := e.state.Proposal(marketID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProposalNotFound
	}
	return p, nil
}

// Configure replaces the committee. Proposals already open keep the
// threshold they were created with, but approvals from removed members
// stop counting toward it.
func (e *Engine) Configure(caller [20]byte, members [][20]byte, required uint8) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	cfg, ok, err := e.state.PlatformConfig()
	if err != nil {
		return err
	}
	if !ok {
		return platform.ErrNotInitialized
	}
	if caller != cfg.Authority {
		return ErrUnauthorized
	}
	if len(members) == 0 || len(members) > MaxMembers {
		return fmt.Errorf("%w: %d members", ErrInvalidMembers, len(members))
	}
	seen := make(map[[20]byte]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m]; dup {
			return fmt.Errorf("%w: duplicate member %s", ErrInvalidMembers, ethcommon.Address(m).Hex())
		}
		seen[m] = struct{}{}
	}
	if required == 0 || int(required) > len(members) {
		return ErrInvalidThreshold
	}
	return common.Atomic(e.state, func() error {
		if err := e.state.PutCommittee(&Committee{
			Members:           append([][20]byte(nil), members...),
			RequiredApprovals: required,
		}); err != nil {
			return err
		}
		e.state.AppendEvent(&types.Event{
			Type: EventCommitteeConfigured,
			Attributes: map[string]string{
				"admin":              ethcommon.Address(caller).Hex(),
				"members":            strconv.Itoa(len(members)),
				"required_approvals": strconv.Itoa(int(required)),
			},
		})
		return nil
	})
}

// Propose opens a resolution proposal. The proposer's own vote counts as the
// first approval. An expired proposal for the same market is replaced.
func (e *Engine) Propose(proposer [20]byte, marketID uint64, outcome uint8, expiry int64) (*Proposal, error) {
	c, err := e.committee()
	if err != nil {
		return nil, err
	}
	if !c.IsMember(proposer) {
		return nil, ErrUnauthorized
	}
	now := e.nowFn()
	if expiry <= now {
		return nil, ErrInvalidExpiry
	}
	if e.markets != nil {
		resolved, err := e.markets.IsResolved(marketID)
		if err != nil {
			return nil, err
		}
		if resolved {
			return nil, ErrMarketResolved
		}
		count, err := e.markets.OptionCount(marketID)
		if err != nil {
			return nil, err
		}
		if int(outcome) >= count {
			return nil, ErrInvalidOutcome
		}
	}
	existing, ok, err := e.state.Proposal(marketID)
	if err != nil {
		return nil, err
	}
	if ok && !existing.Expired(now) {
		return nil, ErrProposalExists
	}
	p := &Proposal{
		MarketID:          marketID,
		ProposedOutcome:   outcome,
		Proposer:          proposer,
		Approvals:         [][20]byte{proposer},
		RequiredApprovals: c.RequiredApprovals,
		CreatedAt:         now,
		ExpiryTime:        expiry,
	}
	err = common.Atomic(e.state, func() error {
		if err := e.state.PutProposal(p); err != nil {
			return err
		}
		e.state.AppendEvent(proposalEvent(EventProposalCreated, p, proposer))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Approve adds member's vote to the market's open proposal.
func (e *Engine) Approve(member [20]byte, marketID uint64) (*Proposal, error) {
	c, err := e.committee()
	if err != nil {
		return nil, err
	}
	if !c.IsMember(member) {
		return nil, ErrUnauthorized
	}
	p, err := e.Proposal(marketID)
	if err != nil {
		return nil, err
	}
	if p.Expired(e.nowFn()) {
		return nil, ErrProposalExpired
	}
	if p.hasApproved(member) {
		return nil, ErrAlreadyApproved
	}
	current := p.Approvals[:0:0]
	for _, a := range p.Approvals {
		if c.IsMember(a) {
			current = append(current, a)
		}
	}
	if len(current) >= MaxMembers {
		return nil, ErrInvalidMembers
	}
	err = common.Atomic(e.state, func() error {
		p.Approvals = append(current, member)
		if err := e.state.PutProposal(p); err != nil {
			return err
		}
		e.state.AppendEvent(proposalEvent(EventProposalApproved, p, member))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Authorize checks that resolver may resolve marketID to outcome at now.
func (e *Engine) Authorize(marketID uint64, resolver [20]byte, outcome uint8, now int64) error {
	c, err := e.committee()
	if err != nil {
		return err
	}
	if !c.IsMember(resolver) {
		return ErrUnauthorized
	}
	p, err := e.Proposal(marketID)
	if err != nil {
		return err
	}
	if p.Expired(now) {
		return ErrProposalExpired
	}
	if !p.Approved(c) {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientApprovals, p.ApprovalsFrom(c), p.RequiredApprovals)
	}
	if p.ProposedOutcome != outcome {
		return ErrOutcomeMismatch
	}
	return nil
}

// Consume removes an executed proposal.
func (e *Engine) Consume(marketID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.DeleteProposal(marketID)
}

func proposalEvent(eventType string, p *Proposal, actor [20]byte) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"market":             strconv.FormatUint(p.MarketID, 10),
			"outcome":            strconv.Itoa(int(p.ProposedOutcome)),
			"actor":              ethcommon.Address(actor).Hex(),
			"approvals":          strconv.Itoa(len(p.Approvals)),
			"required_approvals": strconv.Itoa(int(p.RequiredApprovals)),
			"expiry_time":        strconv.FormatInt(p.ExpiryTime, 10),
		},
	}
}
