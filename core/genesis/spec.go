package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"predictchain/native/committee"
	"predictchain/native/platform"
	"predictchain/native/points"
)

// Spec is the JSON genesis document applied to an empty ledger.
type Spec struct {
	TokenSymbol  string            `json:"tokenSymbol"`
	PointsSymbol string            `json:"pointsSymbol"`
	Platform     PlatformSpec      `json:"platform"`
	Creators     []string          `json:"creators"`
	Committee    *CommitteeSpec    `json:"committee,omitempty"`
	Points       *PointsSpec       `json:"points,omitempty"`
	Alloc        map[string]string `json:"alloc"` // addr -> base units

	platformParams platform.InitParams
	creatorAddrs   [][20]byte
	committeeAddrs [][20]byte
	pointsParams   *points.InitParams
	allocations    []Allocation
}

type PlatformSpec struct {
	Authority        string `json:"authority"`
	TokenMint        string `json:"tokenMint"`
	Treasury         string `json:"treasury"`
	BetBurnRateBps   uint16 `json:"betBurnRateBps"`
	ClaimBurnRateBps uint16 `json:"claimBurnRateBps"`
	PlatformFeeBps   uint16 `json:"platformFeeBps"`
	MinBetAmount     string `json:"minBetAmount"`
}

type CommitteeSpec struct {
	Members           []string `json:"members"`
	RequiredApprovals uint8    `json:"requiredApprovals"`
}

type PointsSpec struct {
	Authority           string `json:"authority"`
	Mint                string `json:"mint"`
	RedemptionContract  string `json:"redemptionContract"`
	Endpoint            string `json:"endpoint"`
	MinRedemptionAmount string `json:"minRedemptionAmount"`
	CooldownSeconds     int64  `json:"cooldownSeconds"`
}

// Allocation is an initial platform-token balance.
type Allocation struct {
	Address [20]byte
	Amount  uint64
}

// LoadSpec reads and validates a genesis file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec decodes and validates genesis JSON.
func ParseSpec(data []byte) (*Spec, error) {
	spec := new(Spec)
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(spec); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *Spec) PlatformParams() platform.InitParams { return s.platformParams }
func (s *Spec) CreatorAddresses() [][20]byte      { return s.creatorAddrs }
func (s *Spec) CommitteeMembers() [][20]byte      { return s.committeeAddrs }

// PointsParams returns nil when the points ledger is not configured.
func (s *Spec) PointsParams() *points.InitParams { return s.pointsParams }

// Allocations returns the initial balances ordered by address.
func (s *Spec) Allocations() []Allocation { return s.allocations }

func (s *Spec) validate() error {
	if strings.TrimSpace(s.TokenSymbol) == "" {
		s.TokenSymbol = "PRED"
	}
	if strings.TrimSpace(s.PointsSymbol) == "" {
		s.PointsSymbol = "PTS"
	}
	if strings.EqualFold(s.TokenSymbol, s.PointsSymbol) {
		return fmt.Errorf("genesis: token and points symbols must differ")
	}

	var err error
	p := s.Platform
	params := platform.InitParams{
		BetBurnRateBps:   p.BetBurnRateBps,
		ClaimBurnRateBps: p.ClaimBurnRateBps,
		PlatformFeeBps:   p.PlatformFeeBps,
	}
	if params.Authority, err = parseAddress("platform.authority", p.Authority); err != nil {
		return err
	}
	if params.TokenMint, err = parseOptionalAddress("platform.tokenMint", p.TokenMint); err != nil {
		return err
	}
	if params.Treasury, err = parseAddress("platform.treasury", p.Treasury); err != nil {
		return err
	}
	if p.BetBurnRateBps > platform.MaxBurnRateBps || p.ClaimBurnRateBps > platform.MaxBurnRateBps {
		return fmt.Errorf("genesis: burn rate exceeds %dbp", platform.MaxBurnRateBps)
	}
	if p.PlatformFeeBps > platform.MaxPlatformFeeBps {
		return fmt.Errorf("genesis: platform fee exceeds %dbp", platform.MaxPlatformFeeBps)
	}
	if params.MinBetAmount, err = parseAmount("platform.minBetAmount", p.MinBetAmount); err != nil {
		return err
	}
	s.platformParams = params

	s.creatorAddrs = s.creatorAddrs[:0]
	for i, raw := range s.Creators {
		addr, err := parseAddress(fmt.Sprintf("creators[%d]", i), raw)
		if err != nil {
			return err
		}
		s.creatorAddrs = append(s.creatorAddrs, addr)
	}

	if c := s.Committee; c != nil {
		if len(c.Members) == 0 || len(c.Members) > committee.MaxMembers {
			return fmt.Errorf("genesis: committee needs 1..%d members", committee.MaxMembers)
		}
		if c.RequiredApprovals == 0 || int(c.RequiredApprovals) > len(c.Members) {
			return fmt.Errorf("genesis: committee requiredApprovals must be within 1..%d", len(c.Members))
		}
		s.committeeAddrs = s.committeeAddrs[:0]
		for i, raw := range c.Members {
			addr, err := parseAddress(fmt.Sprintf("committee.members[%d]", i), raw)
			if err != nil {
				return err
			}
			s.committeeAddrs = append(s.committeeAddrs, addr)
		}
	}

	if ps := s.Points; ps != nil {
		pp := &points.InitParams{Endpoint: strings.TrimSpace(ps.Endpoint), CooldownPeriod: ps.CooldownSeconds}
		if pp.Authority, err = parseAddress("points.authority", ps.Authority); err != nil {
			return err
		}
		if pp.Mint, err = parseOptionalAddress("points.mint", ps.Mint); err != nil {
			return err
		}
		if pp.RedemptionContract, err = parseOptionalAddress("points.redemptionContract", ps.RedemptionContract); err != nil {
			return err
		}
		if pp.MinRedemptionAmount, err = parseAmount("points.minRedemptionAmount", ps.MinRedemptionAmount); err != nil {
			return err
		}
		if ps.CooldownSeconds < 0 {
			return fmt.Errorf("genesis: points.cooldownSeconds must not be negative")
		}
		if len(pp.Endpoint) > points.MaxEndpointLength {
			return fmt.Errorf("genesis: points.endpoint exceeds %d characters", points.MaxEndpointLength)
		}
		s.pointsParams = pp
	}

	s.allocations = s.allocations[:0]
	for raw, amount := range s.Alloc {
		addr, err := parseAddress("alloc", raw)
		if err != nil {
			return err
		}
		value, err := parseAmount("alloc["+raw+"]", amount)
		if err != nil {
			return err
		}
		s.allocations = append(s.allocations, Allocation{Address: addr, Amount: value})
	}
	sort.Slice(s.allocations, func(i, j int) bool {
		return ethcommon.Address(s.allocations[i].Address).Hex() < ethcommon.Address(s.allocations[j].Address).Hex()
	})
	return nil
}

func parseAddress(field, value string) ([20]byte, error) {
	value = strings.TrimSpace(value)
	if !ethcommon.IsHexAddress(value) {
		return [20]byte{}, fmt.Errorf("genesis: %s: invalid address %q", field, value)
	}
	return ethcommon.HexToAddress(value), nil
}

func parseOptionalAddress(field, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, nil
	}
	return parseAddress(field, value)
}

func parseAmount(field, value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genesis: %s: invalid amount %q", field, value)
	}
	return amount, nil
}
