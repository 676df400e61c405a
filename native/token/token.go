// Package token implements the fungible-balance service the market and points
// engines move value through. Every primitive either fully applies or fails.
package token

import (
	"errors"
	"fmt"
	"strings"

	"predictchain/native/safemath"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrNonTransferable     = errors.New("token: non-transferable")
	ErrInvalidSymbol       = errors.New("token: invalid symbol")
	errNilState            = errors.New("token: state not configured")
)

// Service is the transfer/mint/burn surface consumed by the engines.
type Service interface {
	Transfer(from, to [20]byte, amount uint64) error
	Mint(to [20]byte, amount uint64) error
	Burn(from [20]byte, amount uint64) error
}

// BalanceReader exposes balances for engines that must pre-check funds.
type BalanceReader interface {
	BalanceOf(addr [20]byte) (uint64, error)
}

type ledgerState interface {
	TokenBalance(symbol string, addr [20]byte) (uint64, error)
	SetTokenBalance(symbol string, addr [20]byte, amount uint64) error
	TokenSupply(symbol string) (uint64, error)
	SetTokenSupply(symbol string, amount uint64) error
}

// Ledger is the state-backed Service. Writes go through the journaled state
// manager so an enclosing operation can roll them back.
type Ledger struct {
	symbol          string
	state           ledgerState
	nonTransferable bool
}

// Option customises a Ledger.
type Option func(*Ledger)

// NonTransferable rejects Transfer calls; only Mint and Burn are allowed.
func NonTransferable() Option {
	return func(l *Ledger) { l.nonTransferable = true }
}

// NewLedger returns a ledger for the supplied symbol.
func NewLedger(symbol string, state ledgerState, opts ...Option) (*Ledger, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return nil, ErrInvalidSymbol
	}
	l := &Ledger{symbol: normalized, state: state}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Symbol returns the canonical token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr [20]byte) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.TokenBalance(l.symbol, addr)
}

// TotalSupply returns the minted minus burned amount.
func (l *Ledger) TotalSupply() (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.TokenSupply(l.symbol)
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to [20]byte, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if l.nonTransferable {
		return ErrNonTransferable
	}
	if amount == 0 || from == to {
		return nil
	}
	fromBal, err := l.state.TokenBalance(l.symbol, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, l.symbol, fromBal, amount)
	}
	toBal, err := l.state.TokenBalance(l.symbol, to)
	if err != nil {
		return err
	}
	newFrom, err := safemath.Sub(fromBal, amount)
	if err != nil {
		return err
	}
	newTo, err := safemath.Add(toBal, amount)
	if err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(l.symbol, from, newFrom); err != nil {
		return err
	}
	return l.state.SetTokenBalance(l.symbol, to, newTo)
}

// Mint credits amount to the holder and grows the supply.
func (l *Ledger) Mint(to [20]byte, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == 0 {
		return nil
	}
	bal, err := l.state.TokenBalance(l.symbol, to)
	if err != nil {
		return err
	}
	supply, err := l.state.TokenSupply(l.symbol)
	if err != nil {
		return err
	}
	newBal, err := safemath.Add(bal, amount)
	if err != nil {
		return err
	}
	newSupply, err := safemath.Add(supply, amount)
	if err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(l.symbol, to, newBal); err != nil {
		return err
	}
	return l.state.SetTokenSupply(l.symbol, newSupply)
}

// Burn destroys amount from the holder and shrinks the supply.
func (l *Ledger) Burn(from [20]byte, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == 0 {
		return nil
	}
	bal, err := l.state.TokenBalance(l.symbol, from)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: %s has %d, burning %d", ErrInsufficientBalance, l.symbol, bal, amount)
	}
	supply, err := l.state.TokenSupply(l.symbol)
	if err != nil {
		return err
	}
	newBal, err := safemath.Sub(bal, amount)
	if err != nil {
		return err
	}
	newSupply, err := safemath.Sub(supply, amount)
	if err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(l.symbol, from, newBal); err != nil {
		return err
	}
	return l.state.SetTokenSupply(l.symbol, newSupply)
}
