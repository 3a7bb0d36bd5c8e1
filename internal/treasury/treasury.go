// Package treasury holds the pooled-funds ledger state, the withdrawal
// authorization state machine and the audit records they produce.
//
// Nothing here performs I/O or identity checks against the caller; the
// service layer authenticates the caller and sequences these calls inside a
// single unit of work.
package treasury

import (
	"math/bits"
	"time"
)

// Treasury is the singleton ledger of a deployment.
type Treasury struct {
	Authority             string
	Vault                 string
	TotalDeposits         uint64
	TotalWithdrawals      uint64
	WithdrawalLimitPerDay uint64 // stored and updatable, never enforced
	MinTreasuryBalance    uint64
	IsActive              bool
	CreatedAt             time.Time
	LastUpdate            time.Time
	// Version increases by one with every committed change.
	Version uint64
}

// Settings carries an optional update of the configured thresholds. A nil
// field leaves the current value untouched.
type Settings struct {
	WithdrawalLimitPerDay *uint64
	MinTreasuryBalance    *uint64
}

// New returns an active treasury with zeroed accumulators.
func New(authority, vault string, withdrawalLimit, minBalance uint64, now time.Time) Treasury {
	return Treasury{
		Authority:             authority,
		Vault:                 vault,
		WithdrawalLimitPerDay: withdrawalLimit,
		MinTreasuryBalance:    minBalance,
		IsActive:              true,
		CreatedAt:             now,
		LastUpdate:            now,
		Version:               1,
	}
}

func (t Treasury) EnsureActive() error {
	if !t.IsActive {
		return ErrTreasuryInactive
	}
	return nil
}

func (t Treasury) IsAuthority(identity string) bool {
	return identity != "" && identity == t.Authority
}

// RecordDeposit adds amount to TotalDeposits. The receiver is left unchanged
// on error.
func (t *Treasury) RecordDeposit(amount uint64, now time.Time) error {
	total, err := t.accumulate(t.TotalDeposits, amount)
	if err != nil {
		return err
	}
	t.TotalDeposits = total
	t.touch(now)
	return nil
}

// RecordWithdrawal adds amount to TotalWithdrawals. The receiver is left
// unchanged on error.
func (t *Treasury) RecordWithdrawal(amount uint64, now time.Time) error {
	total, err := t.accumulate(t.TotalWithdrawals, amount)
	if err != nil {
		return err
	}
	t.TotalWithdrawals = total
	t.touch(now)
	return nil
}

func (t *Treasury) accumulate(current, amount uint64) (uint64, error) {
	if err := t.EnsureActive(); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	return CheckedAdd(current, amount)
}

func (t *Treasury) SetActive(active bool, now time.Time) {
	t.IsActive = active
	t.touch(now)
}

func (t *Treasury) Reconfigure(s Settings, now time.Time) {
	if s.WithdrawalLimitPerDay != nil {
		t.WithdrawalLimitPerDay = *s.WithdrawalLimitPerDay
	}
	if s.MinTreasuryBalance != nil {
		t.MinTreasuryBalance = *s.MinTreasuryBalance
	}
	t.touch(now)
}

func (t *Treasury) touch(now time.Time) {
	t.LastUpdate = now
	t.Version++
}

// CheckSolvency reports whether paying amount out of a vault holding
// liveBalance keeps at least MinTreasuryBalance behind.
func (t Treasury) CheckSolvency(liveBalance, amount uint64) error {
	required, err := CheckedAdd(amount, t.MinTreasuryBalance)
	if err != nil {
		// No representable balance can cover it.
		return ErrInsufficientTreasuryFunds
	}
	if liveBalance < required {
		return ErrInsufficientTreasuryFunds
	}
	return nil
}

// CheckedAdd returns a+b or ErrMathOverflow instead of wrapping.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrMathOverflow
	}
	return sum, nil
}
