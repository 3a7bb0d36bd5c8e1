package treasury

import (
	"strings"
	"time"
)

// AuthorizationWindow is how long an issued claim stays redeemable.
const AuthorizationWindow = 3600 * time.Second

type WithdrawalType string

const (
	WithdrawalWinnings  WithdrawalType = "winnings"
	WithdrawalSavings   WithdrawalType = "savings"
	WithdrawalLiquidity WithdrawalType = "liquidity"
)

func (w WithdrawalType) Valid() bool {
	switch w {
	case WithdrawalWinnings, WithdrawalSavings, WithdrawalLiquidity:
		return true
	}
	return false
}

// ParseWithdrawalType accepts the tag case-insensitively.
func ParseWithdrawalType(s string) (WithdrawalType, error) {
	w := WithdrawalType(strings.ToLower(strings.TrimSpace(s)))
	if !w.Valid() {
		return "", ErrInvalidWithdrawalType
	}
	return w, nil
}

// ExecutionState is either Pending or Executed.
type ExecutionState interface {
	isExecutionState()
}

type Pending struct{}

type Executed struct {
	At time.Time
}

func (Pending) isExecutionState()  {}
func (Executed) isExecutionState() {}

// Authorization is a single-use, time-boxed claim for User to withdraw
// Amount from the treasury vault.
type Authorization struct {
	ID             string
	User           string
	Amount         uint64
	WithdrawalType WithdrawalType
	AuthorizedBy   string
	AuthorizedAt   time.Time
	ExpiresAt      time.Time
	State          ExecutionState
}

type AuthorizationRequest struct {
	ID             string
	User           string
	Amount         uint64
	WithdrawalType WithdrawalType
	Issuer         string
}

// Authorize issues a pending claim. Only the treasury authority may issue.
func Authorize(t Treasury, req AuthorizationRequest, now time.Time) (Authorization, error) {
	if err := t.EnsureActive(); err != nil {
		return Authorization{}, err
	}
	if req.Amount == 0 {
		return Authorization{}, ErrInvalidAmount
	}
	if !t.IsAuthority(req.Issuer) {
		return Authorization{}, ErrUnauthorizedWithdrawal
	}
	if strings.TrimSpace(req.User) == "" {
		return Authorization{}, ErrInvalidUser
	}
	if !req.WithdrawalType.Valid() {
		return Authorization{}, ErrInvalidWithdrawalType
	}

	return Authorization{
		ID:             req.ID,
		User:           req.User,
		Amount:         req.Amount,
		WithdrawalType: req.WithdrawalType,
		AuthorizedBy:   req.Issuer,
		AuthorizedAt:   now,
		ExpiresAt:      now.Add(AuthorizationWindow),
		State:          Pending{},
	}, nil
}

func (a Authorization) IsExecuted() bool {
	_, ok := a.State.(Executed)
	return ok
}

func (a Authorization) ExecutedAt() (time.Time, bool) {
	e, ok := a.State.(Executed)
	return e.At, ok
}

// Expired reports whether a pending claim has outlived its window. Executed
// claims never expire.
func (a Authorization) Expired(now time.Time) bool {
	return !a.IsExecuted() && now.After(a.ExpiresAt)
}

// CheckRedeemable runs the execution preconditions in order; the first
// failure wins.
func (a Authorization) CheckRedeemable(t Treasury, claimant string, now time.Time) error {
	if err := t.EnsureActive(); err != nil {
		return err
	}
	if a.IsExecuted() {
		return ErrWithdrawalAlreadyExecuted
	}
	if claimant == "" || a.User != claimant {
		return ErrUnauthorizedUser
	}
	if now.After(a.ExpiresAt) {
		return ErrWithdrawalExpired
	}
	return nil
}

// MarkExecuted flips the latch. It never reverses.
func (a *Authorization) MarkExecuted(now time.Time) error {
	if a.IsExecuted() {
		return ErrWithdrawalAlreadyExecuted
	}
	a.State = Executed{At: now}
	return nil
}
