package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/store/memstore"
	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

const (
	authority = "operator"
	vault     = "vault"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store *memstore.Store
	svc   *service.Service
	clock *clock
}

func newFixture(t *testing.T, minBalance uint64, opts ...service.Option) *fixture {
	t.Helper()

	f := &fixture{store: memstore.New(), clock: &clock{now: t0}}
	opts = append([]service.Option{
		service.WithVault(vault),
		service.WithClock(f.clock.Now),
	}, opts...)
	f.svc = service.New(f.store, opts...)

	_, err := f.svc.InitializeTreasury(context.Background(), service.InitializeInput{
		Authority:             authority,
		WithdrawalLimitPerDay: 5000,
		MinTreasuryBalance:    minBalance,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) authorize(t *testing.T, user string, amount uint64) treasury.Authorization {
	t.Helper()

	a, err := f.svc.AuthorizeWithdrawal(context.Background(), authority, service.AuthorizeInput{
		User:           user,
		Amount:         amount,
		WithdrawalType: treasury.WithdrawalWinnings,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) treasury(t *testing.T) treasury.Treasury {
	t.Helper()

	tr, err := f.svc.GetTreasury(context.Background())
	require.NoError(t, err)
	return tr
}

func (f *fixture) records(t *testing.T) []treasury.TransactionRecord {
	t.Helper()

	recs, err := f.svc.ListTransactions(context.Background(), "", 0)
	require.NoError(t, err)
	return recs
}

func TestInitializeTreasury(t *testing.T) {
	f := newFixture(t, 100)

	tr := f.treasury(t)
	assert.Equal(t, authority, tr.Authority)
	assert.Equal(t, vault, tr.Vault)
	assert.True(t, tr.IsActive)
	assert.Zero(t, tr.TotalDeposits)
	assert.Zero(t, tr.TotalWithdrawals)
	assert.Equal(t, uint64(5000), tr.WithdrawalLimitPerDay)
	assert.Equal(t, uint64(100), tr.MinTreasuryBalance)
	assert.Equal(t, t0, tr.CreatedAt)

	_, err := f.svc.InitializeTreasury(context.Background(), service.InitializeInput{Authority: "someone-else"})
	assert.ErrorIs(t, err, treasury.ErrTreasuryExists)
	assert.Equal(t, authority, f.treasury(t).Authority)
}

func TestInitializeRequiresAuthority(t *testing.T) {
	svc := service.New(memstore.New())
	_, err := svc.InitializeTreasury(context.Background(), service.InitializeInput{Authority: "  "})
	assert.ErrorIs(t, err, treasury.ErrInvalidAuthority)

	_, err = svc.GetTreasury(context.Background())
	assert.ErrorIs(t, err, treasury.ErrTreasuryNotFound)
}

func TestOperationsBeforeInitialize(t *testing.T) {
	svc := service.New(memstore.New())
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", 10)
	assert.ErrorIs(t, err, treasury.ErrTreasuryNotFound)
	_, err = svc.ExecuteWithdrawal(ctx, "alice", "wa_x")
	assert.ErrorIs(t, err, treasury.ErrTreasuryNotFound)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, 100)
	require.NoError(t, f.store.Fund("alice", 1000))

	rec, err := f.svc.Deposit(context.Background(), "alice", 600)
	require.NoError(t, err)

	assert.Equal(t, "alice", rec.User)
	assert.Equal(t, uint64(600), rec.Amount)
	assert.Equal(t, treasury.TransactionDeposit, rec.TransactionType)
	assert.Equal(t, t0, rec.Timestamp)
	assert.Empty(t, rec.AuthorizationID)
	assert.Regexp(t, `^tx_[0-9A-Z]{26}$`, rec.ID)

	assert.Equal(t, uint64(400), f.store.BalanceOf("alice"))
	assert.Equal(t, uint64(600), f.store.BalanceOf(vault))
	assert.Equal(t, uint64(600), f.treasury(t).TotalDeposits)
	assert.Equal(t, []treasury.TransactionRecord{rec}, f.records(t))
}

func TestDepositRejections(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		amount  uint64
		pause   bool
		wantErr error
	}{
		{name: "zero amount", caller: "alice", amount: 0, wantErr: treasury.ErrInvalidAmount},
		{name: "paused", caller: "alice", amount: 10, pause: true, wantErr: treasury.ErrTreasuryInactive},
		{name: "insufficient balance", caller: "alice", amount: 101, wantErr: treasury.ErrInsufficientBalance},
		{name: "no caller", caller: "", amount: 10, wantErr: treasury.ErrInvalidUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, 0)
			require.NoError(t, f.store.Fund("alice", 100))
			if tt.pause {
				_, err := f.svc.PauseTreasury(context.Background(), authority)
				require.NoError(t, err)
			}

			_, err := f.svc.Deposit(context.Background(), tt.caller, tt.amount)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, uint64(100), f.store.BalanceOf("alice"))
			assert.Zero(t, f.store.BalanceOf(vault))
			assert.Zero(t, f.treasury(t).TotalDeposits)
			assert.Empty(t, f.records(t))
		})
	}
}

func TestDepositTotalOverflow(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx service.Tx) error {
		tr, err := tx.LoadTreasury(ctx, service.LockUpdate)
		if err != nil {
			return err
		}
		tr.TotalDeposits = math.MaxUint64
		return tx.UpdateTreasury(ctx, tr)
	}))
	require.NoError(t, f.store.Fund("alice", 10))

	_, err := f.svc.Deposit(context.Background(), "alice", 1)
	require.ErrorIs(t, err, treasury.ErrMathOverflow)
	assert.Equal(t, uint64(10), f.store.BalanceOf("alice"))
	assert.Equal(t, uint64(math.MaxUint64), f.treasury(t).TotalDeposits)
}

func TestAuthorizeWithdrawal(t *testing.T) {
	f := newFixture(t, 100)

	a := f.authorize(t, "alice", 250)
	assert.Regexp(t, `^wa_[0-9A-Z]{26}$`, a.ID)
	assert.Equal(t, "alice", a.User)
	assert.Equal(t, uint64(250), a.Amount)
	assert.Equal(t, authority, a.AuthorizedBy)
	assert.Equal(t, t0, a.AuthorizedAt)
	assert.Equal(t, t0.Add(time.Hour), a.ExpiresAt)
	assert.False(t, a.IsExecuted())

	got, err := f.svc.GetAuthorization(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	// Issuing moves no funds and writes no record.
	assert.Zero(t, f.store.BalanceOf(vault))
	assert.Empty(t, f.records(t))
	assert.Zero(t, f.treasury(t).TotalWithdrawals)
}

func TestAuthorizeWithdrawalRejections(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		in      service.AuthorizeInput
		pause   bool
		wantErr error
	}{
		{
			name:    "not authority",
			caller:  "alice",
			in:      service.AuthorizeInput{User: "alice", Amount: 10, WithdrawalType: treasury.WithdrawalSavings},
			wantErr: treasury.ErrUnauthorizedWithdrawal,
		},
		{
			name:    "zero amount",
			caller:  authority,
			in:      service.AuthorizeInput{User: "alice", Amount: 0, WithdrawalType: treasury.WithdrawalSavings},
			wantErr: treasury.ErrInvalidAmount,
		},
		{
			name:    "paused",
			caller:  authority,
			in:      service.AuthorizeInput{User: "alice", Amount: 10, WithdrawalType: treasury.WithdrawalSavings},
			pause:   true,
			wantErr: treasury.ErrTreasuryInactive,
		},
		{
			name:    "blank user",
			caller:  authority,
			in:      service.AuthorizeInput{User: " ", Amount: 10, WithdrawalType: treasury.WithdrawalSavings},
			wantErr: treasury.ErrInvalidUser,
		},
		{
			name:    "unknown type",
			caller:  authority,
			in:      service.AuthorizeInput{User: "alice", Amount: 10, WithdrawalType: "jackpot"},
			wantErr: treasury.ErrInvalidWithdrawalType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, 0, service.WithIDGenerator(func(prefix string) string {
				return prefix + "_fixed"
			}))
			if tt.pause {
				_, err := f.svc.PauseTreasury(context.Background(), authority)
				require.NoError(t, err)
			}

			_, err := f.svc.AuthorizeWithdrawal(context.Background(), tt.caller, tt.in)
			require.ErrorIs(t, err, tt.wantErr)

			_, err = f.svc.GetAuthorization(context.Background(), "wa_fixed")
			assert.ErrorIs(t, err, treasury.ErrAuthorizationNotFound)
		})
	}
}

func TestExecuteWithdrawal(t *testing.T) {
	f := newFixture(t, 100)
	require.NoError(t, f.store.Fund(vault, 1000))

	a := f.authorize(t, "alice", 300)
	f.clock.Advance(10 * time.Minute)

	out, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	require.NoError(t, err)

	executedAt := t0.Add(10 * time.Minute)
	at, ok := out.Authorization.ExecutedAt()
	require.True(t, ok)
	assert.Equal(t, executedAt, at)

	assert.Equal(t, treasury.TransactionWithdrawal, out.Record.TransactionType)
	assert.Equal(t, a.ID, out.Record.AuthorizationID)
	assert.Equal(t, treasury.WithdrawalWinnings, out.Record.WithdrawalType)
	assert.Equal(t, uint64(300), out.Record.Amount)
	assert.Equal(t, executedAt, out.Record.Timestamp)

	assert.Equal(t, uint64(700), f.store.BalanceOf(vault))
	assert.Equal(t, uint64(300), f.store.BalanceOf("alice"))
	assert.Equal(t, uint64(300), f.treasury(t).TotalWithdrawals)
	assert.Equal(t, []treasury.TransactionRecord{out.Record}, f.records(t))

	stored, err := f.svc.GetAuthorization(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsExecuted())
}

func TestExecuteWithdrawalReplay(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.store.Fund(vault, 1000))
	a := f.authorize(t, "alice", 300)

	_, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	require.NoError(t, err)

	_, err = f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	require.ErrorIs(t, err, treasury.ErrWithdrawalAlreadyExecuted)

	assert.Equal(t, uint64(700), f.store.BalanceOf(vault))
	assert.Equal(t, uint64(300), f.treasury(t).TotalWithdrawals)
	assert.Len(t, f.records(t), 1)
}

func TestExecuteWithdrawalRejections(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		advance time.Duration
		pause   bool
		wantErr error
	}{
		{name: "other user", caller: "mallory", wantErr: treasury.ErrUnauthorizedUser},
		{name: "authority cannot redeem", caller: authority, wantErr: treasury.ErrUnauthorizedUser},
		{name: "one second past expiry", caller: "alice", advance: time.Hour + time.Second, wantErr: treasury.ErrWithdrawalExpired},
		{name: "paused", caller: "alice", pause: true, wantErr: treasury.ErrTreasuryInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, 0)
			require.NoError(t, f.store.Fund(vault, 1000))
			a := f.authorize(t, "alice", 300)
			f.clock.Advance(tt.advance)
			if tt.pause {
				_, err := f.svc.PauseTreasury(context.Background(), authority)
				require.NoError(t, err)
			}

			_, err := f.svc.ExecuteWithdrawal(context.Background(), tt.caller, a.ID)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, uint64(1000), f.store.BalanceOf(vault))
			assert.Zero(t, f.treasury(t).TotalWithdrawals)
			assert.Empty(t, f.records(t))

			stored, err := f.svc.GetAuthorization(context.Background(), a.ID)
			require.NoError(t, err)
			assert.False(t, stored.IsExecuted())
		})
	}
}

func TestExecuteAtExactExpiry(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.store.Fund(vault, 1000))
	a := f.authorize(t, "alice", 300)

	f.clock.Advance(time.Hour)
	_, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	assert.NoError(t, err)
}

func TestExecuteAfterResume(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.store.Fund(vault, 1000))
	a := f.authorize(t, "alice", 300)

	_, err := f.svc.PauseTreasury(context.Background(), authority)
	require.NoError(t, err)
	_, err = f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	require.ErrorIs(t, err, treasury.ErrTreasuryInactive)

	_, err = f.svc.ResumeTreasury(context.Background(), authority)
	require.NoError(t, err)
	_, err = f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	assert.NoError(t, err)
}

func TestExecuteUnknownAuthorization(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", "wa_missing")
	assert.ErrorIs(t, err, treasury.ErrAuthorizationNotFound)
}

func TestExecuteKeepsReserve(t *testing.T) {
	f := newFixture(t, 100)
	require.NoError(t, f.store.Fund(vault, 1000))

	a := f.authorize(t, "alice", 950)
	_, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	require.ErrorIs(t, err, treasury.ErrInsufficientTreasuryFunds)
	assert.Equal(t, uint64(1000), f.store.BalanceOf(vault))
	assert.Zero(t, f.treasury(t).TotalWithdrawals)

	b := f.authorize(t, "alice", 900)
	_, err = f.svc.ExecuteWithdrawal(context.Background(), "alice", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), f.store.BalanceOf(vault))
	assert.Equal(t, uint64(900), f.treasury(t).TotalWithdrawals)

	// The failed claim stays pending and is still refused.
	_, err = f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	assert.ErrorIs(t, err, treasury.ErrInsufficientTreasuryFunds)
	assert.Equal(t, uint64(900), f.treasury(t).TotalWithdrawals)
}

func TestExecuteReserveOverflow(t *testing.T) {
	f := newFixture(t, math.MaxUint64)
	require.NoError(t, f.store.Fund(vault, math.MaxUint64))

	a := f.authorize(t, "alice", 1)
	_, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	assert.ErrorIs(t, err, treasury.ErrInsufficientTreasuryFunds)
}

func TestConcurrentExecuteSingleSuccess(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.store.Fund(vault, 1000))
	a := f.authorize(t, "alice", 300)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		replayed  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, treasury.ErrWithdrawalAlreadyExecuted):
				replayed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, replayed)
	assert.Equal(t, uint64(700), f.store.BalanceOf(vault))
	assert.Len(t, f.records(t), 1)
}

func TestDepositsFromTwoUsers(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.store.Fund("alice", 500))
	require.NoError(t, f.store.Fund("bob", 500))

	var wg sync.WaitGroup
	recs := make(map[string]treasury.TransactionRecord)
	var mu sync.Mutex
	for _, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.svc.Deposit(context.Background(), user, 500)
			assert.NoError(t, err)
			mu.Lock()
			recs[user] = rec
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), f.treasury(t).TotalDeposits)
	assert.Equal(t, uint64(1000), f.store.BalanceOf(vault))
	require.Len(t, recs, 2)
	assert.NotEqual(t, recs["alice"].ID, recs["bob"].ID)

	for _, user := range []string{"alice", "bob"} {
		assert.Equal(t, user, recs[user].User)
		assert.Equal(t, uint64(500), recs[user].Amount)
		assert.Zero(t, f.store.BalanceOf(user))

		stored, err := f.svc.ListTransactions(context.Background(), user, 0)
		require.NoError(t, err)
		assert.Equal(t, []treasury.TransactionRecord{recs[user]}, stored)
	}
}

func TestConcurrentDeposits(t *testing.T) {
	f := newFixture(t, 0)

	const users = 20
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		user := string(rune('a' + i))
		require.NoError(t, f.store.Fund(user, uint64(10+i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Deposit(context.Background(), user, uint64(10+i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var total uint64
	for i := 0; i < users; i++ {
		total += uint64(10 + i)
	}
	assert.Equal(t, total, f.treasury(t).TotalDeposits)
	assert.Equal(t, total, f.store.BalanceOf(vault))

	recs := f.records(t)
	require.Len(t, recs, users)
	for _, rec := range recs {
		i := int(rec.User[0] - 'a')
		assert.Equal(t, uint64(10+i), rec.Amount, "record for %s", rec.User)
	}
}

func TestAdministrationRequiresAuthority(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	limit := uint64(1)

	_, err := f.svc.PauseTreasury(ctx, "alice")
	assert.ErrorIs(t, err, treasury.ErrUnauthorizedAuthority)
	_, err = f.svc.ResumeTreasury(ctx, "alice")
	assert.ErrorIs(t, err, treasury.ErrUnauthorizedAuthority)
	_, err = f.svc.UpdateTreasurySettings(ctx, "alice", treasury.Settings{WithdrawalLimitPerDay: &limit})
	assert.ErrorIs(t, err, treasury.ErrUnauthorizedAuthority)

	tr := f.treasury(t)
	assert.True(t, tr.IsActive)
	assert.Equal(t, uint64(5000), tr.WithdrawalLimitPerDay)
}

func TestUpdateTreasurySettings(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	minBalance := uint64(0)

	_, err := f.svc.PauseTreasury(ctx, authority)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	tr, err := f.svc.UpdateTreasurySettings(ctx, authority, treasury.Settings{MinTreasuryBalance: &minBalance})
	require.NoError(t, err)
	assert.Zero(t, tr.MinTreasuryBalance)
	assert.Equal(t, uint64(5000), tr.WithdrawalLimitPerDay)
	assert.False(t, tr.IsActive)
	assert.Equal(t, t0.Add(time.Minute), tr.LastUpdate)
}

func TestDailyLimitNotEnforced(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.store.Fund(vault, 10_000))

	a := f.authorize(t, "alice", 6000)
	_, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	assert.NoError(t, err)
}

func TestListTransactionsByUser(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, f.store.Fund("alice", 100))
	require.NoError(t, f.store.Fund("bob", 100))

	_, err := f.svc.Deposit(ctx, "alice", 10)
	require.NoError(t, err)
	_, err = f.svc.Deposit(ctx, "bob", 20)
	require.NoError(t, err)
	last, err := f.svc.Deposit(ctx, "alice", 30)
	require.NoError(t, err)

	recs, err := f.svc.ListTransactions(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, []treasury.TransactionRecord{last}, recs)

	recs, err = f.svc.ListTransactions(ctx, "", 1000)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

type fakeCache struct {
	mu        sync.Mutex
	snapshot  *treasury.Treasury
	sets      int
	err       error
	beforeSet func()
}

func (c *fakeCache) Get(context.Context) (treasury.Treasury, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return treasury.Treasury{}, false, c.err
	}
	if c.snapshot == nil {
		return treasury.Treasury{}, false, nil
	}
	return *c.snapshot, true, nil
}

func (c *fakeCache) Set(_ context.Context, t treasury.Treasury) error {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.err != nil {
		return c.err
	}
	if c.snapshot != nil && c.snapshot.Version >= t.Version {
		return nil
	}
	c.snapshot = &t
	return nil
}

func (c *fakeCache) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
}

type fakePublisher struct {
	mu   sync.Mutex
	recs []treasury.TransactionRecord
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, rec treasury.TransactionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.recs = append(p.recs, rec)
	return nil
}

func TestGetTreasuryReadThroughCache(t *testing.T) {
	cache := &fakeCache{}
	f := newFixture(t, 0, service.WithCache(cache))
	require.NoError(t, f.store.Fund("alice", 100))
	require.NotNil(t, cache.snapshot)

	cache.evict()
	first := f.treasury(t)
	require.NotNil(t, cache.snapshot)
	assert.Equal(t, first, *cache.snapshot)

	_, err := f.svc.Deposit(context.Background(), "alice", 40)
	require.NoError(t, err)
	require.NotNil(t, cache.snapshot)
	assert.Equal(t, uint64(40), cache.snapshot.TotalDeposits)
	assert.Equal(t, first.Version+1, cache.snapshot.Version)

	assert.Equal(t, uint64(40), f.treasury(t).TotalDeposits)
}

func TestCacheRefillDoesNotHideConcurrentWrite(t *testing.T) {
	cache := &fakeCache{}
	f := newFixture(t, 0, service.WithCache(cache))
	cache.evict()

	// The pause commits after the reader loaded the treasury and before the
	// reader fills the cache.
	cache.beforeSet = func() {
		_, err := f.svc.PauseTreasury(context.Background(), authority)
		require.NoError(t, err)
	}
	first := f.treasury(t)
	assert.True(t, first.IsActive)

	tr := f.treasury(t)
	assert.False(t, tr.IsActive)
	assert.Equal(t, first.Version+1, tr.Version)
}

func TestCacheFailureDoesNotFailOperations(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cache := &fakeCache{err: errors.New("redis down")}
	f := newFixture(t, 0, service.WithCache(cache), service.WithLogger(zap.New(core)))
	require.NoError(t, f.store.Fund("alice", 100))

	_, err := f.svc.Deposit(context.Background(), "alice", 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), f.treasury(t).TotalDeposits)
	assert.NotZero(t, logs.FilterMessage("treasury cache write failed").Len())
	assert.NotZero(t, logs.FilterMessage("treasury cache read failed").Len())
}

func TestPublisherReceivesCommittedRecords(t *testing.T) {
	pub := &fakePublisher{}
	f := newFixture(t, 0, service.WithPublisher(pub))
	require.NoError(t, f.store.Fund("alice", 100))
	require.NoError(t, f.store.Fund(vault, 500))

	dep, err := f.svc.Deposit(context.Background(), "alice", 40)
	require.NoError(t, err)
	_, err = f.svc.Deposit(context.Background(), "alice", 0)
	require.Error(t, err)

	a := f.authorize(t, "bob", 60)
	out, err := f.svc.ExecuteWithdrawal(context.Background(), "bob", a.ID)
	require.NoError(t, err)

	assert.Equal(t, []treasury.TransactionRecord{dep, out.Record}, pub.recs)
}

func TestPublisherFailureDoesNotFailOperations(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	f := newFixture(t, 0, service.WithPublisher(pub), service.WithLogger(zap.New(core)))
	require.NoError(t, f.store.Fund("alice", 100))

	_, err := f.svc.Deposit(context.Background(), "alice", 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), f.store.BalanceOf(vault))
	assert.Equal(t, 1, logs.FilterMessage("audit record publish failed").Len())
}

func TestSuccessfulOperationsLogNothing(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newFixture(t, 0, service.WithLogger(zap.New(core)))
	require.NoError(t, f.store.Fund(vault, 500))

	a := f.authorize(t, "alice", 60)
	_, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", a.ID)
	require.NoError(t, err)

	assert.Zero(t, logs.Len())
}

func TestOperationsRecordSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, 0, service.WithTracerProvider(tp))
	_, err := f.svc.ExecuteWithdrawal(context.Background(), "alice", "wa_missing")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "treasury.initialize_treasury", spans[0].Name())

	exec := spans[1]
	assert.Equal(t, "treasury.execute_withdrawal", exec.Name())
	var result string
	for _, kv := range exec.Attributes() {
		if kv.Key == "treasury.result" {
			result = kv.Value.AsString()
		}
	}
	assert.Equal(t, string(treasury.CodeAuthorizationNotFound), result)
	require.Len(t, exec.Events(), 1)
}
