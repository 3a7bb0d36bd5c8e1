// Package service sequences the treasury ledger, the authorization state
// machine and the transfer gateway into the atomic treasury operations.
//
// Every operation runs as one Store unit of work. Caller identities are
// trusted as already authenticated; this package only compares them.
package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

const (
	DefaultVault = "treasury-vault"

	defaultListLimit = 50
	maxListLimit     = 500
)

type Service struct {
	store     Store
	vault     string
	cache     SnapshotCache
	publisher RecordPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func(prefix string) string
}

type Option func(*Service)

// WithVault sets the token account a newly initialized treasury holds its
// funds in.
func WithVault(vault string) Option {
	return func(s *Service) {
		if vault != "" {
			s.vault = vault
		}
	}
}

func WithCache(c SnapshotCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPublisher(p RecordPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationName)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(fn func(prefix string) string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		vault:  DefaultVault,
		logger: zap.NewNop(),
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
		now:    time.Now,
		newID:  newULIDGenerator().New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current time at ledger resolution (whole seconds, UTC).
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

type InitializeInput struct {
	Authority             string
	WithdrawalLimitPerDay uint64
	MinTreasuryBalance    uint64
}

func (s *Service) InitializeTreasury(ctx context.Context, in InitializeInput) (t treasury.Treasury, err error) {
	ctx, done := s.observe(ctx, "initialize_treasury")
	defer func() { done(err) }()

	authority := strings.TrimSpace(in.Authority)
	if authority == "" {
		return treasury.Treasury{}, treasury.ErrInvalidAuthority
	}

	t = treasury.New(authority, s.vault, in.WithdrawalLimitPerDay, in.MinTreasuryBalance, s.clock())
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateTreasury(ctx, t)
	})
	if err != nil {
		return treasury.Treasury{}, err
	}

	s.storeSnapshot(ctx, t)
	return t, nil
}

// Deposit moves amount from the caller's account into the vault.
func (s *Service) Deposit(ctx context.Context, caller string, amount uint64) (rec treasury.TransactionRecord, err error) {
	ctx, done := s.observe(ctx, "deposit_to_treasury", attribute.String("treasury.user", caller))
	defer func() { done(err) }()

	var t treasury.Treasury
	now := s.clock()
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err = tx.LoadTreasury(ctx, LockUpdate)
		if err != nil {
			return err
		}
		if err := t.RecordDeposit(amount, now); err != nil {
			return err
		}
		if caller == "" {
			return treasury.ErrInvalidUser
		}
		if err := tx.Transfer(ctx, caller, t.Vault, amount); err != nil {
			return err
		}
		if err := tx.UpdateTreasury(ctx, t); err != nil {
			return err
		}
		rec = treasury.NewDepositRecord(s.newID(recordPrefix), caller, amount, now)
		return tx.AppendRecord(ctx, rec)
	})
	if err != nil {
		return treasury.TransactionRecord{}, err
	}

	s.storeSnapshot(ctx, t)
	s.publish(ctx, rec)
	return rec, nil
}

type AuthorizeInput struct {
	User           string
	Amount         uint64
	WithdrawalType treasury.WithdrawalType
}

// AuthorizeWithdrawal issues a pending claim. Only the treasury authority may
// call it.
func (s *Service) AuthorizeWithdrawal(ctx context.Context, caller string, in AuthorizeInput) (a treasury.Authorization, err error) {
	ctx, done := s.observe(ctx, "authorize_withdrawal", attribute.String("treasury.user", in.User))
	defer func() { done(err) }()

	now := s.clock()
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.LoadTreasury(ctx, LockShare)
		if err != nil {
			return err
		}
		a, err = treasury.Authorize(t, treasury.AuthorizationRequest{
			ID:             s.newID(authorizationPrefix),
			User:           strings.TrimSpace(in.User),
			Amount:         in.Amount,
			WithdrawalType: in.WithdrawalType,
			Issuer:         caller,
		}, now)
		if err != nil {
			return err
		}
		return tx.CreateAuthorization(ctx, a)
	})
	if err != nil {
		return treasury.Authorization{}, err
	}
	return a, nil
}

type Execution struct {
	Authorization treasury.Authorization
	Record        treasury.TransactionRecord
}

// ExecuteWithdrawal redeems a pending claim for its named user and pays the
// amount out of the vault into the caller's account.
func (s *Service) ExecuteWithdrawal(ctx context.Context, caller, authorizationID string) (out Execution, err error) {
	ctx, done := s.observe(ctx, "execute_withdrawal",
		attribute.String("treasury.user", caller),
		attribute.String("treasury.authorization_id", authorizationID),
	)
	defer func() { done(err) }()

	var t treasury.Treasury
	now := s.clock()
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err = tx.LoadTreasury(ctx, LockUpdate)
		if err != nil {
			return err
		}
		if err := t.EnsureActive(); err != nil {
			return err
		}

		a, err := tx.LoadAuthorization(ctx, authorizationID, LockUpdate)
		if err != nil {
			return err
		}
		if err := a.CheckRedeemable(t, caller, now); err != nil {
			return err
		}

		balance, err := tx.Balance(ctx, t.Vault)
		if err != nil {
			return err
		}
		if err := t.CheckSolvency(balance, a.Amount); err != nil {
			return err
		}
		if err := t.RecordWithdrawal(a.Amount, now); err != nil {
			return err
		}

		if err := a.MarkExecuted(now); err != nil {
			return err
		}
		swapped, err := tx.MarkExecuted(ctx, a.ID, now)
		if err != nil {
			return err
		}
		if !swapped {
			return treasury.ErrWithdrawalAlreadyExecuted
		}

		if err := tx.Transfer(ctx, t.Vault, caller, a.Amount); err != nil {
			return err
		}
		if err := tx.UpdateTreasury(ctx, t); err != nil {
			return err
		}

		out.Authorization = a
		out.Record = treasury.NewWithdrawalRecord(s.newID(recordPrefix), a, now)
		return tx.AppendRecord(ctx, out.Record)
	})
	if err != nil {
		return Execution{}, err
	}

	s.storeSnapshot(ctx, t)
	s.publish(ctx, out.Record)
	return out, nil
}

func (s *Service) PauseTreasury(ctx context.Context, caller string) (treasury.Treasury, error) {
	return s.setActive(ctx, "pause_treasury", caller, false)
}

func (s *Service) ResumeTreasury(ctx context.Context, caller string) (treasury.Treasury, error) {
	return s.setActive(ctx, "resume_treasury", caller, true)
}

func (s *Service) setActive(ctx context.Context, op, caller string, active bool) (t treasury.Treasury, err error) {
	ctx, done := s.observe(ctx, op)
	defer func() { done(err) }()

	return s.administer(ctx, caller, func(t *treasury.Treasury, now time.Time) {
		t.SetActive(active, now)
	})
}

func (s *Service) UpdateTreasurySettings(ctx context.Context, caller string, settings treasury.Settings) (t treasury.Treasury, err error) {
	ctx, done := s.observe(ctx, "update_treasury_settings")
	defer func() { done(err) }()

	return s.administer(ctx, caller, func(t *treasury.Treasury, now time.Time) {
		t.Reconfigure(settings, now)
	})
}

// administer applies an authority-only mutation. These stay available while
// the treasury is paused.
func (s *Service) administer(ctx context.Context, caller string, mutate func(*treasury.Treasury, time.Time)) (t treasury.Treasury, err error) {
	now := s.clock()
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err = tx.LoadTreasury(ctx, LockUpdate)
		if err != nil {
			return err
		}
		if !t.IsAuthority(caller) {
			return treasury.ErrUnauthorizedAuthority
		}
		mutate(&t, now)
		return tx.UpdateTreasury(ctx, t)
	})
	if err != nil {
		return treasury.Treasury{}, err
	}

	s.storeSnapshot(ctx, t)
	return t, nil
}

// GetTreasury returns the current treasury, served from the snapshot cache
// when one is configured.
func (s *Service) GetTreasury(ctx context.Context) (t treasury.Treasury, err error) {
	ctx, done := s.observe(ctx, "get_treasury")
	defer func() { done(err) }()

	if s.cache != nil {
		cached, ok, cerr := s.cache.Get(ctx)
		if cerr != nil {
			sideEffectErrors.WithLabelValues("cache_get").Inc()
			s.logger.Warn("treasury cache read failed", zap.Error(cerr))
		} else if ok {
			return cached, nil
		}
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err = tx.LoadTreasury(ctx, LockNone)
		return err
	})
	if err != nil {
		return treasury.Treasury{}, err
	}

	s.storeSnapshot(ctx, t)
	return t, nil
}

func (s *Service) GetAuthorization(ctx context.Context, id string) (a treasury.Authorization, err error) {
	ctx, done := s.observe(ctx, "get_authorization")
	defer func() { done(err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err = tx.LoadAuthorization(ctx, id, LockNone)
		return err
	})
	return a, err
}

// ListTransactions returns the newest audit records first. An empty user
// lists every user.
func (s *Service) ListTransactions(ctx context.Context, user string, limit int) (recs []treasury.TransactionRecord, err error) {
	ctx, done := s.observe(ctx, "list_transactions")
	defer func() { done(err) }()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		recs, err = tx.ListRecords(ctx, user, limit)
		return err
	})
	return recs, err
}

// storeSnapshot offers t to the cache. A reader's copy loaded before a
// concurrent write carries the older version and is refused by the cache.
func (s *Service) storeSnapshot(ctx context.Context, t treasury.Treasury) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, t); err != nil {
		sideEffectErrors.WithLabelValues("cache_set").Inc()
		s.logger.Warn("treasury cache write failed",
			zap.Uint64("version", t.Version),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, rec treasury.TransactionRecord) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, rec); err != nil {
		sideEffectErrors.WithLabelValues("publish").Inc()
		s.logger.Warn("audit record publish failed",
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
	}
}
