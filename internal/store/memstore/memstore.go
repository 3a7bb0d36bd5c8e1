// Package memstore is an in-process ledger store. Each unit of work runs on a
// private copy of the state under the store mutex and replaces the state only
// when it succeeds.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

type state struct {
	treasury       *treasury.Treasury
	authorizations map[string]treasury.Authorization
	records        []treasury.TransactionRecord
	accounts       map[string]uint64
}

func (s state) clone() state {
	c := state{
		authorizations: make(map[string]treasury.Authorization, len(s.authorizations)),
		accounts:       make(map[string]uint64, len(s.accounts)),
		// Full slice expression so appends inside a unit never write into
		// the committed backing array.
		records: s.records[:len(s.records):len(s.records)],
	}
	if s.treasury != nil {
		t := *s.treasury
		c.treasury = &t
	}
	for k, v := range s.authorizations {
		c.authorizations[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st state
}

var _ service.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: state{
		authorizations: map[string]treasury.Authorization{},
		accounts:       map[string]uint64{},
	}}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &memTx{st: &work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Fund credits owner's token account outside any unit of work. It stands in
// for account provisioning.
func (s *Store) Fund(owner string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := treasury.CheckedAdd(s.st.accounts[owner], amount)
	if err != nil {
		return treasury.ErrAccountOverflow
	}
	s.st.accounts[owner] = balance
	return nil
}

func (s *Store) BalanceOf(owner string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.accounts[owner]
}

type memTx struct {
	st *state
}

func (tx *memTx) CreateTreasury(_ context.Context, t treasury.Treasury) error {
	if tx.st.treasury != nil {
		return treasury.ErrTreasuryExists
	}
	tx.st.treasury = &t
	return nil
}

func (tx *memTx) LoadTreasury(_ context.Context, _ service.LockMode) (treasury.Treasury, error) {
	if tx.st.treasury == nil {
		return treasury.Treasury{}, treasury.ErrTreasuryNotFound
	}
	return *tx.st.treasury, nil
}

func (tx *memTx) UpdateTreasury(_ context.Context, t treasury.Treasury) error {
	if tx.st.treasury == nil {
		return treasury.ErrTreasuryNotFound
	}
	tx.st.treasury = &t
	return nil
}

func (tx *memTx) CreateAuthorization(_ context.Context, a treasury.Authorization) error {
	if _, ok := tx.st.authorizations[a.ID]; ok {
		return fmt.Errorf("authorization %s already exists", a.ID)
	}
	tx.st.authorizations[a.ID] = a
	return nil
}

func (tx *memTx) LoadAuthorization(_ context.Context, id string, _ service.LockMode) (treasury.Authorization, error) {
	a, ok := tx.st.authorizations[id]
	if !ok {
		return treasury.Authorization{}, treasury.ErrAuthorizationNotFound
	}
	return a, nil
}

func (tx *memTx) MarkExecuted(_ context.Context, id string, at time.Time) (bool, error) {
	a, ok := tx.st.authorizations[id]
	if !ok {
		return false, treasury.ErrAuthorizationNotFound
	}
	if a.IsExecuted() {
		return false, nil
	}
	a.State = treasury.Executed{At: at}
	tx.st.authorizations[id] = a
	return true, nil
}

func (tx *memTx) AppendRecord(_ context.Context, rec treasury.TransactionRecord) error {
	tx.st.records = append(tx.st.records, rec)
	return nil
}

func (tx *memTx) ListRecords(_ context.Context, user string, limit int) ([]treasury.TransactionRecord, error) {
	out := make([]treasury.TransactionRecord, 0, limit)
	for i := len(tx.st.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := tx.st.records[i]
		if user != "" && rec.User != user {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (tx *memTx) Balance(_ context.Context, account string) (uint64, error) {
	return tx.st.accounts[account], nil
}

func (tx *memTx) Transfer(_ context.Context, from, to string, amount uint64) error {
	src := tx.st.accounts[from]
	if src < amount {
		return treasury.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	dst, err := treasury.CheckedAdd(tx.st.accounts[to], amount)
	if err != nil {
		return treasury.ErrAccountOverflow
	}
	tx.st.accounts[from] = src - amount
	tx.st.accounts[to] = dst
	return nil
}
