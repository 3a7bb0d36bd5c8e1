package service

import (
	"context"
	"time"

	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

// LockMode selects how a loaded row is held for the rest of the unit of work.
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

// Store runs units of work. fn either commits as a whole or leaves no trace;
// any error returned by fn aborts the unit.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the ledger inside one unit of work. Implementations must
// lock the treasury before any authorization when both are locked.
type Tx interface {
	Gateway

	CreateTreasury(ctx context.Context, t treasury.Treasury) error
	LoadTreasury(ctx context.Context, mode LockMode) (treasury.Treasury, error)
	UpdateTreasury(ctx context.Context, t treasury.Treasury) error

	CreateAuthorization(ctx context.Context, a treasury.Authorization) error
	LoadAuthorization(ctx context.Context, id string, mode LockMode) (treasury.Authorization, error)
	// MarkExecuted atomically flips a pending authorization to executed and
	// reports whether this call performed the flip.
	MarkExecuted(ctx context.Context, id string, at time.Time) (bool, error)

	AppendRecord(ctx context.Context, rec treasury.TransactionRecord) error
	ListRecords(ctx context.Context, user string, limit int) ([]treasury.TransactionRecord, error)
}

// Gateway moves funds between token accounts. A transfer either applies in
// full or fails with no effect.
type Gateway interface {
	Balance(ctx context.Context, account string) (uint64, error)
	Transfer(ctx context.Context, from, to string, amount uint64) error
}

// SnapshotCache holds a read copy of the treasury. Set must not replace a
// snapshot whose Version is the same or later than t.Version.
type SnapshotCache interface {
	Get(ctx context.Context) (treasury.Treasury, bool, error)
	Set(ctx context.Context, t treasury.Treasury) error
}

// RecordPublisher streams committed audit records.
type RecordPublisher interface {
	Publish(ctx context.Context, rec treasury.TransactionRecord) error
}
