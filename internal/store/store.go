// Package store persists the treasury ledger in PostgreSQL. The token
// accounts the transfer gateway moves funds between live in the same
// database, so a transfer commits or aborts together with the ledger update
// that caused it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ service.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func lockClause(mode service.LockMode) string {
	switch mode {
	case service.LockShare:
		return " FOR SHARE"
	case service.LockUpdate:
		return " FOR UPDATE"
	}
	return ""
}

func (t *pgTx) CreateTreasury(ctx context.Context, tr treasury.Treasury) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO treasury (
            id, authority, vault, total_deposits, total_withdrawals,
            withdrawal_limit_per_day, min_treasury_balance, is_active, created_at, last_update, version
        )
        VALUES (1, $1, $2, $3::text::numeric, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7, $8, $9, $10)
    `,
		tr.Authority,
		tr.Vault,
		num(tr.TotalDeposits),
		num(tr.TotalWithdrawals),
		num(tr.WithdrawalLimitPerDay),
		num(tr.MinTreasuryBalance),
		tr.IsActive,
		tr.CreatedAt,
		tr.LastUpdate,
		int64(tr.Version),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return treasury.ErrTreasuryExists
		}
		return fmt.Errorf("insert treasury: %w", err)
	}
	return nil
}

func (t *pgTx) LoadTreasury(ctx context.Context, mode service.LockMode) (treasury.Treasury, error) {
	tr, err := scanTreasury(t.tx.QueryRow(ctx,
		"SELECT "+treasuryColumns+" FROM treasury WHERE id = 1"+lockClause(mode)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return treasury.Treasury{}, treasury.ErrTreasuryNotFound
		}
		return treasury.Treasury{}, fmt.Errorf("load treasury: %w", err)
	}
	return tr, nil
}

func (t *pgTx) UpdateTreasury(ctx context.Context, tr treasury.Treasury) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE treasury
        SET total_deposits = $1::text::numeric,
            total_withdrawals = $2::text::numeric,
            withdrawal_limit_per_day = $3::text::numeric,
            min_treasury_balance = $4::text::numeric,
            is_active = $5,
            last_update = $6,
            version = $7
        WHERE id = 1
    `,
		num(tr.TotalDeposits),
		num(tr.TotalWithdrawals),
		num(tr.WithdrawalLimitPerDay),
		num(tr.MinTreasuryBalance),
		tr.IsActive,
		tr.LastUpdate,
		int64(tr.Version),
	)
	if err != nil {
		return fmt.Errorf("update treasury: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return treasury.ErrTreasuryNotFound
	}
	return nil
}

func (t *pgTx) CreateAuthorization(ctx context.Context, a treasury.Authorization) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO withdrawal_authorizations (
            id, user_id, amount, withdrawal_type, authorized_by, authorized_at, expires_at
        )
        VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7)
    `,
		a.ID,
		a.User,
		num(a.Amount),
		string(a.WithdrawalType),
		a.AuthorizedBy,
		a.AuthorizedAt,
		a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert authorization: %w", err)
	}
	return nil
}

func (t *pgTx) LoadAuthorization(ctx context.Context, id string, mode service.LockMode) (treasury.Authorization, error) {
	a, err := scanAuthorization(t.tx.QueryRow(ctx,
		"SELECT "+authorizationColumns+" FROM withdrawal_authorizations WHERE id = $1"+lockClause(mode), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return treasury.Authorization{}, treasury.ErrAuthorizationNotFound
		}
		return treasury.Authorization{}, fmt.Errorf("load authorization: %w", err)
	}
	return a, nil
}

// MarkExecuted is the compare-and-set on the pending state: only the
// statement that finds executed_at still NULL flips it.
func (t *pgTx) MarkExecuted(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
        UPDATE withdrawal_authorizations
        SET executed_at = $1
        WHERE id = $2 AND executed_at IS NULL
    `, at, id)
	if err != nil {
		return false, fmt.Errorf("mark executed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) AppendRecord(ctx context.Context, rec treasury.TransactionRecord) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO transaction_records (
            id, user_id, amount, transaction_type, withdrawal_type, authorization_id, created_at
        )
        VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7)
    `,
		rec.ID,
		rec.User,
		num(rec.Amount),
		string(rec.TransactionType),
		nullable(string(rec.WithdrawalType)),
		nullable(rec.AuthorizationID),
		rec.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) && rec.AuthorizationID != "" {
			return treasury.ErrWithdrawalAlreadyExecuted
		}
		return fmt.Errorf("insert transaction record: %w", err)
	}
	return nil
}

func (t *pgTx) ListRecords(ctx context.Context, user string, limit int) ([]treasury.TransactionRecord, error) {
	rows, err := t.tx.Query(ctx, `
        SELECT `+recordColumns+`
        FROM transaction_records
        WHERE $1 = '' OR user_id = $1
        ORDER BY seq DESC
        LIMIT $2
    `, user, limit)
	if err != nil {
		return nil, fmt.Errorf("list transaction records: %w", err)
	}
	defer rows.Close()

	recs := make([]treasury.TransactionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transaction records: %w", err)
	}
	return recs, nil
}

func (t *pgTx) Balance(ctx context.Context, account string) (uint64, error) {
	var balance string
	err := t.tx.QueryRow(ctx, "SELECT balance::text FROM token_accounts WHERE owner = $1", account).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("load balance: %w", err)
	}
	return parseNum(balance)
}

// Transfer debits from and credits to inside the unit of work. The debit is
// conditional on cover; the credit relies on the balance range check.
func (t *pgTx) Transfer(ctx context.Context, from, to string, amount uint64) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE token_accounts
        SET balance = balance - $1::text::numeric
        WHERE owner = $2 AND balance >= $1::text::numeric
    `, num(amount), from)
	if err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return treasury.ErrInsufficientBalance
	}

	_, err = t.tx.Exec(ctx, `
        INSERT INTO token_accounts (owner, balance)
        VALUES ($1, $2::text::numeric)
        ON CONFLICT (owner) DO UPDATE SET balance = token_accounts.balance + EXCLUDED.balance
    `, to, num(amount))
	if err != nil {
		if isCheckViolation(err) {
			return treasury.ErrAccountOverflow
		}
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}
