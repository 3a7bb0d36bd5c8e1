package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

// Amounts are NUMERIC(20,0) so the full uint64 range fits. They travel as
// decimal text: selected with ::text and bound through $n::text::numeric.

const treasuryColumns = `authority, vault, total_deposits::text, total_withdrawals::text,
	withdrawal_limit_per_day::text, min_treasury_balance::text, is_active, created_at, last_update, version`

const authorizationColumns = `id, user_id, amount::text, withdrawal_type, authorized_by,
	authorized_at, expires_at, executed_at`

const recordColumns = `id, user_id, amount::text, transaction_type, withdrawal_type,
	authorization_id, created_at`

func num(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseNum(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("numeric %q out of range: %w", s, err)
	}
	return v, nil
}

func scanTreasury(row pgx.Row) (treasury.Treasury, error) {
	var t treasury.Treasury
	var deposits, withdrawals, limit, minBalance string
	var version int64
	err := row.Scan(
		&t.Authority,
		&t.Vault,
		&deposits,
		&withdrawals,
		&limit,
		&minBalance,
		&t.IsActive,
		&t.CreatedAt,
		&t.LastUpdate,
		&version,
	)
	if err != nil {
		return treasury.Treasury{}, err
	}
	t.Version = uint64(version)

	for _, f := range []struct {
		src string
		dst *uint64
	}{
		{deposits, &t.TotalDeposits},
		{withdrawals, &t.TotalWithdrawals},
		{limit, &t.WithdrawalLimitPerDay},
		{minBalance, &t.MinTreasuryBalance},
	} {
		if *f.dst, err = parseNum(f.src); err != nil {
			return treasury.Treasury{}, err
		}
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.LastUpdate = t.LastUpdate.UTC()
	return t, nil
}

func scanAuthorization(row pgx.Row) (treasury.Authorization, error) {
	var (
		a          treasury.Authorization
		amount     string
		wtype      string
		executedAt *time.Time
	)
	err := row.Scan(
		&a.ID,
		&a.User,
		&amount,
		&wtype,
		&a.AuthorizedBy,
		&a.AuthorizedAt,
		&a.ExpiresAt,
		&executedAt,
	)
	if err != nil {
		return treasury.Authorization{}, err
	}

	if a.Amount, err = parseNum(amount); err != nil {
		return treasury.Authorization{}, err
	}
	a.WithdrawalType = treasury.WithdrawalType(wtype)
	a.AuthorizedAt = a.AuthorizedAt.UTC()
	a.ExpiresAt = a.ExpiresAt.UTC()
	a.State = treasury.Pending{}
	if executedAt != nil {
		a.State = treasury.Executed{At: executedAt.UTC()}
	}
	return a, nil
}

func scanRecord(row pgx.Row) (treasury.TransactionRecord, error) {
	var (
		rec            treasury.TransactionRecord
		amount, txType string
		wtype, authzID *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.User,
		&amount,
		&txType,
		&wtype,
		&authzID,
		&rec.Timestamp,
	)
	if err != nil {
		return treasury.TransactionRecord{}, err
	}

	if rec.Amount, err = parseNum(amount); err != nil {
		return treasury.TransactionRecord{}, err
	}
	rec.TransactionType = treasury.TransactionType(txType)
	if wtype != nil {
		rec.WithdrawalType = treasury.WithdrawalType(*wtype)
	}
	if authzID != nil {
		rec.AuthorizationID = *authzID
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
