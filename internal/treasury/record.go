package treasury

import "time"

type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
)

// TransactionRecord is the append-only audit entry of a completed deposit or
// withdrawal.
type TransactionRecord struct {
	ID              string
	User            string
	Amount          uint64
	Timestamp       time.Time
	TransactionType TransactionType
	WithdrawalType  WithdrawalType // withdrawals only
	AuthorizationID string         // withdrawals only
}

func NewDepositRecord(id, user string, amount uint64, now time.Time) TransactionRecord {
	return TransactionRecord{
		ID:              id,
		User:            user,
		Amount:          amount,
		Timestamp:       now,
		TransactionType: TransactionDeposit,
	}
}

func NewWithdrawalRecord(id string, a Authorization, now time.Time) TransactionRecord {
	return TransactionRecord{
		ID:              id,
		User:            a.User,
		Amount:          a.Amount,
		Timestamp:       now,
		TransactionType: TransactionWithdrawal,
		WithdrawalType:  a.WithdrawalType,
		AuthorizationID: a.ID,
	}
}
