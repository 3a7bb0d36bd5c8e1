// Package audit streams committed transaction records to downstream
// consumers. Publishing happens after commit; a failed publish never undoes a
// ledger change.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

// Event is the wire form of a TransactionRecord.
type Event struct {
	ID              string    `json:"id"`
	User            string    `json:"user"`
	Amount          uint64    `json:"amount"`
	Timestamp       time.Time `json:"timestamp"`
	TransactionType string    `json:"transaction_type"`
	WithdrawalType  string    `json:"withdrawal_type,omitempty"`
	AuthorizationID string    `json:"authorization_id,omitempty"`
}

func NewEvent(rec treasury.TransactionRecord) Event {
	return Event{
		ID:              rec.ID,
		User:            rec.User,
		Amount:          rec.Amount,
		Timestamp:       rec.Timestamp,
		TransactionType: string(rec.TransactionType),
		WithdrawalType:  string(rec.WithdrawalType),
		AuthorizationID: rec.AuthorizationID,
	}
}

func encode(rec treasury.TransactionRecord) ([]byte, error) {
	payload, err := json.Marshal(NewEvent(rec))
	if err != nil {
		return nil, fmt.Errorf("marshal audit event: %w", err)
	}
	return payload, nil
}

// Multi fans a record out to every publisher and joins their errors.
type Multi []service.RecordPublisher

var _ service.RecordPublisher = Multi(nil)

func (m Multi) Publish(ctx context.Context, rec treasury.TransactionRecord) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
