package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

// decodeJSON reads exactly one JSON value with no unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

var errorStatus = map[treasury.Code]int{
	treasury.CodeTreasuryInactive:          http.StatusConflict,
	treasury.CodeInvalidAmount:             http.StatusBadRequest,
	treasury.CodeInsufficientTreasuryFunds: http.StatusConflict,
	treasury.CodeUnauthorizedWithdrawal:    http.StatusForbidden,
	treasury.CodeUnauthorizedUser:          http.StatusForbidden,
	treasury.CodeUnauthorizedAuthority:     http.StatusForbidden,
	treasury.CodeWithdrawalAlreadyExecuted: http.StatusConflict,
	treasury.CodeWithdrawalExpired:         http.StatusGone,
	treasury.CodeMathOverflow:              http.StatusUnprocessableEntity,
	treasury.CodeTreasuryExists:            http.StatusConflict,
	treasury.CodeTreasuryNotFound:          http.StatusNotFound,
	treasury.CodeAuthorizationNotFound:     http.StatusNotFound,
	treasury.CodeInvalidUser:               http.StatusBadRequest,
	treasury.CodeInvalidAuthority:          http.StatusBadRequest,
	treasury.CodeInvalidWithdrawalType:     http.StatusBadRequest,
	treasury.CodeInsufficientBalance:       http.StatusConflict,
	treasury.CodeAccountOverflow:           http.StatusUnprocessableEntity,
}

// classify maps an operation error to its HTTP status and public code.
// Anything that is not a treasury rejection is an internal error.
func classify(err error) (int, string) {
	var terr *treasury.Error
	if errors.As(err, &terr) {
		if status, ok := errorStatus[terr.Code]; ok {
			return status, string(terr.Code)
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
