package treasury

// Code identifies a business-rule rejection. Codes are stable and safe to
// expose to callers.
type Code string

const (
	CodeTreasuryInactive          Code = "treasury_inactive"
	CodeInvalidAmount             Code = "invalid_amount"
	CodeInsufficientTreasuryFunds Code = "insufficient_treasury_funds"
	CodeUnauthorizedWithdrawal    Code = "unauthorized_withdrawal"
	CodeUnauthorizedUser          Code = "unauthorized_user"
	CodeUnauthorizedAuthority     Code = "unauthorized_authority"
	CodeWithdrawalAlreadyExecuted Code = "withdrawal_already_executed"
	CodeWithdrawalExpired         Code = "withdrawal_expired"
	CodeMathOverflow              Code = "math_overflow"

	CodeTreasuryExists        Code = "treasury_exists"
	CodeTreasuryNotFound      Code = "treasury_not_found"
	CodeAuthorizationNotFound Code = "authorization_not_found"
	CodeInvalidUser           Code = "invalid_user"
	CodeInvalidAuthority      Code = "invalid_authority"
	CodeInvalidWithdrawalType Code = "invalid_withdrawal_type"
	CodeInsufficientBalance   Code = "insufficient_balance"
	CodeAccountOverflow       Code = "account_overflow"
)

// Error is a terminal rejection. None of them are transient.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrTreasuryInactive          = &Error{Code: CodeTreasuryInactive, Message: "treasury is currently inactive"}
	ErrInvalidAmount             = &Error{Code: CodeInvalidAmount, Message: "invalid amount specified"}
	ErrInsufficientTreasuryFunds = &Error{Code: CodeInsufficientTreasuryFunds, Message: "insufficient treasury funds for withdrawal"}
	ErrUnauthorizedWithdrawal    = &Error{Code: CodeUnauthorizedWithdrawal, Message: "unauthorized withdrawal attempt"}
	ErrUnauthorizedUser          = &Error{Code: CodeUnauthorizedUser, Message: "unauthorized user for this withdrawal"}
	ErrUnauthorizedAuthority     = &Error{Code: CodeUnauthorizedAuthority, Message: "unauthorized authority"}
	ErrWithdrawalAlreadyExecuted = &Error{Code: CodeWithdrawalAlreadyExecuted, Message: "withdrawal has already been executed"}
	ErrWithdrawalExpired         = &Error{Code: CodeWithdrawalExpired, Message: "withdrawal authorization has expired"}
	ErrMathOverflow              = &Error{Code: CodeMathOverflow, Message: "mathematical overflow occurred"}

	ErrTreasuryExists        = &Error{Code: CodeTreasuryExists, Message: "treasury already initialized"}
	ErrTreasuryNotFound      = &Error{Code: CodeTreasuryNotFound, Message: "treasury not initialized"}
	ErrAuthorizationNotFound = &Error{Code: CodeAuthorizationNotFound, Message: "withdrawal authorization not found"}
	ErrInvalidUser           = &Error{Code: CodeInvalidUser, Message: "invalid user specified"}
	ErrInvalidAuthority      = &Error{Code: CodeInvalidAuthority, Message: "invalid treasury authority"}
	ErrInvalidWithdrawalType = &Error{Code: CodeInvalidWithdrawalType, Message: "invalid withdrawal type"}

	// Transfer gateway failures.
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance, Message: "insufficient balance in source account"}
	ErrAccountOverflow     = &Error{Code: CodeAccountOverflow, Message: "destination account balance would overflow"}
)
