package types

// ErrorCode identifies an API failure independently of its HTTP status.
type ErrorCode string

const (
	CodeInvalidBody        ErrorCode = "INVALID_BODY"
	CodeInvalidAction      ErrorCode = "INVALID_ACTION"
	CodeCommandRejected    ErrorCode = "COMMAND_REJECTED"
	CodeCommandQueueFull   ErrorCode = "COMMAND_QUEUE_FULL"
	CodeUnknownCounter     ErrorCode = "UNKNOWN_COUNTER"
	CodeCounterStore       ErrorCode = "COUNTER_STORE"
	CodeAuthDisabled       ErrorCode = "AUTH_DISABLED"
	CodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
)

type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// ErrorResponse is the body of every failed REST call.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func NewErrorResponse(code ErrorCode, message string, details any) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}}
}
