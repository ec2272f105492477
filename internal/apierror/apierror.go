// Package apierror holds the JSON envelope of every 4xx/5xx response. Handlers
// never write raw errors: database and driver messages stay in the logs.
package apierror

// Stable machine-readable codes for errors clients are expected to branch on.
const (
	CodeInsufficientQuantity = "insufficient_quantity"
	CodeCycle                = "cycle"
	CodeTraceTooLarge        = "trace_too_large"
	CodeNotVisible           = "not_visible"
	CodeValidation           = "validation"
)

// APIError is the canonical error envelope.
type APIError struct {
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// WithCode returns an envelope carrying one of the Code constants.
func WithCode(code, msg string) *APIError {
	return &APIError{Code: code, Detail: msg}
}

// ValidationError lists the failing field and validator tag pairs.
type ValidationError struct {
	Code   string            `json:"code"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Code: CodeValidation, Detail: "request validation failed", Fields: fields}
}
