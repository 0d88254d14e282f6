package api

const (
	ErrInvalidJSON    = "invalid_json"
	ErrValidation     = "invalid_request"
	ErrNotFound       = "saga_not_found"
	ErrNotRecoverable = "saga_not_recoverable"
	ErrInternal       = "internal_error"
)

type StartResponse struct {
	SagaID string `json:"sagaId"`
	Status string `json:"status"`
}

type RecoveryResponse struct {
	SagaID  string `json:"sagaId"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
