package contracts

import "fmt"

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Persistence outcomes recorded on a success envelope. A skipped write is
// not a failure of the invocation.
const (
	PersistencePersisted = "persisted"
	PersistenceSkipped   = "skipped"
)

// Error codes carried on error envelopes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodePersistenceError = "PERSISTENCE_ERROR"
	CodeProcessingError  = "PROCESSING_ERROR"
)

// InvocationContext is the optional caller-supplied situation around an
// objective.
type InvocationContext struct {
	MaxDepth           *int     `json:"max_depth,omitempty"`
	Constraints        []string `json:"constraints,omitempty"`
	ExistingComponents []string `json:"existing_components,omitempty"`
}

// InvocationConfig tunes one invocation.
type InvocationConfig struct {
	MaxSubObjectives  *int   `json:"max_sub_objectives,omitempty"`
	TargetGranularity string `json:"target_granularity,omitempty"`
}

// InvocationInput is the record a caller submits to an agent.
type InvocationInput struct {
	Objective    string             `json:"objective"`
	Context      *InvocationContext `json:"context,omitempty"`
	Config       *InvocationConfig  `json:"config,omitempty"`
	ExecutionRef string             `json:"execution_ref,omitempty"`
}

// PersistenceStatus reports what happened to the best-effort write.
type PersistenceStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SuccessEnvelope is the record returned on a completed invocation.
type SuccessEnvelope struct {
	Status            string            `json:"status"`
	Event             DecisionEvent     `json:"event"`
	PersistenceStatus PersistenceStatus `json:"persistence_status"`
}

// ErrorEnvelope is the record returned when an invocation cannot produce
// a result. No partial results ride along.
type ErrorEnvelope struct {
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	ExecutionRef string `json:"execution_ref"`
}

// NewSuccessEnvelope wraps a decision event and its persistence outcome.
func NewSuccessEnvelope(event DecisionEvent, ps PersistenceStatus) SuccessEnvelope {
	return SuccessEnvelope{
		Status:            StatusSuccess,
		Event:             event,
		PersistenceStatus: ps,
	}
}

// NewErrorEnvelope builds the error record for a failed invocation.
func NewErrorEnvelope(code, message, executionRef string) ErrorEnvelope {
	return ErrorEnvelope{
		Status:       StatusError,
		ErrorCode:    code,
		ErrorMessage: message,
		ExecutionRef: executionRef,
	}
}

// AgentError is a classified invocation failure.
type AgentError struct {
	Code    string
	Message string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError builds a VALIDATION_FAILED error.
func ValidationError(format string, args ...interface{}) *AgentError {
	return &AgentError{Code: CodeValidationFailed, Message: fmt.Sprintf(format, args...)}
}

// ProcessingError builds a PROCESSING_ERROR.
func ProcessingError(format string, args ...interface{}) *AgentError {
	return &AgentError{Code: CodeProcessingError, Message: fmt.Sprintf(format, args...)}
}

// PersistenceError builds a PERSISTENCE_ERROR. Invocation-path persistence
// failures are absorbed into PersistenceStatus instead; this code is for
// store failures on read paths.
func PersistenceError(format string, args ...interface{}) *AgentError {
	return &AgentError{Code: CodePersistenceError, Message: fmt.Sprintf(format, args...)}
}
