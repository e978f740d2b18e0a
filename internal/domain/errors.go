package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is reports whether target is an EngineError with the same code, so wrapped
// variants still match their sentinel through errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- World / Runner errors (-32010 to -32039) ----

var (
	ErrWorldNotFound        = &EngineError{Code: -32010, Message: "world not found"}
	ErrRunnerAlreadyRunning = &EngineError{Code: -32011, Message: "simulation already running"}
	ErrRunnerNotRunning     = &EngineError{Code: -32012, Message: "simulation not running"}
	ErrOptimisticLock       = &EngineError{Code: -32013, Message: "optimistic lock conflict: world was modified concurrently"}
	ErrInvalidWorldStatus   = &EngineError{Code: -32014, Message: "invalid world status"}
	ErrWorldNotReady        = &EngineError{Code: -32015, Message: "world is still generating"}
	ErrInvalidSeed          = &EngineError{Code: -32016, Message: "seed prompt is required"}
	ErrInvalidEvent         = &EngineError{Code: -32017, Message: "event description is required"}
)

// ---- Consensus errors (-32040 to -32069) ----

var (
	ErrClaimNotPending = &EngineError{Code: -32040, Message: "no pending claim matches"}
	ErrInvalidVote     = &EngineError{Code: -32041, Message: "claim, voter and faction are required"}
)

// ---- Generation errors (-32070 to -32099) ----

var (
	ErrGenerationFailed      = &EngineError{Code: -32070, Message: "content generation failed"}
	ErrGenerationUnavailable = &EngineError{Code: -32071, Message: "content generation temporarily disabled"}
	ErrGenerationMalformed   = &EngineError{Code: -32072, Message: "content generation returned malformed output"}
)

// ---- Store / Config errors (-32130 to -32159) ----

var (
	ErrStoreInit       = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery      = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite      = &EngineError{Code: -32132, Message: "store write failed"}
	ErrSchemaMigration = &EngineError{Code: -32133, Message: "schema migration failed"}
	ErrConfigInvalid   = &EngineError{Code: -32136, Message: "invalid configuration"}
)
