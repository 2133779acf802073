package schemas

import (
	"errors"
	"fmt"
)

// TransportError covers device and network I/O failures: the WebDriver
// session dropping, HTTP timeouts, unreachable endpoints. Transport errors
// are retryable by policy.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ModelError covers LLM-side failures: API errors, malformed or truncated
// responses, schema violations in the returned plan.
type ModelError struct {
	Model string
	Op    string
	Err   error
}

func (e *ModelError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("model: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("model %s: %s: %v", e.Model, e.Op, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// ValidationFailure reports a plan that failed semantic validation before
// execution, or a post-action check that did not pass.
type ValidationFailure struct {
	ActionID ActionID
	Reason   string
}

func (e *ValidationFailure) Error() string {
	if e.ActionID == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.ActionID, e.Reason)
}

// ConfigError reports an invalid or incomplete configuration value detected
// at load time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// BudgetExhaustion reports a spent quota. Which budget is named by Kind:
// "likes", "passes", "messages", "judge_calls", "cycles".
type BudgetExhaustion struct {
	Kind  string
	Limit int
}

func (e *BudgetExhaustion) Error() string {
	return fmt.Sprintf("budget exhausted: %s (limit %d)", e.Kind, e.Limit)
}

// IsTransport reports whether any error in err's chain is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsBudgetExhaustion reports whether any error in err's chain is a
// BudgetExhaustion.
func IsBudgetExhaustion(err error) bool {
	var be *BudgetExhaustion
	return errors.As(err, &be)
}
