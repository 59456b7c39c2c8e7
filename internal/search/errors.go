package search

import (
	"errors"
	"fmt"
	"strings"

	"pmuplace/domain/placement"
)

var (
	// ErrFit marks a predictor combination the oracle could not identify
	ErrFit = errors.New("model fit failed")
	// ErrNoViableCandidate is matched by every NoViableCandidateError
	ErrNoViableCandidate = errors.New("no viable candidate")
	// ErrConfiguration is matched by every ConfigurationError
	ErrConfiguration = errors.New("invalid search configuration")
	// ErrExhausted means no eligible candidate is left to place
	ErrExhausted = errors.New("eligible candidates exhausted")
	// ErrTerminal is returned when a step is requested on a finished search
	ErrTerminal = errors.New("search already terminal")
	// ErrNotInitialized is returned when the driver has no config or pool
	ErrNotInitialized = errors.New("search driver not initialized")
)

// FitError is a per-candidate failure: the candidate is dropped from the
// current step's ranking
type FitError struct {
	Predictors []placement.Variable
	Cause      error
}

// NewFitError wraps an oracle failure for a predictor list
func NewFitError(predictors []placement.Variable, cause error) *FitError {
	return &FitError{Predictors: predictors, Cause: cause}
}

func (e *FitError) Error() string {
	names := make([]string, len(e.Predictors))
	for i, p := range e.Predictors {
		names[i] = string(p)
	}
	if e.Cause == nil {
		return fmt.Sprintf("fit [%s] failed", strings.Join(names, ","))
	}
	return fmt.Sprintf("fit [%s] failed: %v", strings.Join(names, ","), e.Cause)
}

func (e *FitError) Unwrap() error { return e.Cause }

func (e *FitError) Is(target error) bool { return target == ErrFit }

// NoViableCandidateError means every candidate of one selection step failed
type NoViableCandidateError struct {
	Operation placement.Move
	Attempted int
	Causes    []error
}

func (e *NoViableCandidateError) Error() string {
	msg := fmt.Sprintf("no viable candidate for %s: all %d fits failed", e.Operation, e.Attempted)
	if len(e.Causes) > 0 {
		msg += fmt.Sprintf(" (first: %v)", e.Causes[0])
	}
	return msg
}

func (e *NoViableCandidateError) Is(target error) bool { return target == ErrNoViableCandidate }

// ConfigurationError is raised by Initialize for an unusable config
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
