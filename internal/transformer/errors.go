package transformer

import (
	"errors"
	"fmt"
)

// Phase names a pipeline phase in errors and logs.
type Phase string

const (
	PhaseRequestIn   Phase = "request_in"
	PhaseAuth        Phase = "auth"
	PhaseDispatch    Phase = "dispatch"
	PhaseResponseOut Phase = "response_out"
)

// StageInputError reports a body the stage cannot operate on.
type StageInputError struct {
	Transformer string
	Reason      string
	Err         error
}

func (e *StageInputError) Error() string {
	msg := fmt.Sprintf("transformer %s: invalid input: %s", e.Transformer, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageInputError) Unwrap() error { return e.Err }

// AuthResolutionError reports missing or unusable credential material.
type AuthResolutionError struct {
	Transformer string
	Provider    string
	Reason      string
	Err         error
}

func (e *AuthResolutionError) Error() string {
	msg := fmt.Sprintf("transformer %s: auth for provider %q: %s", e.Transformer, e.Provider, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthResolutionError) Unwrap() error { return e.Err }

// UpstreamDispatchError reports a failure of the upstream HTTP call itself.
// Dispatchers return it; the pipeline passes it through untouched.
type UpstreamDispatchError struct {
	Method string
	URL    string
	Err    error
}

func (e *UpstreamDispatchError) Error() string {
	return fmt.Sprintf("upstream %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *UpstreamDispatchError) Unwrap() error { return e.Err }

// ResponseNormalizationError reports an upstream payload a response stage
// cannot continue without.
type ResponseNormalizationError struct {
	Transformer string
	StatusCode  int
	Reason      string
	Err         error
}

func (e *ResponseNormalizationError) Error() string {
	msg := fmt.Sprintf("transformer %s: normalize response (status %d): %s", e.Transformer, e.StatusCode, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResponseNormalizationError) Unwrap() error { return e.Err }

// TimeoutError reports that the call deadline expired while a stage was running.
type TimeoutError struct {
	Phase       Phase
	Transformer string
	Err         error
}

func (e *TimeoutError) Error() string {
	if e.Transformer == "" {
		return fmt.Sprintf("pipeline timed out in %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("pipeline timed out in %s stage %s: %v", e.Phase, e.Transformer, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StageError wraps any other failure of a stage with its position.
type StageError struct {
	Phase       Phase
	Transformer string
	Err         error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage %s: %v", e.Phase, e.Transformer, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func IsStageInputError(err error) bool {
	var e *StageInputError
	return errors.As(err, &e)
}

func IsAuthResolutionError(err error) bool {
	var e *AuthResolutionError
	return errors.As(err, &e)
}

func IsUpstreamDispatchError(err error) bool {
	var e *UpstreamDispatchError
	return errors.As(err, &e)
}

func IsResponseNormalizationError(err error) bool {
	var e *ResponseNormalizationError
	return errors.As(err, &e)
}

func IsTimeoutError(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}
