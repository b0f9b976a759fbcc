package core

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors. The typed errors below match them through errors.Is.
var (
	ErrContextNotFound = errors.New("context not found")
	ErrContextInactive = errors.New("context is not active")
	ErrValidation      = errors.New("observation batch failed validation")
	ErrIdentity        = errors.New("field identity could not be resolved")
	ErrPersistence     = errors.New("store operation failed")
	ErrQuery           = errors.New("invalid query")
	ErrFieldNotFound   = errors.New("field not found")
	ErrReadOnly        = errors.New("catalog is in read-only mode")
)

// ContextNotFoundError is returned when a context id is not registered.
type ContextNotFoundError struct {
	ContextID string
}

func (e *ContextNotFoundError) Error() string {
	return fmt.Sprintf("context %q not found", e.ContextID)
}

func (e *ContextNotFoundError) Is(target error) bool { return target == ErrContextNotFound }

// ContextInactiveError is returned when a context does not accept observations.
type ContextInactiveError struct {
	ContextID string
}

func (e *ContextInactiveError) Error() string {
	return fmt.Sprintf("context %q is not active", e.ContextID)
}

func (e *ContextInactiveError) Is(target error) bool { return target == ErrContextInactive }

// ObservationError describes everything wrong with one observation of a batch.
type ObservationError struct {
	Index     int      `json:"index"`
	FieldPath string   `json:"fieldPath"`
	Problems  []string `json:"problems"`
}

// ValidationError lists every offending observation of a rejected batch.
type ValidationError struct {
	ContextID    string
	Observations []ObservationError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Observations))
	for _, o := range e.Observations {
		parts = append(parts, fmt.Sprintf("observation %d (%s): %s", o.Index, o.FieldPath, strings.Join(o.Problems, "; ")))
	}
	return fmt.Sprintf("%d invalid observation(s) for context %q: %s", len(e.Observations), e.ContextID, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IdentityError means required metadata could not produce an identity. The
// merge engine validates before resolving, so seeing one outside validation
// is a programming error.
type IdentityError struct {
	ContextID       string
	MissingKeys     []string
	ConflictingKeys []string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("context %q: %s", e.ContextID, e.Detail())
}

// Detail describes the offending keys without the context prefix.
func (e *IdentityError) Detail() string {
	var parts []string
	if len(e.MissingKeys) > 0 {
		parts = append(parts, "missing required metadata: "+strings.Join(e.MissingKeys, ", "))
	}
	if len(e.ConflictingKeys) > 0 {
		parts = append(parts, "conflicting metadata keys: "+strings.Join(e.ConflictingKeys, ", "))
	}
	return strings.Join(parts, "; ")
}

func (e *IdentityError) Is(target error) bool { return target == ErrIdentity }

// PersistenceError wraps a store failure. Nothing is assumed committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// QueryError reports a malformed search parameter.
type QueryError struct {
	Param  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

func (e *QueryError) Is(target error) bool { return target == ErrQuery }

func persistenceErr(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
