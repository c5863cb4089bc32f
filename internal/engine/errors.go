package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a batch the engine refused to apply.
//
// Runtime errors include:
//   - Stale generation: the batch was produced for a superseded query
//   - Stopped: the engine loop exited before the batch was applied
//   - Invalid batch: unknown batch kind
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Source names the producer of the batch (fetch purpose or subscription id).
	Source string

	// Generation is the generation stamped on the batch.
	Generation int64
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStaleGeneration indicates the batch's generation was superseded.
	ErrCodeStaleGeneration RuntimeErrorCode = "STALE_GENERATION"

	// ErrCodeStopped indicates the engine is no longer running.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodeInvalidBatch indicates a batch the engine cannot interpret.
	ErrCodeInvalidBatch RuntimeErrorCode = "INVALID_BATCH"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: %s (source=%s, generation=%d)", e.Code, e.Message, e.Source, e.Generation)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStaleError returns true if the batch was discarded as superseded.
// Uses errors.As to handle wrapped errors.
func IsStaleError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStaleGeneration
	}
	return false
}

// IsStoppedError returns true if the engine stopped before applying the batch.
func IsStoppedError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStopped
	}
	return false
}

// NewStaleError creates a RuntimeError for a superseded batch.
func NewStaleError(source string, generation, current int64) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeStaleGeneration,
		Message:    fmt.Sprintf("batch generation superseded (current %d)", current),
		Source:     source,
		Generation: generation,
	}
}

func newStoppedError(b Batch) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeStopped,
		Message:    "engine stopped before the batch was applied",
		Source:     b.Source,
		Generation: b.Generation,
	}
}
