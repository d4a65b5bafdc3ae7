package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by services and adapters.
var (
	// ErrConfigInvalid rejects a draft at publish time; it never reaches the
	// scoring path.
	ErrConfigInvalid = errors.New("algorithm config invalid")

	// ErrNoActiveConfig means no version has ever been published.
	ErrNoActiveConfig = errors.New("no active algorithm config")

	// ErrAlreadyAssigned is the concurrent-accept conflict: exactly one
	// accept wins per task, every other caller observes this.
	ErrAlreadyAssigned = errors.New("task already assigned")

	// ErrTaskTerminal rejects transitions on a task that already reached an
	// absorbing state.
	ErrTaskTerminal = errors.New("task escalation already terminal")

	ErrTaskNotFound  = errors.New("task not found in escalation pipeline")
	ErrOfferNotFound = errors.New("offer not found")
)

// CandidateSkippedError records why one artist was dropped from a pool.
// Skipping a candidate is never fatal to the task.
type CandidateSkippedError struct {
	ArtistID string
	Err      error
}

func (e *CandidateSkippedError) Error() string {
	return fmt.Sprintf("candidate %s skipped: %v", e.ArtistID, e.Err)
}

func (e *CandidateSkippedError) Unwrap() error {
	return e.Err
}
