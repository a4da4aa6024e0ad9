package flow

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrArgument reports a nil or empty argument.
	ErrArgument = errors.New("invalid argument")
	// ErrInvalidState reports an operation that the pipeline state does not allow.
	ErrInvalidState = errors.New("invalid pipeline state")
	// ErrLinkTypeMismatch reports adjacent stages whose types cannot be linked.
	ErrLinkTypeMismatch = errors.New("stage types cannot be linked")
	// ErrCancelled is returned by a Runner whose context was cancelled.
	ErrCancelled = errors.New("pipeline execution cancelled")
)

// BranchError wraps the build failure of a branch pipeline.
type BranchError struct {
	BranchID string
	Err      error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("branch %q: %v", e.BranchID, e.Err)
}

func (e *BranchError) Unwrap() error {
	return e.Err
}

// Path lists the ids of the nested branches, outermost first, down to the
// branch that failed.
func (e *BranchError) Path() []string {
	var path []string
	for cur := e; cur != nil; {
		path = append(path, cur.BranchID)
		var next *BranchError
		if !errors.As(cur.Err, &next) {
			break
		}
		cur = next
	}
	return path
}

// IsCancellation reports whether err comes from a cancelled or expired context.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Errors flattens errors joined with errors.Join or multiple %w verbs.
func Errors(err error) []error {
	if err == nil {
		return []error{}
	}

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}

	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, Errors(e)...)
	}
	return out
}
