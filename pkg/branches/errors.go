package branches

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrDuplicateBranch = errors.New("branch already exists")
	ErrBranchNotFound  = errors.New("branch not found")
	ErrModelInvocation = errors.New("model invocation failed")
	ErrInvalidInput    = errors.New("invalid input")
)

// DuplicateBranchError reports a creation attempt with an id that is already registered.
type DuplicateBranchError struct {
	BranchID string
}

func (e *DuplicateBranchError) Error() string {
	if e == nil {
		return ErrDuplicateBranch.Error()
	}
	return fmt.Sprintf("%s: %q", ErrDuplicateBranch, e.BranchID)
}

func (e *DuplicateBranchError) Is(target error) bool { return target == ErrDuplicateBranch }

// BranchNotFoundError reports an operation on an unknown branch. Parent is set when the
// unknown id was given as the parent of a new branch.
type BranchNotFoundError struct {
	BranchID string
	Parent   bool
}

func (e *BranchNotFoundError) Error() string {
	if e == nil {
		return ErrBranchNotFound.Error()
	}
	if e.Parent {
		return fmt.Sprintf("parent %s: %q", ErrBranchNotFound, e.BranchID)
	}
	return fmt.Sprintf("%s: %q", ErrBranchNotFound, e.BranchID)
}

func (e *BranchNotFoundError) Is(target error) bool { return target == ErrBranchNotFound }

// ModelInvocationError wraps a failure of the model collaborator.
type ModelInvocationError struct {
	BranchID string
	Err      error
}

func (e *ModelInvocationError) Error() string {
	if e == nil {
		return ErrModelInvocation.Error()
	}
	return fmt.Sprintf("%s on branch %q: %v", ErrModelInvocation, e.BranchID, e.Err)
}

func (e *ModelInvocationError) Is(target error) bool { return target == ErrModelInvocation }

func (e *ModelInvocationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InvalidInputError reports a missing or malformed argument.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e == nil {
		return ErrInvalidInput.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", ErrInvalidInput, e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }
