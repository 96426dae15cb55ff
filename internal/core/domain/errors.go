package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery              = errors.New("empty query")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrInvalidInput            = errors.New("invalid input")
	ErrTemporary               = errors.New("temporary failure")
	ErrTraceNotFound           = errors.New("trace not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Unavailable marks a failed collaborator call. Transport-level temporary
// errors keep their kind so both checks match.
func Unavailable(operation string, err error) error {
	if err == nil {
		return nil
	}
	if IsKind(err, ErrCollaboratorUnavailable) {
		return err
	}
	return WrapError(ErrCollaboratorUnavailable, operation, err)
}
