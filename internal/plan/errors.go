package plan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("plan not found")
	ErrVersionConflict = errors.New("plan version conflict")
	ErrBlocked         = errors.New("move blocked by policy")
)

// ValidationError rejects input before anything is read or written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that the plan changed underneath the caller.
type ConflictError struct {
	Known   int64
	Current int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("plan changed: you have version %d, current version is %d", e.Known, e.Current)
}

func (e *ConflictError) Unwrap() error { return ErrVersionConflict }

// BlockedError carries the warnings that policy refused to accept.
type BlockedError struct {
	Codes []string
}

func (e *BlockedError) Error() string {
	return "move blocked by " + strings.Join(e.Codes, ", ")
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }
