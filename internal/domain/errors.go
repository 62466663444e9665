package domain

import (
	"errors"
	"fmt"
)

// Skip sentinels. A slot skipped for one of these reasons is logged as a pass
// and re-evaluated on the next run.
var (
	ErrNoProducts = errors.New("no products for slot")
	ErrSingleYear = errors.New("single year of data, no baseline")
)

// MissingProductError reports an expected input that is absent.
type MissingProductError struct {
	Product string
	Path    string
}

func (e *MissingProductError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("missing product %s", e.Product)
	}
	return fmt.Sprintf("missing product %s: %s", e.Product, e.Path)
}

// CorruptProductError reports an input that exists but cannot be decoded.
type CorruptProductError struct {
	Path string
	Err  error
}

func (e *CorruptProductError) Error() string {
	return fmt.Sprintf("corrupt product %s: %v", e.Path, e.Err)
}

func (e *CorruptProductError) Unwrap() error { return e.Err }

// MissingComponentError reports a fused index whose input is absent.
type MissingComponentError struct {
	Index     string
	Component string
	Slot      Slot
}

func (e *MissingComponentError) Error() string {
	return fmt.Sprintf("%s %s: missing component %s", e.Index, e.Slot, e.Component)
}

// PeriodConfigError reports an unusable processing window. It aborts the run.
type PeriodConfigError struct {
	Reason string
}

func (e *PeriodConfigError) Error() string {
	return "period config: " + e.Reason
}

// ConcurrentWriteConflict reports an output that could not be replaced even
// after removing the previous file.
type ConcurrentWriteConflict struct {
	Path string
	Err  error
}

func (e *ConcurrentWriteConflict) Error() string {
	return fmt.Sprintf("concurrent write conflict on %s: %v", e.Path, e.Err)
}

func (e *ConcurrentWriteConflict) Unwrap() error { return e.Err }

// ErrorKind classifies failures at collaborator boundaries for retry policy.
type ErrorKind int

const (
	Permanent ErrorKind = iota
	Transient
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// CollectorError wraps a collaborator failure with its retry classification.
type CollectorError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *CollectorError) Unwrap() error { return e.Err }

// KindOf returns the classification of err. Unclassified errors are permanent.
func KindOf(err error) ErrorKind {
	var ce *CollectorError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Permanent
}

// IsSkip reports whether err is a skip sentinel rather than a failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrNoProducts) || errors.Is(err, ErrSingleYear)
}

// IsSlotScoped reports whether err only invalidates the current slot.
func IsSlotScoped(err error) bool {
	var mp *MissingProductError
	var cp *CorruptProductError
	var mc *MissingComponentError
	return IsSkip(err) || errors.As(err, &mp) || errors.As(err, &cp) || errors.As(err, &mc)
}
