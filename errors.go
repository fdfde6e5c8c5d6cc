package golshbox

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by matrix, metric, topk, scanner, lshindex and
// benchmark operations.
var (
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index or matrix dimension.
	ErrDimensionMismatch = errors.New("golshbox: dimension mismatch")

	// ErrNotTrained is returned by a query/hash/save call on a family
	// that requires training (sh, itq, dbq, kdbq) before it has been trained.
	ErrNotTrained = errors.New("golshbox: index not trained")

	// ErrEmptyIndex is returned when an operation requires at least one
	// row and the matrix or index holds none.
	ErrEmptyIndex = errors.New("golshbox: index is empty")

	// ErrInvalidFormat is returned when a binary or text file does not
	// match the expected layout.
	ErrInvalidFormat = errors.New("golshbox: invalid file format")

	// ErrUnknownMetric is returned when constructing a metric with an
	// unrecognized Kind.
	ErrUnknownMetric = errors.New("golshbox: unknown metric kind")

	// ErrUnknownDistribution is returned when constructing a psd family
	// with an unrecognized stable distribution kind.
	ErrUnknownDistribution = errors.New("golshbox: unknown stable distribution")

	// ErrBadArgument is returned by the CLI on argument/flag misuse.
	ErrBadArgument = errors.New("golshbox: bad argument")
)

// Error wraps an underlying error with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("golshbox: %v", e.Err)
	}
	return fmt.Sprintf("golshbox: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps err with an operation name, returning nil if err is nil.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Wrap wraps err with an operation name such as "rbs.Save" or
// "matrix.Load", for use by every package's file-opening and
// file-format error paths. It returns nil if err is nil.
func Wrap(op string, err error) error {
	return wrapError(op, err)
}
