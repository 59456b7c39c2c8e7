package core

import (
	"errors"
	"fmt"
)

// Domain errors for dataset handling
var (
	ErrNotFound         = errors.New("resource not found")
	ErrRunNotFound      = fmt.Errorf("%w: run", ErrNotFound)
	ErrColumnMissing    = fmt.Errorf("%w: column", ErrNotFound)
	ErrNonNumeric       = errors.New("non-numeric cell")
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrUnsupportedFile  = errors.New("unsupported file type")
)

// NewNonNumericError reports the offending cell of a dataset
func NewNonNumericError(column string, row int, value string) error {
	return fmt.Errorf("%w: column %s row %d value %q", ErrNonNumeric, column, row, value)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
