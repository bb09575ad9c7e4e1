package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a comic, folder or tag row is missing.
	ErrNotFound = errors.New("catalog: not found")
	// ErrConflict is returned for unique-name violations and duplicate inserts.
	ErrConflict = errors.New("catalog: constraint conflict")
	// ErrUnavailable wraps driver failures that abort the current operation.
	ErrUnavailable = errors.New("catalog: store unavailable")
	// ErrInvalid is returned for empty names and unknown tag types.
	ErrInvalid = errors.New("catalog: invalid argument")
)

// translate maps gorm and driver errors onto the catalog taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrInvalid) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
