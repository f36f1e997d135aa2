package service

import (
	"errors"

	"gorm.io/gorm"
)

// Error taxonomy shared by every coordinator. Handlers translate these
// into HTTP statuses; clients decide between retry, re-sign and abort
// based on which one they get back.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrConflict    = errors.New("conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
)

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
