package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nounforge/entitykernel/internal/kernelerr"
	"gorm.io/gorm"
)

var (
	ErrValidation = errors.New("aggregate validation")
	ErrInvariant  = errors.New("aggregate invariant violation")
	ErrConflict   = errors.New("aggregate conflict")
	ErrRetryable  = errors.New("aggregate retryable")
)

func ValidationError(msg string) error {
	return errors.Join(ErrValidation, errors.New(strings.TrimSpace(msg)))
}

func InvariantError(msg string) error {
	return errors.Join(ErrInvariant, errors.New(strings.TrimSpace(msg)))
}

func ConflictError(msg string) error {
	return errors.Join(ErrConflict, errors.New(strings.TrimSpace(msg)))
}

func RetryableError(msg string) error {
	return errors.Join(ErrRetryable, errors.New(strings.TrimSpace(msg)))
}

// MapError maps infrastructure failures (gorm, pgx, context) and the
// locally-raised sentinel errors above into the kernel's typed error
// vocabulary. A *kernelerr.Error passed in is returned unchanged.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ke *kernelerr.Error
	if errors.As(err, &ke) {
		return err
	}
	switch {
	case errors.Is(err, ErrValidation):
		return kernelerr.Wrap(kernelerr.CodeBadInput, op, err)
	case errors.Is(err, ErrInvariant):
		return kernelerr.Wrap(kernelerr.CodeInternal, op, err)
	case errors.Is(err, ErrConflict):
		return kernelerr.Wrap(kernelerr.CodeVersionConflict, op, err)
	case errors.Is(err, ErrRetryable):
		return kernelerr.Wrap(kernelerr.CodeInternal, op, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return kernelerr.Wrap(kernelerr.CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return kernelerr.Wrap(kernelerr.CodeInternal, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return kernelerr.Wrap(kernelerr.CodeVersionConflict, op, err)
		default:
			return kernelerr.Wrap(kernelerr.CodeInternal, op, err)
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "already exists"):
		return kernelerr.Wrap(kernelerr.CodeVersionConflict, op, err)
	default:
		return kernelerr.Wrap(kernelerr.CodeInternal, op, err)
	}
}
