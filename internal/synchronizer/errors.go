package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	"inbox-service/internal/models"
	"inbox-service/internal/repositories"
)

// Kind classifies errors surfaced by the synchronizer.
type Kind string

const (
	KindUnknown      Kind = "unknown"
	KindTransient    Kind = "transient"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
)

var (
	ErrNotSignedIn      = errors.New("no signed-in user")
	ErrMissingUser      = errors.New("user id is required")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrUnknownMessage   = errors.New("no such local message")
	ErrNotFailed        = errors.New("message has not failed")
)

// Error is the only error type operations return.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// classify translates store and validation errors at the operation boundary.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	kind := KindUnknown
	switch {
	case errors.Is(err, repositories.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = KindTransient
	case errors.Is(err, repositories.ErrUserNotFound), isValidation(err):
		kind = KindValidation
	}
	if kind == KindUnknown {
		log.Printf("synchronizer unexpected error op=%s err=%v", op, err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func isValidation(err error) bool {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return true
	}
	for _, target := range []error{
		models.ErrEmptyText,
		models.ErrSelfMessage,
		models.ErrMissingPost,
		models.ErrUnexpectedPost,
		models.ErrInvalidParticipants,
		ErrMissingUser,
		ErrSelfConversation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
