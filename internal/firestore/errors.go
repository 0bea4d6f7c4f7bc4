package firestore

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"inbox-service/internal/repositories"
)

// wrapFS maps retryable gRPC statuses onto repositories.ErrUnavailable.
func wrapFS(err error, op string) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return pkgerrors.Wrapf(repositories.ErrUnavailable, "%s: %v", op, err)
	}
	return pkgerrors.Wrap(err, op)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}
