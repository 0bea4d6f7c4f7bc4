package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
)

// postgres error classes that indicate the server is unreachable or refusing work.
var transientClasses = map[pq.ErrorClass]struct{}{
	"08": {}, // connection exception
	"53": {}, // insufficient resources
	"57": {}, // operator intervention
}

func wrapPG(err error, op string) error {
	if err == nil {
		return nil
	}
	if isTransientPG(err) {
		return pkgerrors.Wrapf(ErrUnavailable, "%s: %v", op, err)
	}
	return pkgerrors.Wrap(err, op)
}

func isTransientPG(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		_, ok := transientClasses[pqErr.Code.Class()]
		return ok
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
