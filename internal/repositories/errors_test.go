package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestWrapPGClassifiesConnectivity(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"bad conn", driver.ErrBadConn, true},
		{"deadline", context.DeadlineExceeded, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wrapPG(tc.err, "op")
			assert.Equal(t, tc.transient, errors.Is(err, ErrUnavailable))
		})
	}
	assert.NoError(t, wrapPG(nil, "op"))
}
