package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))

	tests := []struct {
		err    error
		status int
	}{
		{redis.Nil, http.StatusNotFound},
		{fmt.Errorf("get: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		err := WrapRedis(tt.err)
		assert.Equal(t, tt.status, StatusOf(err), tt.err.Error())
		assert.ErrorIs(t, err, tt.err)
	}
}

func TestAppError_Chain(t *testing.T) {
	err := fmt.Errorf("save: %w", Invalid(ErrInvalidSession, "history shrank"))

	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	var appErr *AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, "history shrank", appErr.Message)

	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(WrapStorage(errors.New("disk full"))))
}
