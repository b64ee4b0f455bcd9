package errx

import (
	"context"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	RedisErrorMessage    = "redis operation failed"
	RedisNotFoundMessage = "redis key not found"
	RedisTimeoutMessage  = "redis operation timed out"
)

// WrapRedis maps Redis errors to AppError: a missing key is NotFound, a
// deadline is GatewayTimeout, everything else BadGateway.
func WrapRedis(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	case errors.Is(err, context.DeadlineExceeded):
		return New(err, http.StatusGatewayTimeout, RedisTimeoutMessage)
	default:
		return New(err, http.StatusBadGateway, RedisErrorMessage)
	}
}
