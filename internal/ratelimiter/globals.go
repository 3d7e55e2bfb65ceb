package ratelimiter

import (
	"errors"
	"time"
)

const (
	DefaultMaxConcurrent  = 2
	DefaultMinInterval    = time.Second
	DefaultAcquireTimeout = 2 * time.Minute
)

// ErrTimeout is returned by Acquire when no slot was granted before the
// acquire deadline.
var ErrTimeout = errors.New("rate limiter: acquire timed out")
