package cache

import (
	"context"
	"time"
)

// Noop is a backend that stores nothing. Every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) (Value, bool, error) {
	return Value{}, false, nil
}

func (Noop) Set(context.Context, string, Value, time.Duration) error {
	return nil
}
