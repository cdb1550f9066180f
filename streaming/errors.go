package streaming

import "errors"

// ErrNotIdle is returned when Consume is called on an accumulator that has
// already been started.
var ErrNotIdle = errors.New("accumulator already consumed a stream")
