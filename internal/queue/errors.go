package queue

import "errors"

// ErrNotFound indicates a referenced batch job or queue item does not exist
// or is not owned by the caller.
var ErrNotFound = errors.New("not found")
