package coordinator

import "errors"

// ErrIllegalTransition is returned when a lifecycle operation is invoked
// from a status that doesn't permit it — callers map this to HTTP 409.
var ErrIllegalTransition = errors.New("coordinator: illegal state transition")

// ErrProbeFailed is returned when the create-time health probe times out
// or the child reports a non-healthy status.
var ErrProbeFailed = errors.New("coordinator: post-start probe failed")
