package testutil

import "errors"

// Common test errors
var (
	ErrStoreDown   = errors.New("store unavailable")
	ErrTestFailure = errors.New("test failure")
)
