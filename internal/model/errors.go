package model

import "errors"

// Sentinel store errors. The command layer maps ErrDuplicate to an
// "already exists" reply rather than a failure.
var (
	ErrDuplicate = errors.New("demand already exists")
	ErrNotFound  = errors.New("demand not found")
)
