package types

import "errors"

var (
	// ErrInvalidPartition is returned when a partition number is neither 0 nor 1.
	ErrInvalidPartition = errors.New("invalid partition")
)
