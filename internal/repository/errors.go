package repository

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned on insert of a duplicate key.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrStatusConflict is returned when a conditional status update finds
	// the market in a different state than expected.
	ErrStatusConflict = errors.New("market status changed concurrently")
	// ErrStalePool is returned when a pool write was computed from a version
	// that another writer has since replaced.
	ErrStalePool = errors.New("pool changed concurrently")
)
