package store

import "errors"

var (
	// ErrConfigFault is wrapped by every read or write failure of the store,
	// and by values that cannot be interpreted as requested.
	ErrConfigFault = errors.New("store: config fault")

	// ErrInvalidKey is returned for keys the KEY=VALUE syntax cannot hold.
	ErrInvalidKey = errors.New("store: invalid key")
)
