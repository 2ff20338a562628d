package store

import "errors"

var (
	// ErrNotFound is returned by Load for a key with no stored value.
	ErrNotFound = errors.New("store: key not found")
	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("store: closed")
)
