// Package storage holds the attachment payload backends.
package storage

import (
	"errors"
	"strings"
)

var (
	// ErrObjectNotFound is returned when a key has no stored payload.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that could escape the backend namespace.
	ErrInvalidKey = errors.New("invalid object key")
)

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, "/\\\x00")
}
