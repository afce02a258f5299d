package model

import "errors"

// Sentinel filesystem errors shared between internal/vfs (producer) and
// internal/world's built-in handlers (consumer), named after the
// terminal result codes they map to 1:1.
var (
	ErrNotFound      = errors.New("not found")
	ErrNotDirectory  = errors.New("not a directory")
	ErrNotFile       = errors.New("not a file")
	ErrIsDirectory   = errors.New("is a directory")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotTextFile   = errors.New("not a text file")
	ErrTooLarge      = errors.New("too large")
	ErrConflict      = errors.New("conflict")
	ErrRootForbidden = errors.New("operation forbidden on root")
)
