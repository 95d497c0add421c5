package models

import "errors"

var (
	// ErrFetch marks a transient failure reaching or parsing the quote source.
	ErrFetch = errors.New("fetch failed")
	// ErrNotFound marks a search or lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrDelivery marks a failed notification post.
	ErrDelivery = errors.New("delivery failed")
	// ErrInitialization marks a startup failure that must abort the process.
	ErrInitialization = errors.New("initialization failed")
)
