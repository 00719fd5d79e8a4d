package events

import "errors"

var (
	// ErrPublisherClosed is returned when publishing after Close.
	ErrPublisherClosed = errors.New("publisher is closed")
)
