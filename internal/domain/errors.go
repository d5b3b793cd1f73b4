package domain

import "github.com/cockroachdb/errors"

var (
	// ErrNoSuchShowing means no room in the named theater plays the movie.
	ErrNoSuchShowing = errors.New("no such showing")

	// ErrSeatsUnavailable is the category of every seat-level booking
	// failure. Use the narrower errors below to tell them apart.
	ErrSeatsUnavailable = errors.New("seats unavailable")
	ErrSeatUnavailable  = errors.Wrap(ErrSeatsUnavailable, "seat already booked")
	ErrSeatOutOfRange   = errors.Wrap(ErrSeatsUnavailable, "seat out of range")
)
