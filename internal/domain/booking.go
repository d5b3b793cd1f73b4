package domain

import (
	"time"

	"github.com/google/uuid"
)

// Booking confirms a successful reservation.
type Booking struct {
	ID       uuid.UUID
	Theater  string
	Room     string
	Movie    string
	Seats    []int
	BookedAt time.Time
}

func NewBooking(theater, room, movie string, seats []int) Booking {
	return Booking{
		ID:       uuid.New(),
		Theater:  theater,
		Room:     room,
		Movie:    movie,
		Seats:    seats,
		BookedAt: time.Now().UTC(),
	}
}
