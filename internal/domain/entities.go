package domain

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// SeatsPerRoom is the fixed size of every room's seat map.
const SeatsPerRoom = 20

type Movie struct {
	Title string
}

// Room is a screen inside a theater. Rooms are always handled by pointer:
// the mutex guards the seat map and must never be copied.
type Room struct {
	Name string

	movie *Movie

	mu    sync.Mutex
	seats [SeatsPerRoom]bool // true = available
}

func NewRoom(name string) *Room {
	r := &Room{Name: name}
	for i := range r.seats {
		r.seats[i] = true
	}
	return r
}

// PlayingMovie returns nil until a movie is assigned.
func (r *Room) PlayingMovie() *Movie {
	return r.movie
}

// SetPlayingMovie is only called while the catalog is being built.
func (r *Room) SetPlayingMovie(m *Movie) {
	r.movie = m
}

func (r *Room) plays(title string) bool {
	return r.movie != nil && r.movie.Title == title
}

// SeatAvailable reports false for indices outside [0, SeatsPerRoom).
func (r *Room) SeatAvailable(seat int) bool {
	if seat < 0 || seat >= SeatsPerRoom {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seats[seat]
}

// Snapshot returns the seat map as 0 (available) / 1 (booked) in index order.
func (r *Room) Snapshot() []int {
	out := make([]int, SeatsPerRoom)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, free := range r.seats {
		if !free {
			out[i] = 1
		}
	}
	return out
}

// Reserve books every seat in the set or none of them. The availability
// check and the write happen under a single hold of the room lock.
func (r *Room) Reserve(seats []int) error {
	seats = NormalizeSeats(seats)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range seats {
		if s < 0 || s >= SeatsPerRoom {
			return errors.Wrapf(ErrSeatOutOfRange, "seat %d", s)
		}
		if !r.seats[s] {
			return errors.Wrapf(ErrSeatUnavailable, "seat %d", s)
		}
	}
	for _, s := range seats {
		r.seats[s] = false
	}
	return nil
}

// NormalizeSeats returns the distinct seat numbers in ascending order.
func NormalizeSeats(seats []int) []int {
	out := make([]int, len(seats))
	copy(out, seats)
	sort.Ints(out)
	n := 0
	for i, s := range out {
		if i == 0 || s != out[n-1] {
			out[n] = s
			n++
		}
	}
	return out[:n]
}

type Theater struct {
	Name  string
	Rooms []*Room
}

func NewTheater(name string) *Theater {
	return &Theater{Name: name}
}

func (t *Theater) AddRoom(r *Room) {
	t.Rooms = append(t.Rooms, r)
}
