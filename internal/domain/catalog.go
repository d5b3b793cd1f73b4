package domain

// Catalog is the root of the theater/room/movie graph. Its structure is
// built once before serving and is read-only afterwards; the only runtime
// mutation is a room's seat map, guarded by that room's own lock.
type Catalog struct {
	Theaters []*Theater
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

func (c *Catalog) AddTheater(t *Theater) {
	c.Theaters = append(c.Theaters, t)
}

// AddRoomToTheater attaches r to the first theater named theaterName and
// reports whether one was found.
func (c *Catalog) AddRoomToTheater(theaterName string, r *Room) bool {
	for _, t := range c.Theaters {
		if t.Name == theaterName {
			t.AddRoom(r)
			return true
		}
	}
	return false
}

// AllPlayingMovies lists one title per room with a movie. A movie shown in
// several rooms appears several times.
func (c *Catalog) AllPlayingMovies() []string {
	titles := []string{}
	for _, t := range c.Theaters {
		for _, r := range t.Rooms {
			if m := r.PlayingMovie(); m != nil {
				titles = append(titles, m.Title)
			}
		}
	}
	return titles
}

// TheatersShowingMovie lists each theater at most once.
func (c *Catalog) TheatersShowingMovie(title string) []string {
	names := []string{}
	for _, t := range c.Theaters {
		for _, r := range t.Rooms {
			if r.plays(title) {
				names = append(names, t.Name)
				break
			}
		}
	}
	return names
}

// Bookings returns the seat map of every room in the theater playing the
// movie. Unknown theaters or movies give an empty result.
func (c *Catalog) Bookings(theaterName, title string) [][]int {
	out := [][]int{}
	for _, t := range c.Theaters {
		if t.Name != theaterName {
			continue
		}
		for _, r := range t.Rooms {
			if r.plays(title) {
				out = append(out, r.Snapshot())
			}
		}
	}
	return out
}

// Showing resolves the first room of the named theater playing the movie.
func (c *Catalog) Showing(theaterName, title string) (*Room, bool) {
	for _, t := range c.Theaters {
		if t.Name != theaterName {
			continue
		}
		for _, r := range t.Rooms {
			if r.plays(title) {
				return r, true
			}
		}
	}
	return nil, false
}

// BookSeats reserves the seats in the first matching showing. It fails with
// ErrNoSuchShowing or an error marked ErrSeatsUnavailable; on failure no
// seat has changed.
func (c *Catalog) BookSeats(theaterName, title string, seats []int) (Booking, error) {
	room, ok := c.Showing(theaterName, title)
	if !ok {
		return Booking{}, ErrNoSuchShowing
	}
	seats = NormalizeSeats(seats)
	if err := room.Reserve(seats); err != nil {
		return Booking{}, err
	}
	return NewBooking(theaterName, room.Name, title, seats), nil
}
