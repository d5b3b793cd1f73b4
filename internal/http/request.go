package http

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrInvalidBody marks every request body that fails validation. Handlers
// answer it with 400 before touching the catalog.
var ErrInvalidBody = errors.New("invalid request body")

type findRequest struct {
	Movie string
}

type bookingsRequest struct {
	Movie   string
	Theater string
}

type seatsRequest struct {
	Movie   string
	Theater string
	Seats   []int
}

type bodyFields map[string]json.RawMessage

func readFields(r io.Reader) (bodyFields, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading body")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.Wrap(ErrInvalidBody, "empty body")
	}
	var fields bodyFields
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, errors.Wrap(ErrInvalidBody, "body must be a JSON object")
	}
	return fields, nil
}

func (f bodyFields) str(name string) (string, error) {
	raw, ok := f[name]
	if !ok {
		return "", errors.Wrapf(ErrInvalidBody, "missing field %q", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", errors.Wrapf(ErrInvalidBody, "field %q must be a string", name)
	}
	return s, nil
}

func (f bodyFields) ints(name string) ([]int, error) {
	raw, ok := f[name]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidBody, "missing field %q", name)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, errors.Wrapf(ErrInvalidBody, "field %q must be an array", name)
	}
	out := make([]int, 0, len(items))
	for i, item := range items {
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, errors.Wrapf(ErrInvalidBody, "field %q[%d] is malformed", name, i)
		}
		num, ok := v.(json.Number)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidBody, "field %q[%d] must be an integer", name, i)
		}
		n, err := num.Int64()
		if err != nil || int64(int(n)) != n {
			return nil, errors.Wrapf(ErrInvalidBody, "field %q[%d] must be an integer", name, i)
		}
		out = append(out, int(n))
	}
	return out, nil
}

func decodeFind(r io.Reader) (findRequest, error) {
	f, err := readFields(r)
	if err != nil {
		return findRequest{}, err
	}
	movie, err := f.str("movie")
	if err != nil {
		return findRequest{}, err
	}
	return findRequest{Movie: movie}, nil
}

func decodeBookings(r io.Reader) (bookingsRequest, error) {
	f, err := readFields(r)
	if err != nil {
		return bookingsRequest{}, err
	}
	var req bookingsRequest
	if req.Movie, err = f.str("movie"); err != nil {
		return bookingsRequest{}, err
	}
	if req.Theater, err = f.str("theater"); err != nil {
		return bookingsRequest{}, err
	}
	return req, nil
}

func decodeSeats(r io.Reader) (seatsRequest, error) {
	f, err := readFields(r)
	if err != nil {
		return seatsRequest{}, err
	}
	var req seatsRequest
	if req.Movie, err = f.str("movie"); err != nil {
		return seatsRequest{}, err
	}
	if req.Theater, err = f.str("theater"); err != nil {
		return seatsRequest{}, err
	}
	if req.Seats, err = f.ints("seats"); err != nil {
		return seatsRequest{}, err
	}
	if len(req.Seats) == 0 {
		return seatsRequest{}, errors.Wrap(ErrInvalidBody, `field "seats" must not be empty`)
	}
	return req, nil
}
