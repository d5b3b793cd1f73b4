// Package framing assembles complete HTTP/1.1 request messages from an
// arbitrary sequence of partial reads.
//
// A Framer moves through AwaitingHeaders → AwaitingBody → Complete for
// every message and returns to AwaitingHeaders once the message has been
// taken with Next. The header block ends at the first CRLF CRLF; the body
// length comes from Content-Length, and a missing header means no body.
package framing

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	DefaultMaxHeaderBytes = 64 << 10
	DefaultMaxBodyBytes   = 1 << 20
)

var (
	ErrBadContentLength = errors.New("malformed content-length")
	ErrHeaderTooLarge   = errors.New("header block too large")
	ErrBodyTooLarge     = errors.New("body too large")
	ErrChunkedBody      = errors.New("chunked transfer-encoding not supported")
)

var headerTerminator = []byte("\r\n\r\n")

type State int

const (
	AwaitingHeaders State = iota
	AwaitingBody
	Complete
)

func (s State) String() string {
	switch s {
	case AwaitingHeaders:
		return "awaiting-headers"
	case AwaitingBody:
		return "awaiting-body"
	case Complete:
		return "complete"
	}
	return "unknown"
}

// Message is one complete request: the header block including its
// terminating CRLF CRLF, followed by exactly Content-Length body bytes.
type Message struct {
	raw       []byte
	headerLen int
}

func (m Message) Header() []byte { return m.raw[:m.headerLen] }
func (m Message) Body() []byte   { return m.raw[m.headerLen:] }
func (m Message) Bytes() []byte  { return m.raw }

type Option func(*Framer)

func WithMaxHeaderBytes(n int) Option {
	return func(f *Framer) {
		if n > 0 {
			f.maxHeader = n
		}
	}
}

func WithMaxBodyBytes(n int) Option {
	return func(f *Framer) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// Framer is not safe for concurrent use; each connection owns one.
type Framer struct {
	buf   []byte
	state State

	headerLen     int
	contentLength int

	maxHeader int
	maxBody   int
}

func New(opts ...Option) *Framer {
	f := &Framer{maxHeader: DefaultMaxHeaderBytes, maxBody: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Framer) State() State { return f.state }

// Buffered is the number of bytes held for the current (and any following)
// message.
func (f *Framer) Buffered() int { return len(f.buf) }

// Need is the exact number of body bytes still missing while the framer is
// awaiting a body, and zero in every other state.
func (f *Framer) Need() int {
	if f.state != AwaitingBody {
		return 0
	}
	if have := len(f.buf) - f.headerLen; have < f.contentLength {
		return f.contentLength - have
	}
	return 0
}

// Write buffers p. It never fails; framing errors surface from Next.
func (f *Framer) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}

// Next advances over the buffered bytes and pops the next complete message.
// It reports false when more input is needed. After an error the framer is
// reset and the stream should be abandoned.
func (f *Framer) Next() (Message, bool, error) {
	if err := f.advance(); err != nil {
		f.Reset()
		return Message{}, false, err
	}
	if f.state != Complete {
		return Message{}, false, nil
	}

	end := f.headerLen + f.contentLength
	msg := Message{raw: append([]byte(nil), f.buf[:end]...), headerLen: f.headerLen}

	rest := f.buf[end:]
	f.Reset()
	if len(rest) > 0 {
		f.buf = append(f.buf, rest...)
	}
	return msg, true, nil
}

// Feed writes p and returns every message it completes.
func (f *Framer) Feed(p []byte) ([]Message, error) {
	f.Write(p)
	var msgs []Message
	for {
		msg, ok, err := f.Next()
		if err != nil {
			return msgs, err
		}
		if !ok {
			return msgs, nil
		}
		msgs = append(msgs, msg)
	}
}

// Reset drops all buffered bytes and returns to AwaitingHeaders.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.state = AwaitingHeaders
	f.headerLen = 0
	f.contentLength = 0
}

func (f *Framer) advance() error {
	if f.state == AwaitingHeaders {
		idx := bytes.Index(f.buf, headerTerminator)
		if idx < 0 {
			if len(f.buf) > f.maxHeader {
				return ErrHeaderTooLarge
			}
			return nil
		}
		headerLen := idx + len(headerTerminator)
		if headerLen > f.maxHeader {
			return ErrHeaderTooLarge
		}
		n, err := parseContentLength(f.buf[:idx])
		if err != nil {
			return err
		}
		if n > f.maxBody {
			return errors.Wrapf(ErrBodyTooLarge, "content-length %d exceeds %d", n, f.maxBody)
		}
		f.headerLen = headerLen
		f.contentLength = n
		f.state = AwaitingBody
	}

	if f.state == AwaitingBody && len(f.buf)-f.headerLen >= f.contentLength {
		f.state = Complete
	}
	return nil
}

// parseContentLength scans the header lines (the request line is skipped)
// for Content-Length. Header names match case-insensitively; repeated
// headers must agree.
func parseContentLength(header []byte) (int, error) {
	lines := strings.Split(string(header), "\r\n")
	length := -1
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		if strings.EqualFold(name, "Transfer-Encoding") && !strings.EqualFold(value, "identity") {
			return 0, ErrChunkedBody
		}
		if !strings.EqualFold(name, "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0, errors.Wrapf(ErrBadContentLength, "%q", value)
		}
		if length >= 0 && n != length {
			return 0, errors.Wrapf(ErrBadContentLength, "conflicting values %d and %d", length, n)
		}
		length = n
	}
	if length < 0 {
		return 0, nil
	}
	return length, nil
}
