package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/cinema-seat-booking/internal/framing"
	httpapi "github.com/robertarktes/cinema-seat-booking/internal/http"
	"github.com/robertarktes/cinema-seat-booking/internal/observability"
)

const readChunk = 4096

type sessionState int32

const (
	stateIdle sessionState = iota // waiting for the first byte of a message
	stateActive
	stateClosing // closed by closeIdle; never becomes active again
)

type session struct {
	srv    *Server
	conn   net.Conn
	framer *framing.Framer
	logger observability.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32
}

func newSession(srv *Server, conn net.Conn) *session {
	logger := srv.logger.WithField("conn_id", uuid.NewString()).WithField("remote_addr", conn.RemoteAddr().String())
	ctx, cancel := context.WithCancel(httpapi.WithLogger(context.Background(), logger))
	return &session{
		srv:  srv,
		conn: conn,
		framer: framing.New(
			framing.WithMaxHeaderBytes(srv.cfg.MaxHeaderBytes),
			framing.WithMaxBodyBytes(srv.cfg.MaxBodyBytes),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// closeIfIdle closes the connection unless input has already arrived.
func (s *session) closeIfIdle() bool {
	if !s.state.CompareAndSwap(int32(stateIdle), int32(stateClosing)) {
		return false
	}
	s.conn.Close()
	return true
}

// markActive reports false when closeIfIdle got there first.
func (s *session) markActive() bool {
	return s.state.CompareAndSwap(int32(stateIdle), int32(stateActive)) ||
		sessionState(s.state.Load()) == stateActive
}

func (s *session) markIdle() {
	s.state.CompareAndSwap(int32(stateActive), int32(stateIdle))
}

func (s *session) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("session panicked")
		}
		s.cancel()
		s.conn.Close()
		s.srv.trackSession(s, false)
	}()

	s.logger.Debug("connection opened")
	buf := make([]byte, readChunk)
	// msgDeadline bounds the message being received. It is fixed when the
	// first byte of the message is buffered and cleared once it is framed.
	var msgDeadline time.Time
	for {
		msg, ok, err := s.framer.Next()
		if err != nil {
			s.reject(err)
			return
		}
		if ok {
			msgDeadline = time.Time{}
			if !s.handle(msg) {
				return
			}
			continue
		}

		if s.framer.Buffered() == 0 {
			if s.srv.shuttingDown() {
				return
			}
			s.markIdle()
			s.setReadDeadline(s.srv.cfg.IdleTimeout)
		} else {
			if msgDeadline.IsZero() && s.srv.cfg.ReadTimeout > 0 {
				msgDeadline = time.Now().Add(s.srv.cfg.ReadTimeout)
			}
			s.conn.SetReadDeadline(msgDeadline)
		}

		if err := s.fill(buf); err != nil {
			s.logClosed(err)
			return
		}
	}
}

// fill reads more input, at most readChunk bytes at a time. While a body is
// outstanding it never reads past the missing byte count.
func (s *session) fill(buf []byte) error {
	p := buf
	if need := s.framer.Need(); need > 0 && need < len(p) {
		p = p[:need]
	}
	n, err := s.conn.Read(p)
	if n > 0 {
		if !s.markActive() {
			return net.ErrClosed
		}
		s.framer.Write(p[:n])
	}
	if err != nil && n == 0 {
		return err
	}
	return nil
}

func (s *session) handle(msg framing.Message) bool {
	if err := s.srv.workers.Acquire(s.ctx, 1); err != nil {
		return false
	}
	resp, keepAlive := s.srv.handler.Serve(s.ctx, msg, s.conn.RemoteAddr().String())
	s.srv.workers.Release(1)

	if err := s.write(resp); err != nil {
		s.logClosed(err)
		return false
	}
	return keepAlive && !s.srv.shuttingDown()
}

func (s *session) reject(err error) {
	status, kind := http.StatusBadRequest, "malformed"
	switch {
	case errors.Is(err, framing.ErrBadContentLength):
		kind = "bad_content_length"
	case errors.Is(err, framing.ErrHeaderTooLarge):
		status, kind = http.StatusRequestHeaderFieldsTooLarge, "header_too_large"
	case errors.Is(err, framing.ErrBodyTooLarge):
		status, kind = http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, framing.ErrChunkedBody):
		status, kind = http.StatusNotImplemented, "chunked"
	}
	observability.FramingErrors.WithLabelValues(kind).Inc()
	s.logger.WithError(err).Warn("rejecting connection")
	s.write(httpapi.EncodeStatus(status))
}

func (s *session) write(p []byte) error {
	if s.srv.cfg.ReadTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.ReadTimeout))
	}
	_, err := s.conn.Write(p)
	return err
}

func (s *session) setReadDeadline(d time.Duration) {
	if d > 0 {
		s.conn.SetReadDeadline(time.Now().Add(d))
	} else {
		s.conn.SetReadDeadline(time.Time{})
	}
}

func (s *session) logClosed(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		s.logger.Debug("connection closed")
		return
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		s.logger.Debug("connection timed out")
		return
	}
	s.logger.WithError(err).Warn("connection error")
}
