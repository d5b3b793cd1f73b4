// Package server accepts TCP connections and runs one session per
// connection. A session frames requests from its socket and hands every
// complete message to the MessageHandler, one at a time and in arrival
// order. Handling is bounded by a fixed pool of worker slots shared by all
// sessions; the number of connections is not.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"

	"github.com/robertarktes/cinema-seat-booking/internal/framing"
	"github.com/robertarktes/cinema-seat-booking/internal/observability"
)

var ErrServerClosed = errors.New("server closed")

// MessageHandler answers one framed request. keepAlive false asks the
// session to close after writing resp.
type MessageHandler interface {
	Serve(ctx context.Context, msg framing.Message, remoteAddr string) (resp []byte, keepAlive bool)
}

type Config struct {
	Workers        int
	IdleTimeout    time.Duration
	ReadTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int
}

type Server struct {
	cfg     Config
	handler MessageHandler
	logger  observability.Logger
	workers *semaphore.Weighted

	inShutdown atomic.Bool

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	sessions  map[*session]struct{}
}

func New(cfg Config, handler MessageHandler, logger observability.Logger) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Server{
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		workers:   semaphore.NewWeighted(int64(cfg.Workers)),
		listeners: map[net.Listener]struct{}{},
		sessions:  map[*session]struct{}{},
	}
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It always returns a
// non-nil error; after Shutdown the error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				s.logger.WithError(err).Warn("accept failed, retrying")
				time.Sleep(backoff)
				continue
			}
			return errors.Wrap(err, "accept")
		}
		backoff = 0

		sess := newSession(s, conn)
		if !s.trackSession(sess, true) {
			conn.Close()
			continue
		}
		go sess.run()
	}
}

// Shutdown stops accepting, closes idle connections, and waits for
// sessions to finish the message they are handling. When ctx ends first
// the remaining connections are closed and ctx.Err() is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	for ln := range s.listeners {
		ln.Close()
	}
	s.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.closeIdle() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			s.closeAll()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sessions is the number of open connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.shuttingDown() {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

func (s *Server) trackSession(sess *session, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.shuttingDown() {
			return false
		}
		s.sessions[sess] = struct{}{}
		observability.OpenConnections.Inc()
	} else {
		delete(s.sessions, sess)
		observability.OpenConnections.Dec()
	}
	return true
}

// closeIdle closes sessions waiting for a new message and returns how many
// sessions remain open.
func (s *Server) closeIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.closeIfIdle()
	}
	return len(s.sessions)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.cancel()
		sess.conn.Close()
	}
}
