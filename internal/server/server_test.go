package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robertarktes/cinema-seat-booking/internal/domain"
	"github.com/robertarktes/cinema-seat-booking/internal/framing"
	httpapi "github.com/robertarktes/cinema-seat-booking/internal/http"
	"github.com/robertarktes/cinema-seat-booking/internal/idempotency"
	"github.com/robertarktes/cinema-seat-booking/internal/observability"
)

type noEvents struct{}

func (noEvents) Enqueue(domain.Booking) bool { return true }

func bookingHandler() MessageHandler {
	c := domain.NewCatalog()
	rex := domain.NewTheater("Rex")
	one := domain.NewRoom("One")
	one.SetPlayingMovie(&domain.Movie{Title: "Heat"})
	rex.AddRoom(one)
	c.AddTheater(rex)

	idemp := idempotency.NewIdempotency(idempotency.NewMemoryStore(), time.Hour)
	h := httpapi.NewHandlers(c, idemp, noEvents{})
	return httpapi.NewDispatcher(httpapi.SetupRouter(h, observability.NewDiscardLogger()))
}

func testConfig() Config {
	return Config{
		Workers:        4,
		IdleTimeout:    5 * time.Second,
		ReadTimeout:    5 * time.Second,
		MaxHeaderBytes: framing.DefaultMaxHeaderBytes,
		MaxBodyBytes:   framing.DefaultMaxBodyBytes,
	}
}

func startServer(t *testing.T, cfg Config, handler MessageHandler) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := New(cfg, handler, observability.NewDiscardLogger())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		if err := <-done; !errors.Is(err, ErrServerClosed) {
			t.Errorf("expected ErrServerClosed, got %v", err)
		}
	})
	return srv, ln.Addr().String()
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn, bufio.NewReader(conn)
}

func readResponse(t *testing.T, r *bufio.Reader) (int, string) {
	t.Helper()
	resp, err := http.ReadResponse(r, nil)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func seatsRequest(seats string) (string, string) {
	body := fmt.Sprintf(`{"theater":"Rex","movie":"Heat","seats":[%s]}`, seats)
	header := fmt.Sprintf("POST /seats HTTP/1.1\r\nHost: localhost\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n", len(body))
	return header, body
}

func TestRequestSplitAcrossWrites(t *testing.T) {
	_, addr := startServer(t, testConfig(), bookingHandler())
	conn, r := dial(t, addr)

	header, body := seatsRequest("1,2")
	io.WriteString(conn, header)
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < len(body); i += 5 {
		end := i + 5
		if end > len(body) {
			end = len(body)
		}
		io.WriteString(conn, body[i:end])
		time.Sleep(2 * time.Millisecond)
	}

	status, got := readResponse(t, r)
	if status != http.StatusOK || !strings.Contains(got, `"seats":[1,2]`) {
		t.Errorf("unexpected response %d %s", status, got)
	}
}

func TestSequentialRequestsOnOneConnection(t *testing.T) {
	_, addr := startServer(t, testConfig(), bookingHandler())
	conn, r := dial(t, addr)

	header, body := seatsRequest("5")
	io.WriteString(conn, header+body)
	if status, _ := readResponse(t, r); status != http.StatusOK {
		t.Fatalf("first booking: expected 200, got %d", status)
	}

	io.WriteString(conn, header+body)
	if status, _ := readResponse(t, r); status != http.StatusConflict {
		t.Fatalf("second booking: expected 409, got %d", status)
	}

	io.WriteString(conn, "GET /movies HTTP/1.1\r\nHost: localhost\r\n\r\n")
	if status, got := readResponse(t, r); status != http.StatusOK || got != `["Heat"]` {
		t.Fatalf("movies: unexpected %d %s", status, got)
	}
}

func TestMalformedContentLengthClosesConnection(t *testing.T) {
	_, addr := startServer(t, testConfig(), bookingHandler())
	conn, r := dial(t, addr)

	io.WriteString(conn, "POST /find HTTP/1.1\r\nHost: localhost\r\nContent-Length: lots\r\n\r\n")
	if status, _ := readResponse(t, r); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		t.Errorf("expected the server to close, got %v", err)
	}

	// The server itself keeps serving other connections.
	conn2, r2 := dial(t, addr)
	io.WriteString(conn2, "GET /movies HTTP/1.1\r\nHost: localhost\r\n\r\n")
	if status, _ := readResponse(t, r2); status != http.StatusOK {
		t.Errorf("expected 200 on a fresh connection, got %d", status)
	}
}

func TestIdleTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	_, addr := startServer(t, cfg, bookingHandler())
	_, r := dial(t, addr)

	start := time.Now()
	if _, err := r.ReadByte(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("idle connection lingered for %v", time.Since(start))
	}
}

func TestConcurrentClients(t *testing.T) {
	srv, addr := startServer(t, testConfig(), bookingHandler())

	var wg sync.WaitGroup
	codes := make(chan int, domain.SeatsPerRoom)
	for i := 0; i < domain.SeatsPerRoom; i++ {
		wg.Add(1)
		go func(seat int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Error(err)
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(5 * time.Second))
			header, body := seatsRequest(fmt.Sprint(seat))
			io.WriteString(conn, header+body)
			resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
			if err != nil {
				t.Error(err)
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusOK {
			t.Errorf("expected every disjoint booking to succeed, got %d", code)
		}
	}
	if srv.Sessions() > domain.SeatsPerRoom {
		t.Errorf("unexpected session count %d", srv.Sessions())
	}
}

type blockingHandler struct {
	entered chan struct{}
	release chan struct{}
}

func (h *blockingHandler) Serve(ctx context.Context, msg framing.Message, _ string) ([]byte, bool) {
	close(h.entered)
	select {
	case <-h.release:
	case <-ctx.Done():
	}
	return []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"), true
}

func TestShutdownWaitsForInFlightRequest(t *testing.T) {
	h := &blockingHandler{entered: make(chan struct{}), release: make(chan struct{})}
	srv, addr := startServer(t, testConfig(), h)

	_, idleReader := dial(t, addr)
	busy, busyReader := dial(t, addr)
	io.WriteString(busy, "GET /movies HTTP/1.1\r\nHost: localhost\r\n\r\n")
	<-h.entered

	shutdown := make(chan error, 1)
	go func() { shutdown <- srv.Shutdown(context.Background()) }()

	// The idle connection is closed right away.
	if _, err := idleReader.ReadByte(); err != io.EOF {
		t.Errorf("expected idle connection to close, got %v", err)
	}
	select {
	case err := <-shutdown:
		t.Fatalf("shutdown returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(h.release)
	if status, body := readResponse(t, busyReader); status != http.StatusOK || body != "ok" {
		t.Errorf("in-flight request not completed: %d %s", status, body)
	}
	if err := <-shutdown; err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
	if _, err := busyReader.ReadByte(); err != io.EOF {
		t.Errorf("expected connection to close after shutdown, got %v", err)
	}
}

func TestShutdownDeadlineForcesClose(t *testing.T) {
	h := &blockingHandler{entered: make(chan struct{}), release: make(chan struct{})}
	srv, addr := startServer(t, testConfig(), h)

	conn, _ := dial(t, addr)
	io.WriteString(conn, "GET /movies HTTP/1.1\r\nHost: localhost\r\n\r\n")
	<-h.entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestReadTimeoutBoundsWholeMessage(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = 200 * time.Millisecond
	_, addr := startServer(t, cfg, bookingHandler())
	conn, r := dial(t, addr)

	// Each byte arrives well within ReadTimeout, the message as a whole does not.
	request := "GET /movies HTTP/1.1\r\nHost: x\r\n\r\n"
	go func() {
		for i := 0; i < len(request); i++ {
			if _, err := conn.Write([]byte{request[i]}); err != nil {
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}()

	start := time.Now()
	b, err := r.ReadByte()
	if err == nil {
		t.Fatalf("expected the connection to close, got response byte %q", b)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("slow message held the connection for %v", elapsed)
	}
}

func TestLargeBodyReadInChunks(t *testing.T) {
	_, addr := startServer(t, testConfig(), bookingHandler())
	conn, r := dial(t, addr)

	body := `{"movie":"Heat"` + strings.Repeat(" ", 3*readChunk+17) + `}`
	io.WriteString(conn, fmt.Sprintf("POST /find HTTP/1.1\r\nHost: localhost\r\nContent-Length: %d\r\n\r\n", len(body)))
	for i := 0; i < len(body); i += 1000 {
		end := i + 1000
		if end > len(body) {
			end = len(body)
		}
		io.WriteString(conn, body[i:end])
	}

	if status, got := readResponse(t, r); status != http.StatusOK || got != `["Rex"]` {
		t.Fatalf("unexpected %d %s", status, got)
	}
}

func TestCloseIdleLeavesSessionWithInput(t *testing.T) {
	srv := New(testConfig(), bookingHandler(), observability.NewDiscardLogger())

	busyConn, busyPeer := net.Pipe()
	defer busyPeer.Close()
	busy := newSession(srv, busyConn)
	srv.trackSession(busy, true)
	defer srv.trackSession(busy, false)

	idleConn, idlePeer := net.Pipe()
	defer idlePeer.Close()
	idle := newSession(srv, idleConn)
	srv.trackSession(idle, true)
	defer srv.trackSession(idle, false)

	if !busy.markActive() {
		t.Fatal("expected a fresh session to become active")
	}
	srv.closeIdle()

	if busy.closeIfIdle() {
		t.Error("active session was closed as idle")
	}
	if idle.markActive() {
		t.Error("session closed as idle became active again")
	}
	if _, err := idlePeer.Write([]byte("x")); err == nil {
		t.Error("expected the idle connection to be closed")
	}
}
