package http

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/robertarktes/cinema-seat-booking/internal/framing"
)

// Dispatcher runs framed request messages through an http.Handler and
// encodes the answers as HTTP/1.1 responses.
type Dispatcher struct {
	handler http.Handler
}

func NewDispatcher(handler http.Handler) *Dispatcher {
	return &Dispatcher{handler: handler}
}

// Serve handles one message. keepAlive is false when the client asked to
// close or the message could not be parsed as a request; the caller must
// close the connection after writing resp in that case.
func (d *Dispatcher) Serve(ctx context.Context, msg framing.Message, remoteAddr string) (resp []byte, keepAlive bool) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(msg.Bytes())))
	if err != nil {
		LoggerFrom(ctx).WithError(err).Warn("malformed request")
		return EncodeStatus(http.StatusBadRequest), false
	}
	req = req.WithContext(ctx)
	req.RemoteAddr = remoteAddr

	rb := newResponseBuffer()
	d.handler.ServeHTTP(rb, req)

	keepAlive = !req.Close
	return rb.encode(keepAlive), keepAlive
}

// EncodeStatus builds a bodiless response that also closes the connection.
func EncodeStatus(status int) []byte {
	rb := newResponseBuffer()
	rb.WriteHeader(status)
	return rb.encode(false)
}

type responseBuffer struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: http.Header{}}
}

func (rb *responseBuffer) Header() http.Header { return rb.header }

func (rb *responseBuffer) WriteHeader(status int) {
	if rb.wroteHeader {
		return
	}
	rb.wroteHeader = true
	rb.status = status
}

func (rb *responseBuffer) Write(p []byte) (int, error) {
	rb.WriteHeader(http.StatusOK)
	return rb.body.Write(p)
}

func (rb *responseBuffer) encode(keepAlive bool) []byte {
	rb.WriteHeader(http.StatusOK)

	rb.header.Set("Content-Length", strconv.Itoa(rb.body.Len()))
	rb.header.Del("Transfer-Encoding")
	if keepAlive {
		rb.header.Del("Connection")
	} else {
		rb.header.Set("Connection", "close")
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "HTTP/1.1 %d %s\r\n", rb.status, http.StatusText(rb.status))
	rb.header.Write(&out)
	out.WriteString("\r\n")
	out.Write(rb.body.Bytes())
	return out.Bytes()
}
