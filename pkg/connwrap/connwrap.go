// Package connwrap wraps a net.Conn to report open/close/read/write
// telemetry. cmd/probe uses it to watch the lifetime of the connections
// it opens, pairing each close with a tcp_info snapshot.
package connwrap

import (
	"net"
	"time"
)

const (
	StateOpen  = 0
	StateClose = 1
)

var StateName = map[int]string{
	StateOpen:  "open",
	StateClose: "close",
}

// ReportFn is invoked on open and close with the wrapped connection.
type ReportFn func(c *Conn, state int)

// Conn wraps a net.Conn, tracking byte counts and lifecycle timestamps.
type Conn struct {
	net.Conn
	report       ReportFn
	OpenedAt     int64
	ClosedAt     int64
	FirstReadAt  int64
	FirstWriteAt int64
	SentBytes    int64
	RecvBytes    int64
	RecvErr      error
	SentErr      error
}

// Wrap returns a net.Conn that reports lifecycle events via report.
func Wrap(c net.Conn, report ReportFn) net.Conn {
	w := &Conn{Conn: c, report: report, OpenedAt: time.Now().UnixNano()}
	if w.report != nil {
		w.report(w, StateOpen)
	}
	return w
}

// Close reports a close event before closing the underlying connection.
func (w *Conn) Close() error {
	w.ClosedAt = time.Now().UnixNano()
	if w.report != nil {
		w.report(w, StateClose)
	}
	return w.Conn.Close()
}

// Read tracks received bytes and the first-read timestamp.
func (w *Conn) Read(b []byte) (int, error) {
	n, err := w.Conn.Read(b)
	if err == nil && w.RecvBytes == 0 && n > 0 {
		w.FirstReadAt = time.Now().UnixNano()
	}
	w.RecvBytes += int64(n)
	if nerr, ok := err.(net.Error); ok && !nerr.Timeout() {
		w.RecvErr = err
	}
	return n, err
}

// Write tracks sent bytes and the first-write timestamp.
func (w *Conn) Write(b []byte) (int, error) {
	n, err := w.Conn.Write(b)
	if err == nil && w.SentBytes == 0 && n > 0 {
		w.FirstWriteAt = time.Now().UnixNano()
	}
	w.SentBytes += int64(n)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && !nerr.Timeout() {
			w.SentErr = err
		} else if !ok {
			w.SentErr = err
		}
	}
	return n, err
}
