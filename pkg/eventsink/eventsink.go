// Package eventsink drains a pkg/event.Ring and forwards each event to
// the system logger, formatted as an RFC5424 syslog message. This
// replaces the original rsyslogger component's shell-out to logger(1):
// the interface the core needs from its sink (one formatted line per
// event, best-effort, no ack) is the same, but implemented as a real
// io.Writer instead of spawning a subprocess per line.
package eventsink

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/crewjam/rfc5424"
	"github.com/rs/xid"

	"github.com/WillGAndre/eLogJ/pkg/event"
)

// AppName is the RFC5424 APP-NAME used for every message this sink
// emits.
const AppName = "elogj"

// Sink writes formatted events to an underlying writer (a local syslog
// socket, a file, or stdout for local debugging).
type Sink struct {
	w        io.Writer
	hostname string
	pid      int
	runID    string
}

// New returns a Sink writing to w. Every message carries a fresh run id
// so restarts are distinguishable downstream.
func New(w io.Writer) *Sink {
	host, _ := os.Hostname()
	return &Sink{w: w, hostname: host, pid: os.Getpid(), runID: xid.New().String()}
}

// RunID returns the identifier stamped on every message of this sink.
func (s *Sink) RunID() string {
	return s.runID
}

// Drain ranges over every CPU slot of r in its own goroutine, writing
// each event to the sink until r's channels are closed or the returned
// stop function is called.
func (s *Sink) Drain(r *event.Ring) (stop func()) {
	done := make(chan struct{})
	for i := 0; i < r.Slots(); i++ {
		go func(slot <-chan event.Log) {
			for {
				select {
				case ev, ok := <-slot:
					if !ok {
						return
					}
					s.Write(ev)
				case <-done:
					return
				}
			}
		}(r.Slot(i))
	}
	return func() { close(done) }
}

// Write formats and forwards a single event. Errors are swallowed: the
// sink is a best-effort external collaborator, exactly like the ring it
// drains.
func (s *Sink) Write(ev event.Log) {
	dir := "egress"
	if ev.EType == event.Inbound {
		dir = "ingress"
	}
	msg := rfc5424.Message{
		Priority:  rfc5424.Daemon | rfc5424.Info,
		Timestamp: time.Now(),
		Hostname:  s.hostname,
		AppName:   AppName,
		ProcessID: fmt.Sprintf("%d", s.pid),
		MessageID: dir,
		Message:   []byte(describe(ev)),
		StructuredData: []rfc5424.StructuredData{{
			ID:         "elogj@32473",
			Parameters: []rfc5424.SDParam{{Name: "id", Value: s.runID}},
		}},
	}
	b, err := msg.MarshalBinary()
	if err != nil {
		return
	}
	_, _ = s.w.Write(append(b, '\n'))
}

func describe(ev event.Log) string {
	dir := "egress"
	if ev.EType == event.Inbound {
		dir = "ingress"
	}
	return fmt.Sprintf(
		"direction=%s saddr=%s daddr=%s dropped=%d overridden=%d elvls=%v",
		dir, ipString(ev.ERoute[0]), ipString(ev.ERoute[1]),
		ev.EAction[0], ev.EAction[1], ev.ELvls,
	)
}

func ipString(addr uint32) string {
	ip := net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
	return ip.String()
}
