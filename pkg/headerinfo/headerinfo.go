// Package headerinfo computes the two artifacts the loader used to bake
// into the kernel programs at build time: the decimal-ASCII byte sequence
// of the configured logging header name (HEADER_SEQ), and its offset
// within a baseline HTTP request (LOGGER_INFO). Since this build resolves
// both at process start instead of at a separate compile step, the
// result is handed to pkg/egress and pkg/ingress as plain values.
package headerinfo

import "fmt"

// baseline mirrors the canonical request the loader measures offsets
// against: a GET / HTTP/1.1 request line followed by the Host,
// User-agent and Accept headers, in that order, with the configured
// header appended last.
const (
	requestLine   = "GET / HTTP/1.1\r\n"
	hostHeader    = "Host: localhost\r\n"
	uaHeader      = "User-agent: elogj\r\n"
	acceptHeader  = "Accept: */*\r\n"
	headerSep     = ": "
	headerLineEnd = "\r\n"
)

// Info bundles the two artifacts for one configured header name.
type Info struct {
	// NameLen is len(name).
	NameLen int
	// NameOffset is the byte offset from the start of the HTTP payload
	// to the first byte of the header name in the baseline request.
	NameOffset int
	// Seq is the decimal-ASCII byte sequence of the header name itself
	// (HEADER_SEQ in the source artifact).
	Seq []byte
}

// Compute builds the Info for the given header name, e.g. "X-Api-Version".
func Compute(name string) (Info, error) {
	if name == "" {
		return Info{}, fmt.Errorf("headerinfo: empty header name")
	}

	prefix := requestLine + hostHeader + uaHeader + acceptHeader
	offset := len(prefix)

	return Info{
		NameLen:    len(name),
		NameOffset: offset,
		Seq:        []byte(name),
	}, nil
}

// Baseline renders the full baseline request (prefix headers plus the
// configured header with the given value), mainly useful for tests that
// want to exercise pkg/egress against a realistic payload.
func Baseline(name, value string) []byte {
	req := requestLine + hostHeader + uaHeader + acceptHeader +
		name + headerSep + value + headerLineEnd + headerLineEnd
	return []byte(req)
}
