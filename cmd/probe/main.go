// Command probe issues an outbound HTTP GET carrying the configured
// logging header and reports the connection's lifecycle telemetry
// through pkg/connwrap, with a tcp_info snapshot at close. It also logs
// the header-offset artifact computed for that header; the egress
// classifier itself is not run against the request.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/higebu/netfd"
	"github.com/sirupsen/logrus"

	"github.com/WillGAndre/eLogJ/pkg/connwrap"
	"github.com/WillGAndre/eLogJ/pkg/headerinfo"
	"github.com/WillGAndre/eLogJ/pkg/tcpinfo"
)

func main() {
	url := flag.String("url", "https://www.golang.org", "target URL to GET")
	header := flag.String("header", "X-Api-Version", "logging header to scan")
	value := flag.String("value", "benign", "value to place in the logging header")
	flag.Parse()

	info, err := headerinfo.Compute(*header)
	if err != nil {
		logrus.Fatalf("headerinfo: %v", err)
	}
	logrus.WithField("name_len", info.NameLen).WithField("name_offset", info.NameOffset).
		Info("computed header artifact")

	client := &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			DisableKeepAlives: true,
			TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := (&net.Dialer{Timeout: 15 * time.Second}).DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				return connwrap.Wrap(conn, reportStats), nil
			},
		},
	}

	req, err := http.NewRequest(http.MethodGet, *url, nil)
	if err != nil {
		logrus.Fatalf("request: %v", err)
	}
	req.Header.Set(*header, *value)

	resp, err := client.Do(req)
	if err != nil {
		logrus.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		logrus.Fatalf("read: %v", err)
	}
	logrus.Infof("complete: %d (%s) with %d bytes", resp.StatusCode, resp.Status, n)
}

func reportStats(c *connwrap.Conn, state int) {
	logrus.Infof("%s: openedAt=%d closedAt=%d sentBytes=%d recvBytes=%d recvErr=%v sentErr=%v",
		connwrap.StateName[state], c.OpenedAt, c.ClosedAt, c.SentBytes, c.RecvBytes, c.RecvErr, c.SentErr)
	if state == connwrap.StateClose {
		if info := connInfo(c.Conn); info != "" {
			logrus.Infof("tcpinfo: %s", info)
		}
	}
}

// connInfo snapshots the kernel's tcp_info for conn, rendered as JSON.
// Must run before the socket is closed.
func connInfo(conn net.Conn) string {
	if !tcpinfo.Supported() {
		return ""
	}
	fd := netfd.GetFdFromConn(conn)
	if fd <= 0 {
		return ""
	}
	snap, err := tcpinfo.GetTCPInfo(fd)
	if err != nil {
		return ""
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	return string(b)
}
