package mxprobe

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns a Config with short timeouts and no host delay.
func testConfig(port int) Config {
	config := DefaultConfig()
	config.Port = port
	config.ConnectTimeout = 2 * time.Second
	config.BannerTimeout = 2 * time.Second
	config.CommandTimeout = 2 * time.Second
	config.DelayBetweenHosts = 0
	config.Logger = discardLogger()
	return config
}

// startStub listens on a random loopback port and runs handler for every
// accepted connection. The connection is closed when handler returns.
func startStub(t *testing.T, handler func(conn net.Conn)) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handler(conn)
			}()
		}
	}()

	return listener.Addr().(*net.TCPAddr).Port
}

// scriptedServer greets with banner and answers each command line with the
// next reply. Once the replies run out it drains input until the client
// closes.
func scriptedServer(banner string, replies ...string) func(conn net.Conn) {
	return func(conn net.Conn) {
		conn.Write([]byte(banner))
		reader := bufio.NewReader(conn)
		for _, reply := range replies {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			conn.Write([]byte(reply))
		}
		io.Copy(io.Discard, reader)
	}
}

// silentServer accepts and never writes.
func silentServer(conn net.Conn) {
	io.Copy(io.Discard, conn)
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port
}

func loopbackTarget(domain, hostname string, preference int) TargetRecord {
	return TargetRecord{
		Domain:     domain,
		Hostname:   hostname,
		Preference: preference,
		IP:         netip.MustParseAddr("127.0.0.1"),
	}
}

func noopProbeTask(name string) *TaskDefinition {
	return &TaskDefinition{
		Name:     name,
		Template: "noop_probe",
		Commands: []CommandTemplate{
			{Pattern: "EHLO {ehlo}\r\n", ExpectResponse: true},
			{Pattern: "NOOP\r\n", ExpectResponse: true},
			{Pattern: "QUIT\r\n", ExpectResponse: true},
		},
		Values: Values{"ehlo": "default.com"},
	}
}

// memorySink keeps every recorded result.
type memorySink struct {
	results []*SessionResult
}

func (s *memorySink) Record(result *SessionResult) error {
	s.results = append(s.results, result)
	return nil
}
