package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/synqronlabs/mxprobe"
	"github.com/synqronlabs/mxprobe/transcript"
)

// startSMTPStub answers EHLO, NOOP and QUIT on a loopback port.
func startSMTPStub(t *testing.T) int {
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
				conn.Write([]byte("220 mx ready\r\n"))
				reader := bufio.NewReader(conn)
				for _, reply := range []string{"250 hello\r\n", "250 ok\r\n", "221 bye\r\n"} {
					if _, err := reader.ReadString('\n'); err != nil {
						return
					}
					conn.Write([]byte(reply))
				}
				io.Copy(io.Discard, reader)
			}()
		}
	}()

	return listener.Addr().(*net.TCPAddr).Port
}

// writeBatch creates a batch directory probing 127.0.0.1 on port.
func writeBatch(t *testing.T, port int) (dir, logDir string) {
	t.Helper()

	root := t.TempDir()
	dir = filepath.Join(root, "b1_cli")
	logDir = filepath.Join(root, "log")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		"config.yaml": fmt.Sprintf(
			"port: %d\nconnect_timeout: 2\nbanner_timeout: 2\ncommand_timeout: 2\ndelay_between_hosts: 0\nlog_dir: %q\ntranscript_format: both\n",
			port, logDir),
		"task.yaml": `
templates:
  noop_probe:
    - "EHLO {ehlo}\r\n"
    - "NOOP\r\n"
    - "QUIT\r\n"
tasks:
  - name: noop_test
    description: liveness probe
    template: noop_probe
    values:
      ehlo: default.com
  - name: only_qq
    commands: ["NOOP\r\n"]
    targets:
      qq.com: {}
`,
		"mx_target.yaml": `
example.com:
  - hostname: mx.example.com
    preference: 10
    ips: [127.0.0.1]
`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, logDir
}

func execute(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = Execute(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunAndShow(t *testing.T) {
	dir, logDir := writeBatch(t, startSMTPStub(t))

	code, stdout, stderr := execute("run", "--batch", dir)
	if code != 0 {
		t.Fatalf("run exited %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	for _, want := range []string{
		"[*] loading config from ",
		"[*] loading tasks from ",
		"[*] loading MX targets from ",
		"[+] example.com mx.example.com (127.0.0.1) task=noop_test: success\n",
		"[*] done: 1 succeeded, 0 failed\n",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "only_qq") {
		t.Errorf("task with overrides ran against an unlisted domain:\n%s", stdout)
	}

	runs, err := filepath.Glob(filepath.Join(logDir, "b1_cli_*"))
	if err != nil || len(runs) != 1 {
		t.Fatalf("run directories = %v (%v), want 1", runs, err)
	}
	if _, err := os.Stat(filepath.Join(runs[0], "example.com.yaml")); err != nil {
		t.Errorf("YAML transcript missing: %v", err)
	}

	code, stdout, stderr = execute("show", "--events", filepath.Join(runs[0], transcript.MsgpackFile))
	if code != 0 {
		t.Fatalf("show exited %d: %s", code, stderr)
	}
	for _, want := range []string{
		"[+] example.com mx.example.com (127.0.0.1) task=noop_test: success",
		"events=7",
		`last_reply="221 bye" reply_class=success meaning="service closing"`,
		`recv "220 mx ready\r\n"`,
		`send "EHLO default.com\r\n"`,
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("show output missing %q:\n%s", want, stdout)
		}
	}
}

func TestCountingSinkCountsStoredResults(t *testing.T) {
	diskFull := errors.New("disk full")
	fail := false
	sink := &countingSink{next: mxprobe.SinkFunc(func(*mxprobe.SessionResult) error {
		if fail {
			return diskFull
		}
		return nil
	})}

	ok := &mxprobe.SessionResult{Status: mxprobe.StatusSuccess}
	bad := &mxprobe.SessionResult{Status: mxprobe.StatusError, Error: "timeout"}
	for _, res := range []*mxprobe.SessionResult{ok, bad} {
		if err := sink.Record(res); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	fail = true
	if err := sink.Record(ok); !errors.Is(err, diskFull) {
		t.Errorf("Record() error = %v, want %v", err, diskFull)
	}
	if err := sink.Record(bad); !errors.Is(err, diskFull) {
		t.Errorf("Record() error = %v, want %v", err, diskFull)
	}
	if sink.succeeded != 1 || sink.failed != 1 {
		t.Errorf("counted %d succeeded, %d failed; want 1, 1", sink.succeeded, sink.failed)
	}
}

func TestTasksAndTargets(t *testing.T) {
	dir, _ := writeBatch(t, 25)

	code, stdout, stderr := execute("tasks", "-b", dir)
	if code != 0 {
		t.Fatalf("tasks exited %d: %s", code, stderr)
	}
	for _, want := range []string{
		"noop_test\tnoop_probe\t3\tehlo\t*\tliveness probe\n",
		"only_qq\t-\t1\t-\tqq.com\t\n",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("tasks output missing %q:\n%s", want, stdout)
		}
	}

	code, stdout, stderr = execute("targets", "-b", dir)
	if code != 0 {
		t.Fatalf("targets exited %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "example.com\t10\tmx.example.com\t127.0.0.1\tnoop_test\n") {
		t.Errorf("targets output:\n%s", stdout)
	}
}

func TestExitCodes(t *testing.T) {
	dir, _ := writeBatch(t, 25)

	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStderr string
		wantStdout string
	}{
		{name: "missing batch flag", args: []string{"run"}, wantCode: 2, wantStderr: "[!] --batch is required"},
		{name: "unknown flag", args: []string{"run", "--bogus"}, wantCode: 2, wantStderr: "[!] unknown flag"},
		{name: "unknown command", args: []string{"bogus"}, wantCode: 2, wantStderr: "[!] unknown command"},
		{name: "bad log format", args: []string{"--log-format", "xml", "tasks", "-b", dir}, wantCode: 2, wantStderr: "--log-format"},
		{name: "extra argument", args: []string{"show"}, wantCode: 2, wantStderr: "[!] "},
		{name: "missing batch dir", args: []string{"run", "--batch", filepath.Join(dir, "nope")}, wantCode: 1, wantStderr: "not found"},
		{
			name:       "unknown task",
			args:       []string{"run", "--batch", dir, "--tasks", "nope,noop_test"},
			wantCode:   1,
			wantStderr: "[!] unknown task(s): nope",
			wantStdout: "[*] available tasks: noop_test, only_qq\n",
		},
		{name: "bad format", args: []string{"run", "--batch", dir, "--format", "xml"}, wantCode: 2, wantStderr: "--format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := execute(tt.args...)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stderr: %s)", code, tt.wantCode, stderr)
			}
			if !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want %q", stderr, tt.wantStderr)
			}
			if tt.wantStdout != "" && !strings.Contains(stdout, tt.wantStdout) {
				t.Errorf("stdout = %q, want %q", stdout, tt.wantStdout)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	code, stdout, _ := execute("version")
	if code != 0 || stdout != "mxprobe dev\n" {
		t.Errorf("version = %d %q", code, stdout)
	}
}
