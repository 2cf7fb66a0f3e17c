package batch

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/synqronlabs/mxprobe"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeBatch creates a batch directory with the given files.
func writeBatch(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "b1_test")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

const minimalTasks = `
tasks:
  - name: noop_test
    commands: ["NOOP\r\n"]
`

const minimalTargets = `
example.com:
  - hostname: mx.example.com
    preference: 10
    ips: [192.0.2.1]
`

func TestLoad(t *testing.T) {
	dir := writeBatch(t, map[string]string{
		ConfigFile: "port: 2525\ndelay_between_hosts: 0\n",
		TaskFile:   minimalTasks,
		TargetFile: minimalTargets,
	})

	b, err := (&Loader{Logger: discardLogger()}).Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Name != "b1_test" {
		t.Errorf("Name = %q", b.Name)
	}
	if b.Config.Port != 2525 || b.Config.DelayBetweenHosts != 0 {
		t.Errorf("Config = %+v", b.Config)
	}
	if b.Config.Logger == nil {
		t.Error("Config.Logger not set")
	}
	if len(b.Tasks) != 1 || b.Tasks[0].Name != "noop_test" {
		t.Errorf("Tasks = %v", b.Tasks)
	}
	if len(b.Targets) != 1 || b.Targets[0].IP.String() != "192.0.2.1" {
		t.Errorf("Targets = %v", b.Targets)
	}
}

func TestLoadExampleBatch(t *testing.T) {
	b, err := (&Loader{Logger: discardLogger()}).Load("../examples/batch/b0_example")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Name != "b0_example" {
		t.Errorf("Name = %q", b.Name)
	}

	names := make([]string, 0, len(b.Tasks))
	for _, task := range b.Tasks {
		names = append(names, task.Name)
	}
	if strings.Join(names, ",") != "send_mail_test,noop_test,timeout_test" {
		t.Errorf("tasks = %v", names)
	}

	send := b.Tasks[0]
	if !send.AppliesTo("163.com") || !send.AppliesTo("qq.com") || send.AppliesTo("example.org") {
		t.Error("send_mail_test overrides do not match the example domains")
	}
	cmds, err := send.Render("163.com")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(string(cmds[4].Data), "你好 from smtp tester 163.com") {
		t.Errorf("DATA payload = %q", cmds[4].Data)
	}

	for _, r := range b.Targets {
		if !r.IP.Is4() {
			t.Errorf("non-IPv4 target kept: %v", r)
		}
	}
}

func TestLoadMissingTargets(t *testing.T) {
	dir := writeBatch(t, map[string]string{
		TaskFile: minimalTasks,
		TargetFile: `
example.com:
  - hostname: mx.example.com
    ips: ["2001:db8::1"]
`,
	})

	_, err := (&Loader{Logger: discardLogger()}).Load(dir)
	if !errors.Is(err, mxprobe.ErrNoTargets) {
		t.Errorf("Load() error = %v, want ErrNoTargets", err)
	}
}

func TestLoadMissingFiles(t *testing.T) {
	dir := writeBatch(t, map[string]string{TargetFile: minimalTargets})

	_, err := (&Loader{Logger: discardLogger()}).Load(dir)
	var be *Error
	if !errors.As(err, &be) || !strings.HasSuffix(be.File, TaskFile) {
		t.Errorf("Load() error = %v, want missing task file", err)
	}

	if _, err := Load(filepath.Join(dir, "nope")); err == nil {
		t.Error("Load() accepted a missing directory")
	}
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(t *testing.T, c mxprobe.Config, format string)
		wantErr string
	}{
		{
			name:  "empty document keeps defaults",
			input: "",
			check: func(t *testing.T, c mxprobe.Config, format string) {
				if c.ConnectTimeout != 5*time.Second || c.DelayBetweenHosts != time.Second ||
					c.Port != 25 || c.ReadChunk != 4096 || c.LogDir != "log" || format != FormatYAML {
					t.Errorf("defaults = %+v %s", c, format)
				}
			},
		},
		{
			name:  "seconds and durations",
			input: "connect_timeout: 8\nbanner_timeout: 2.5\ncommand_timeout: 1500ms\ndelay_between_commands: 0\n",
			check: func(t *testing.T, c mxprobe.Config, _ string) {
				if c.ConnectTimeout != 8*time.Second || c.BannerTimeout != 2500*time.Millisecond ||
					c.CommandTimeout != 1500*time.Millisecond || c.DelayBetweenCommands != 0 {
					t.Errorf("durations = %+v", c)
				}
			},
		},
		{
			name:  "transport and output",
			input: "port: 2525\nread_chunk: 512\nlog_dir: out\ntranscript_format: both\n",
			check: func(t *testing.T, c mxprobe.Config, format string) {
				if c.Port != 2525 || c.ReadChunk != 512 || c.LogDir != "out" || format != FormatBoth {
					t.Errorf("config = %+v %s", c, format)
				}
			},
		},
		{name: "unknown key", input: "retries: 3\n", wantErr: "retries"},
		{name: "port out of range", input: "port: 70000\n", wantErr: "port"},
		{name: "zero read chunk", input: "read_chunk: 0\n", wantErr: "read_chunk"},
		{name: "negative delay", input: "delay_between_hosts: -1\n", wantErr: "delay_between_hosts"},
		{name: "bad duration", input: "banner_timeout: soon\n", wantErr: "soon"},
		{name: "unknown format", input: "transcript_format: xml\n", wantErr: "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, format, err := ParseConfig(strings.NewReader(tt.input), "config.yaml")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseConfig() error = %v, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig() error = %v", err)
			}
			tt.check(t, c, format)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	c, format, err := LoadConfig(filepath.Join(t.TempDir(), ConfigFile))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if c.Port != mxprobe.DefaultPort || format != FormatYAML {
		t.Errorf("LoadConfig() = %+v %s, want defaults", c, format)
	}
}
