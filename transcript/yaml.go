package transcript

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/synqronlabs/mxprobe"
	"github.com/synqronlabs/mxprobe/utils"
)

type yamlEvent struct {
	Direction string `yaml:"direction"`
	Timestamp string `yaml:"timestamp"`
	Raw       string `yaml:"raw"`
	Base64    string `yaml:"base64"`
	EightBit  bool   `yaml:"eight_bit,omitempty"`
	Replies   []int  `yaml:"replies,omitempty,flow"`
}

type yamlSession struct {
	ID           string      `yaml:"id"`
	RunID        string      `yaml:"run_id"`
	Batch        string      `yaml:"batch"`
	Task         string      `yaml:"task"`
	TargetDomain string      `yaml:"target_domain"`
	MXHostname   string      `yaml:"mx_hostname"`
	MXPreference int         `yaml:"mx_preference"`
	MXIP         string      `yaml:"mx_ip"`
	Port         int         `yaml:"port"`
	StartTime    string      `yaml:"start_time"`
	EndTime      string      `yaml:"end_time"`
	Status       string      `yaml:"status"`
	Error        string      `yaml:"error"`
	Events       []yamlEvent `yaml:"events"`
}

// YAMLWriter keeps one <domain>.yaml file per target domain. After each
// session the file is rewritten with every session recorded so far for
// that domain.
type YAMLWriter struct {
	dir string

	mu       sync.Mutex
	sessions map[string][]yamlSession
}

// NewYAMLWriter returns a writer storing files in dir, which must exist.
func NewYAMLWriter(dir string) *YAMLWriter {
	return &YAMLWriter{
		dir:      dir,
		sessions: make(map[string][]yamlSession),
	}
}

// Path returns the file holding the sessions of domain.
func (w *YAMLWriter) Path(domain string) string {
	return filepath.Join(w.dir, fileName(domain)+".yaml")
}

// Record implements mxprobe.Sink.
func (w *YAMLWriter) Record(result *mxprobe.SessionResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := fileName(result.Domain)
	sessions := append(w.sessions[name], toYAML(result))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(sessions); err != nil {
		return fmt.Errorf("encode transcript for %s: %w", result.Domain, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode transcript for %s: %w", result.Domain, err)
	}
	if err := writeFileAtomic(w.Path(result.Domain), buf.Bytes()); err != nil {
		return fmt.Errorf("write transcript for %s: %w", result.Domain, err)
	}

	w.sessions[name] = sessions
	return nil
}

// Close implements io.Closer. Files are complete after every Record.
func (w *YAMLWriter) Close() error {
	return nil
}

var _ Writer = (*YAMLWriter)(nil)

func toYAML(r *mxprobe.SessionResult) yamlSession {
	s := yamlSession{
		ID:           r.ID,
		RunID:        r.RunID,
		Batch:        r.Batch,
		Task:         r.Task,
		TargetDomain: r.Domain,
		MXHostname:   r.Hostname,
		MXPreference: r.Preference,
		MXIP:         r.IP,
		Port:         r.Port,
		StartTime:    formatTime(r.StartTime),
		EndTime:      formatTime(r.EndTime),
		Status:       string(r.Status),
		Error:        r.Error,
		Events:       make([]yamlEvent, 0, len(r.Events)),
	}
	for _, ev := range r.Events {
		e := yamlEvent{
			Direction: string(ev.Direction),
			Timestamp: formatTime(ev.Timestamp),
			Raw:       utils.Visible(ev.Payload),
			Base64:    base64.StdEncoding.EncodeToString(ev.Payload),
			EightBit:  utils.ContainsNonASCII(string(ev.Payload)),
		}
		if ev.Direction == mxprobe.DirectionReceived {
			for _, reply := range mxprobe.ParseReplies(ev.Payload) {
				e.Replies = append(e.Replies, int(reply.Code))
			}
		}
		s.Events = append(s.Events, e)
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// fileName maps a domain to a safe file name stem.
func fileName(domain string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\':
			return '_'
		}
		return r
	}, domain)
	if name == "" || name == "." || name == ".." {
		return "_unknown"
	}
	return name
}
