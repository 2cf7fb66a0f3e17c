// Package transcript stores session results on disk.
//
// Every run writes into its own directory, <log_dir>/<batch>_<timestamp>.
// Two formats are available: human-readable YAML files, one per target
// domain, and a single MessagePack stream holding every result of the run
// losslessly.
package transcript

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/synqronlabs/mxprobe"
)

// Transcript formats.
const (
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
	FormatBoth    = "both"
)

// RunDirLayout is the timestamp layout of a run directory suffix.
const RunDirLayout = "20060102T150405"

// Writer is a Sink that must be closed when the run ends.
type Writer interface {
	mxprobe.Sink
	io.Closer
}

// RunDir creates and returns <logDir>/<batch>_<startedAt in UTC>.
func RunDir(logDir, batch string, startedAt time.Time) (string, error) {
	if logDir == "" {
		logDir = mxprobe.DefaultLogDir
	}
	dir := filepath.Join(logDir, batch+"_"+startedAt.UTC().Format(RunDirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	return dir, nil
}

// Open returns the writer for format inside dir.
func Open(dir, format string) (Writer, error) {
	switch format {
	case FormatYAML, "":
		return NewYAMLWriter(dir), nil
	case FormatMsgpack:
		return NewMsgpackWriter(dir)
	case FormatBoth:
		mw, err := NewMsgpackWriter(dir)
		if err != nil {
			return nil, err
		}
		return Multi(NewYAMLWriter(dir), mw), nil
	default:
		return nil, fmt.Errorf("unknown transcript format %q", format)
	}
}

// MultiWriter records every result to all of its sinks.
type MultiWriter struct {
	sinks []mxprobe.Sink
}

// Multi returns a writer that fans results out to sinks, in order.
func Multi(sinks ...mxprobe.Sink) *MultiWriter {
	return &MultiWriter{sinks: sinks}
}

// Record records result to every sink. A failing sink does not prevent the
// others from recording.
func (m *MultiWriter) Record(result *mxprobe.SessionResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

var _ Writer = (*MultiWriter)(nil)

// writeFileAtomic replaces path with data through a temporary file in the
// same directory, so readers never observe a partially written file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
