// Package batch loads a batch directory into the mxprobe data model.
//
// A batch directory holds three YAML documents:
//
//	config.yaml      run configuration (optional)
//	task.yaml        command templates and tasks
//	mx_target.yaml   resolved mail exchangers per domain
//
// Every problem found while loading is a fatal configuration error,
// returned as *Error before any session starts.
package batch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/synqronlabs/mxprobe"
)

const (
	ConfigFile = "config.yaml"
	TaskFile   = "task.yaml"
	TargetFile = "mx_target.yaml"
)

// Error is a configuration error located in a batch file.
type Error struct {
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// Batch is a fully loaded batch directory.
type Batch struct {
	Name string
	Dir  string

	Config           mxprobe.Config
	TranscriptFormat string

	Tasks   []*mxprobe.TaskDefinition
	Targets []mxprobe.TargetRecord
}

// Loader loads batch directories.
type Loader struct {
	// Logger receives diagnostics about dropped or suspicious entries.
	// Default: slog.Default()
	Logger *slog.Logger

	// Progress receives one "[*] loading ..." line per file.
	// Default: io.Discard
	Progress io.Writer
}

// Load loads the batch in dir with a default Loader.
func Load(dir string) (*Batch, error) {
	return (&Loader{}).Load(dir)
}

// Load reads and validates the three documents of the batch in dir.
func (l *Loader) Load(dir string) (*Batch, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := l.Progress
	if progress == nil {
		progress = io.Discard
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve batch path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("batch path %s not found: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("batch path %s is not a directory", abs)
	}

	b := &Batch{
		Name: filepath.Base(abs),
		Dir:  abs,
	}

	path := filepath.Join(abs, ConfigFile)
	fmt.Fprintf(progress, "[*] loading config from %s\n", path)
	b.Config, b.TranscriptFormat, err = LoadConfig(path)
	if err != nil {
		return nil, err
	}
	b.Config.Logger = logger

	path = filepath.Join(abs, TaskFile)
	fmt.Fprintf(progress, "[*] loading tasks from %s\n", path)
	b.Tasks, err = LoadTasks(path)
	if err != nil {
		return nil, err
	}

	path = filepath.Join(abs, TargetFile)
	fmt.Fprintf(progress, "[*] loading MX targets from %s\n", path)
	doc, err := LoadTargets(path)
	if err != nil {
		return nil, err
	}
	b.Targets = doc.Records(logger)
	if len(b.Targets) == 0 {
		return nil, fmt.Errorf("%s: %w", path, mxprobe.ErrNoTargets)
	}

	return b, nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &Error{File: path, Msg: "file not found"}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
