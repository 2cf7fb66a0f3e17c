package mxprobe

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/synqronlabs/mxprobe/utils"
)

// RunnerBuilder provides a fluent API for configuring a Runner.
type RunnerBuilder struct {
	batch      string
	config     Config
	logger     *slog.Logger
	tasks      []*TaskDefinition
	targets    []TargetRecord
	only       []string
	sink       Sink
	progress   io.Writer
	middleware []Middleware
}

// NewRunner creates a new RunnerBuilder for the named batch.
func NewRunner(batch string) *RunnerBuilder {
	return &RunnerBuilder{
		batch:  batch,
		config: DefaultConfig(),
	}
}

// Config sets the run configuration.
func (b *RunnerBuilder) Config(config Config) *RunnerBuilder {
	b.config = config
	return b
}

// Logger sets the structured logger. It overrides Config.Logger.
func (b *RunnerBuilder) Logger(logger *slog.Logger) *RunnerBuilder {
	b.logger = logger
	return b
}

// Tasks appends tasks. Their order is the order they run in per target.
func (b *RunnerBuilder) Tasks(tasks ...*TaskDefinition) *RunnerBuilder {
	b.tasks = append(b.tasks, tasks...)
	return b
}

// Targets appends target records. Input order does not matter.
func (b *RunnerBuilder) Targets(targets ...TargetRecord) *RunnerBuilder {
	b.targets = append(b.targets, targets...)
	return b
}

// Only restricts the run to the named tasks.
func (b *RunnerBuilder) Only(names ...string) *RunnerBuilder {
	b.only = append(b.only, names...)
	return b
}

// Sink sets the destination of session results. Required.
func (b *RunnerBuilder) Sink(sink Sink) *RunnerBuilder {
	b.sink = sink
	return b
}

// Progress sets the writer for one-line session outcomes.
// Default: io.Discard
func (b *RunnerBuilder) Progress(w io.Writer) *RunnerBuilder {
	b.progress = w
	return b
}

// Use adds middleware around every session. Recovery is always installed
// outside of it.
func (b *RunnerBuilder) Use(middleware ...Middleware) *RunnerBuilder {
	b.middleware = append(b.middleware, middleware...)
	return b
}

// Build validates the configuration and returns a Runner.
// Every configuration error is reported here, before any connection.
func (b *RunnerBuilder) Build() (*Runner, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	config := b.config.withDefaults()

	logger := b.logger
	if logger == nil {
		logger = config.Logger
	}
	config.Logger = logger

	names := make(map[string]bool, len(b.tasks))
	for _, task := range b.tasks {
		if task == nil {
			return nil, fmt.Errorf("%w: nil task", ErrInvalidConfig)
		}
		if err := task.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if names[task.Name] {
			return nil, fmt.Errorf("%w: duplicate task %q", ErrInvalidConfig, task.Name)
		}
		names[task.Name] = true
	}

	if len(b.targets) == 0 {
		return nil, ErrNoTargets
	}

	var only map[string]bool
	if len(b.only) > 0 {
		only = make(map[string]bool, len(b.only))
		var unknown []string
		for _, name := range b.only {
			if !names[name] {
				unknown = append(unknown, name)
				continue
			}
			only[name] = true
		}
		if len(unknown) > 0 {
			available := make([]string, 0, len(names))
			for name := range names {
				available = append(available, name)
			}
			sort.Strings(unknown)
			sort.Strings(available)
			return nil, &UnknownTaskError{Names: slices.Compact(unknown), Available: available}
		}
	}

	if b.sink == nil {
		return nil, ErrNoSink
	}

	progress := b.progress
	if progress == nil {
		progress = io.Discard
	}

	r := &Runner{
		batch:    b.batch,
		runID:    utils.NewID(),
		config:   config,
		logger:   logger,
		tasks:    slices.Clone(b.tasks),
		targets:  slices.Compact(SortTargets(b.targets)),
		only:     only,
		sink:     b.sink,
		progress: progress,
		now:      time.Now,
		sleep:    time.Sleep,
	}

	mw := append([]Middleware{Recovery(logger)}, b.middleware...)
	r.exec = chain(r.runSession, mw...)

	return r, nil
}
