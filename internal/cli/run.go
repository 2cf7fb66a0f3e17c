package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/mxprobe"
	"github.com/synqronlabs/mxprobe/batch"
	"github.com/synqronlabs/mxprobe/transcript"
)

type batchOptions struct {
	dir   string
	tasks []string
}

func (o *batchOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.dir, "batch", "b", "", "Path to the batch directory (config.yaml, task.yaml, mx_target.yaml)")
	cmd.Flags().StringSliceVarP(&o.tasks, "tasks", "t", nil, "Only run these tasks (comma separated or repeated)")
}

func (o *batchOptions) load(cmd *cobra.Command, opts *globalOptions, verbose bool) (*batch.Batch, error) {
	if o.dir == "" {
		return nil, usageErrorf("--batch is required")
	}
	loader := &batch.Loader{Logger: opts.logger}
	if verbose {
		loader.Progress = cmd.OutOrStdout()
	}
	return loader.Load(o.dir)
}

// countingSink forwards results and counts the ones that were stored.
type countingSink struct {
	next              mxprobe.Sink
	succeeded, failed int
}

func (s *countingSink) Record(res *mxprobe.SessionResult) error {
	if err := s.next.Record(res); err != nil {
		return err
	}
	if res.Succeeded() {
		s.succeeded++
	} else {
		s.failed++
	}
	return nil
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		b      batchOptions
		format string
		logDir string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every selected task against every target of a batch",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			loaded, err := b.load(cmd, opts, true)
			if err != nil {
				return err
			}

			if format == "" {
				format = loaded.TranscriptFormat
			}
			switch format {
			case transcript.FormatYAML, transcript.FormatMsgpack, transcript.FormatBoth:
			default:
				return usageErrorf("invalid --format %q (want yaml, msgpack or both)", format)
			}
			if logDir == "" {
				logDir = loaded.Config.LogDir
			}

			sink := &countingSink{}

			runner, err := mxprobe.NewRunner(loaded.Name).
				Config(loaded.Config).
				Logger(opts.logger).
				Tasks(loaded.Tasks...).
				Targets(loaded.Targets...).
				Only(b.tasks...).
				Sink(sink).
				Progress(out).
				Use(mxprobe.Logger(opts.logger)).
				Build()
			if err != nil {
				var ute *mxprobe.UnknownTaskError
				if errors.As(err, &ute) {
					printInfo(out, "available tasks: %s", joinNames(ute.Available))
				}
				return err
			}

			dir, err := transcript.RunDir(logDir, loaded.Name, time.Now())
			if err != nil {
				return err
			}
			writer, err := transcript.Open(dir, format)
			if err != nil {
				return err
			}
			sink.next = writer

			printInfo(out, "run %s: %d session(s), %d target(s), transcripts in %s",
				runner.RunID(), len(runner.Plan()), len(runner.Targets()), dir)

			runErr := runner.Run()
			closeErr := writer.Close()
			if runErr != nil {
				return runErr
			}
			if closeErr != nil {
				return fmt.Errorf("close transcripts: %w", closeErr)
			}

			printInfo(out, "done: %d succeeded, %d failed", sink.succeeded, sink.failed)
			return nil
		},
	}

	b.addFlags(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "", "Transcript format: yaml, msgpack or both (default from config.yaml)")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Root directory for transcripts (default from config.yaml)")
	return cmd
}
