package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/mxprobe"
)

func newTargetsCmd(opts *globalOptions) *cobra.Command {
	var b batchOptions

	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Show targets in run order with the tasks each one will receive",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := b.load(cmd, opts, false)
			if err != nil {
				return err
			}

			runner, err := mxprobe.NewRunner(loaded.Name).
				Config(loaded.Config).
				Logger(opts.logger).
				Tasks(loaded.Tasks...).
				Targets(loaded.Targets...).
				Only(b.tasks...).
				Sink(mxprobe.SinkFunc(func(*mxprobe.SessionResult) error { return nil })).
				Build()
			if err != nil {
				return err
			}

			planned := make(map[mxprobe.TargetRecord][]string)
			for _, p := range runner.Plan() {
				planned[p.Target] = append(planned[p.Target], p.Task.Name)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "DOMAIN\tPREFERENCE\tHOSTNAME\tIP\tTASKS")
			for _, t := range runner.Targets() {
				fmt.Fprintf(out, "%s\t%d\t%s\t%s\t%s\n",
					t.Domain, t.Preference, t.Hostname, t.IP, joinNames(planned[t]))
			}
			return nil
		},
	}

	b.addFlags(cmd)
	return cmd
}
