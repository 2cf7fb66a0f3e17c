package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/mxprobe"
)

func newTasksCmd(opts *globalOptions) *cobra.Command {
	var b batchOptions

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks of a batch with their placeholders and target domains",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := b.load(cmd, opts, false)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "NAME\tTEMPLATE\tCOMMANDS\tPLACEHOLDERS\tDOMAINS\tDESCRIPTION")
			for _, task := range loaded.Tasks {
				template := task.Template
				if template == "" {
					template = "-"
				}
				fmt.Fprintf(out, "%s\t%s\t%d\t%s\t%s\t%s\n",
					task.Name,
					template,
					len(task.Commands),
					joinNames(taskPlaceholders(task)),
					taskDomains(task),
					task.Description,
				)
			}
			return nil
		},
	}

	b.addFlags(cmd)
	return cmd
}

// taskPlaceholders returns the distinct placeholders of every command of
// task, in order of first appearance.
func taskPlaceholders(task *mxprobe.TaskDefinition) []string {
	var names []string
	for _, c := range task.Commands {
		for _, name := range mxprobe.Placeholders(c.Pattern) {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names
}

func taskDomains(task *mxprobe.TaskDefinition) string {
	if !task.HasOverrides() {
		return "*"
	}
	domains := make([]string, 0, len(task.Targets))
	for domain := range task.Targets {
		domains = append(domains, domain)
	}
	slices.Sort(domains)
	return strings.Join(domains, ",")
}
