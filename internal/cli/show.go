package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/mxprobe"
	"github.com/synqronlabs/mxprobe/transcript"
	"github.com/synqronlabs/mxprobe/utils"
)

func newShowCmd() *cobra.Command {
	var events bool

	cmd := &cobra.Command{
		Use:   "show <sessions.msgpack>",
		Short: "Print the sessions stored in a MessagePack transcript",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := transcript.ReadMsgpackFile(args[0])
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, res := range results {
				if res.Succeeded() {
					fmt.Fprintf(out, "[+] %s %s (%s) task=%s: success\n",
						res.Domain, res.Hostname, res.IP, res.Task)
				} else {
					fmt.Fprintf(out, "[!] %s %s (%s) task=%s: error: %s\n",
						res.Domain, res.Hostname, res.IP, res.Task, res.Error)
				}
				fmt.Fprintf(out, "    id=%s run=%s start=%s duration=%s events=%d",
					res.ID, res.RunID, res.StartTime.UTC().Format(time.RFC3339Nano), res.Duration(), len(res.Events))
				if reply, ok := mxprobe.LastReply(res.Events); ok {
					fmt.Fprintf(out, " last_reply=%q reply_class=%s", reply.String(), reply.Kind())
					if desc := reply.Code.Description(); desc != "" {
						fmt.Fprintf(out, " meaning=%q", desc)
					}
				}
				fmt.Fprintln(out)

				if !events {
					continue
				}
				for _, ev := range res.Events {
					fmt.Fprintf(out, "    %s %s %s\n",
						ev.Timestamp.UTC().Format("15:04:05.000000"), ev.Direction, utils.Preview(ev.Payload, 0))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&events, "events", "e", false, "Print every event with its exact payload")
	return cmd
}
