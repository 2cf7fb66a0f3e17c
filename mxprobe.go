// Mxprobe drives scripted SMTP conversations against mail exchangers to
// probe delivery behavior, timeout handling and protocol quirks.
//
// It is not a mail client: the bytes of every command are written by the
// caller as templates and replies are recorded verbatim. Replies never
// steer the conversation; ParseReplies only annotates transcripts.
//
// # Tasks
//
// A task is an ordered list of command templates plus the values that fill
// their placeholders:
//
//	task := &mxprobe.TaskDefinition{
//	    Name: "noop_probe",
//	    Commands: []mxprobe.CommandTemplate{
//	        {Pattern: "EHLO {ehlo}\r\n", ExpectResponse: true},
//	        {Pattern: "NOOP\r\n", ExpectResponse: true},
//	        {Pattern: "QUIT\r\n", ExpectResponse: true},
//	    },
//	    Values: mxprobe.Values{"ehlo": "probe.example.com"},
//	}
//
// Tasks may carry per-domain overrides. A task with overrides only runs
// against the domains it lists.
//
// # Running a batch
//
// Build a runner with the fluent builder API:
//
//	runner, err := mxprobe.NewRunner("b0_example").
//	    Config(mxprobe.DefaultConfig()).
//	    Tasks(task).
//	    Targets(targets...).
//	    Sink(sink).
//	    Progress(os.Stdout).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := runner.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// Targets are visited in a fixed order (domain, preference, hostname, IP),
// one session at a time. A failed session is recorded and the batch moves
// on; only configuration errors stop a run, and they are reported by Build
// before any connection is opened.
//
// # Single sessions
//
// The session driver can be used on its own:
//
//	cmds, err := task.Render("example.com")
//	session := mxprobe.NewSession("192.0.2.10:25", mxprobe.DefaultConfig())
//	err = session.Run(cmds)
//	for _, ev := range session.Events() {
//	    fmt.Printf("%s %q\n", ev.Direction, ev.Payload)
//	}
package mxprobe
