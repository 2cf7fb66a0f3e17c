package mxprobe

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/synqronlabs/mxprobe/utils"
)

// Runner executes every selected (target, task) pair of a batch, one
// session at a time, in a deterministic order.
//
// Use NewRunner to build one.
type Runner struct {
	batch    string
	runID    string
	config   Config
	logger   *slog.Logger
	tasks    []*TaskDefinition
	targets  []TargetRecord
	only     map[string]bool
	sink     Sink
	progress io.Writer
	exec     SessionFunc

	now   func() time.Time
	sleep func(time.Duration)
}

// RunID returns the identifier shared by every result of this runner.
func (r *Runner) RunID() string {
	return r.runID
}

// Targets returns the targets in visiting order.
func (r *Runner) Targets() []TargetRecord {
	return append([]TargetRecord(nil), r.targets...)
}

// Plan returns the pairs Run will execute, in execution order.
//
// Targets are visited in CompareTargets order and tasks in declaration
// order. A task is left out when a task filter excludes it, or when it has
// per-domain overrides that do not list the target's domain.
func (r *Runner) Plan() []Pair {
	var pairs []Pair
	for _, target := range r.targets {
		for _, task := range r.tasks {
			if r.only != nil && !r.only[task.Name] {
				continue
			}
			if !task.AppliesTo(target.Domain) {
				continue
			}
			pairs = append(pairs, Pair{Target: target, Task: task})
		}
	}
	return pairs
}

// Run executes the plan. Session failures never stop the run; they are
// recorded as error results. Run only fails when the sink cannot store a
// result.
func (r *Runner) Run() error {
	pairs := r.Plan()
	r.logger.Info("run started",
		slog.String("run_id", r.runID),
		slog.String("batch", r.batch),
		slog.Int("sessions", len(pairs)),
		slog.Int("targets", len(r.targets)),
	)

	for i, p := range pairs {
		// Pause between visited targets only; targets with nothing planned
		// are not visited.
		if i > 0 && pairs[i-1].Target != p.Target && r.config.DelayBetweenHosts > 0 {
			r.sleep(r.config.DelayBetweenHosts)
		}

		res := r.execute(p)
		if err := r.sink.Record(res); err != nil {
			return fmt.Errorf("record session %s on %s: %w", p.Task.Name, p.Target.IP, err)
		}
		r.report(res)
	}

	r.logger.Info("run finished", slog.String("run_id", r.runID))
	return nil
}

// execute runs one pair through the middleware chain and stamps the
// identifying fields of the result.
func (r *Runner) execute(p Pair) *SessionResult {
	start := r.now()
	res := r.exec(p)
	if res == nil {
		res = &SessionResult{Status: StatusError, Error: "unexpected: no session result"}
	}

	if res.ID == "" {
		res.ID = utils.NewID()
	}
	res.RunID = r.runID
	res.Batch = r.batch
	res.Task = p.Task.Name
	res.Domain = p.Target.Domain
	res.Hostname = p.Target.Hostname
	res.Preference = p.Target.Preference
	res.IP = p.Target.IP.String()
	res.Port = r.config.Port
	if res.StartTime.IsZero() {
		res.StartTime = start
	}
	if res.EndTime.IsZero() {
		res.EndTime = r.now()
	}
	return res
}

// runSession is the innermost SessionFunc: render, then drive a fresh
// session.
func (r *Runner) runSession(p Pair) *SessionResult {
	res := &SessionResult{
		StartTime: r.now(),
		Status:    StatusSuccess,
	}

	cmds, err := p.Task.Render(p.Target.Domain)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		res.EndTime = r.now()
		return res
	}

	session := NewSession(p.Target.Addr(r.config.Port), r.config)
	session.logger = r.logger.With(
		slog.String("task", p.Task.Name),
		slog.String("addr", p.Target.Addr(r.config.Port)),
	)
	session.sleep = r.sleep
	defer func() {
		if v := recover(); v != nil {
			panic(&sessionPanic{value: v, events: session.Events()})
		}
	}()

	if err := session.Run(cmds); err != nil {
		res.Status = StatusError
		res.Error = err.Error()
	}
	res.Events = session.Events()
	res.EndTime = r.now()
	return res
}

func (r *Runner) report(res *SessionResult) {
	if res.Succeeded() {
		fmt.Fprintf(r.progress, "[+] %s %s (%s) task=%s: success\n",
			res.Domain, res.Hostname, res.IP, res.Task)
		return
	}
	fmt.Fprintf(r.progress, "[!] %s %s (%s) task=%s: error: %s\n",
		res.Domain, res.Hostname, res.IP, res.Task, res.Error)
}
