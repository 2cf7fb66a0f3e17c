package mxprobe

import (
	"fmt"
	"log/slog"
)

// Pair is one (target, task) combination scheduled by a Runner.
type Pair struct {
	Target TargetRecord
	Task   *TaskDefinition
}

// SessionFunc executes one pair and returns its result.
type SessionFunc func(p Pair) *SessionResult

// Middleware wraps session execution to add functionality.
type Middleware func(SessionFunc) SessionFunc

// ---- Built-in Middleware ----

// Logger returns middleware that logs the outcome of every session.
func Logger(logger *slog.Logger) Middleware {
	return func(next SessionFunc) SessionFunc {
		return func(p Pair) *SessionResult {
			res := next(p)

			attrs := []any{
				slog.String("task", p.Task.Name),
				slog.String("domain", p.Target.Domain),
				slog.String("mx", p.Target.Hostname),
				slog.String("ip", p.Target.IP.String()),
				slog.String("status", string(res.Status)),
				slog.Int("events", len(res.Events)),
				slog.Duration("duration", res.Duration()),
			}
			if reply, ok := LastReply(res.Events); ok {
				attrs = append(attrs,
					slog.Int("last_reply", int(reply.Code)),
					slog.String("reply_class", reply.Kind()),
				)
				if reply.IsError() && reply.EnhancedCode != "" {
					attrs = append(attrs, slog.String("enhanced_code", reply.EnhancedCode))
				}
			}

			if res.Succeeded() {
				logger.Info("session completed", attrs...)
			} else {
				logger.Warn("session failed", append(attrs, slog.String("error", res.Error))...)
			}

			return res
		}
	}
}

// sessionPanic carries the events captured by a session that panicked, so
// Recovery can keep the partial transcript.
type sessionPanic struct {
	value  any
	events []SessionEvent
}

func (p *sessionPanic) String() string {
	return fmt.Sprint(p.value)
}

// Recovery returns middleware that turns a panic into an error result.
// Events captured by the session before the panic are kept.
func Recovery(logger *slog.Logger) Middleware {
	return func(next SessionFunc) SessionFunc {
		return func(p Pair) (res *SessionResult) {
			defer func() {
				if r := recover(); r != nil {
					var events []SessionEvent
					if sp, ok := r.(*sessionPanic); ok {
						r, events = sp.value, sp.events
					}
					logger.Error("panic recovered",
						slog.String("task", p.Task.Name),
						slog.String("ip", p.Target.IP.String()),
						slog.Any("panic", r),
						slog.Int("events", len(events)),
					)
					res = &SessionResult{
						Status: StatusError,
						Error:  fmt.Sprintf("unexpected: %v", r),
						Events: events,
					}
				}
			}()
			return next(p)
		}
	}
}

// chain applies middleware so that the first one is the outermost.
func chain(core SessionFunc, middleware ...Middleware) SessionFunc {
	fn := core
	for i := len(middleware) - 1; i >= 0; i-- {
		fn = middleware[i](fn)
	}
	return fn
}
