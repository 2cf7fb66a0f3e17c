package mxprobe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingPlaceholder = errors.New("mxprobe: missing placeholder value")
	ErrMalformedPattern   = errors.New("mxprobe: malformed command pattern")
	ErrConnectionClosed   = errors.New("mxprobe: connection closed by peer")
	ErrTimeout            = errors.New("mxprobe: timeout")
	ErrSessionUsed        = errors.New("mxprobe: session already run")
	ErrNoTargets          = errors.New("mxprobe: no MX targets")
	ErrUnknownTask        = errors.New("mxprobe: unknown task")
	ErrNoSink             = errors.New("mxprobe: no transcript sink")
	ErrInvalidConfig      = errors.New("mxprobe: invalid config")
)

// MissingPlaceholderError reports a placeholder with no bound value.
type MissingPlaceholderError struct {
	Name string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("mxprobe: missing value for placeholder {%s}", e.Name)
}

func (e *MissingPlaceholderError) Is(target error) bool {
	return target == ErrMissingPlaceholder
}

// UnknownTaskError reports task filter entries that name no loaded task.
type UnknownTaskError struct {
	Names     []string
	Available []string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task(s): %s (available: %s)",
		strings.Join(e.Names, ", "), strings.Join(e.Available, ", "))
}

func (e *UnknownTaskError) Unwrap() error {
	return ErrUnknownTask
}

// Stage identifies the part of a session that failed.
type Stage int

const (
	StageConnect Stage = iota
	StageBanner
	StageSend
	StageResponse
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageConnect:
		return "connect"
	case StageBanner:
		return "banner"
	case StageSend:
		return "send"
	case StageResponse:
		return "response"
	default:
		return "unknown"
	}
}

// SessionError is a fatal session failure. Command holds a printable preview
// of the command in flight for the send and response stages.
type SessionError struct {
	Stage   Stage
	Addr    string
	Command string
	Err     error
}

func (e *SessionError) Error() string {
	switch e.Stage {
	case StageConnect:
		return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
	case StageBanner:
		return fmt.Sprintf("waiting for banner from %s: %v", e.Addr, e.Err)
	case StageSend:
		return fmt.Sprintf("sending %s to %s: %v", e.Command, e.Addr, e.Err)
	default:
		return fmt.Sprintf("waiting for response to %s from %s: %v", e.Command, e.Addr, e.Err)
	}
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the session failed on a deadline.
func (e *SessionError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}
