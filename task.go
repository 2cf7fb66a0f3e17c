package mxprobe

import (
	"errors"
	"maps"
	"time"
)

// Values maps placeholder names to their values. Values are byte strings:
// pre-encoded payloads are stored as-is and substituted without conversion.
type Values map[string]string

// Merge returns a new Values with override's entries replacing v's.
func (v Values) Merge(override Values) Values {
	merged := make(Values, len(v)+len(override))
	maps.Copy(merged, v)
	maps.Copy(merged, override)
	return merged
}

// CommandTemplate is one step of a task.
type CommandTemplate struct {
	// Pattern is the raw command, possibly containing {name} placeholders.
	Pattern string
	// ExpectResponse makes the session wait for one reply after sending.
	ExpectResponse bool
	// PauseAfter is slept after the step, on top of the global command delay.
	PauseAfter time.Duration
}

// RenderedCommand is a CommandTemplate resolved for one session.
type RenderedCommand struct {
	Data           []byte
	ExpectResponse bool
	PauseAfter     time.Duration
}

// TaskDefinition is a named command sequence with its placeholder values.
// It is built once at load time and never modified afterwards.
type TaskDefinition struct {
	Name        string
	Description string

	// Template is the name of the template group the commands came from.
	// Empty for inline commands.
	Template string

	Commands []CommandTemplate

	// Values are the base placeholder values.
	Values Values

	// Targets maps a target domain to values merged over Values for that
	// domain. When non-empty, the task only runs against listed domains.
	Targets map[string]Values
}

// Validate checks the invariants a loaded task must satisfy.
func (t *TaskDefinition) Validate() error {
	if t.Name == "" {
		return errors.New("task missing name")
	}
	return nil
}

// HasOverrides reports whether the task declares per-domain values.
func (t *TaskDefinition) HasOverrides() bool {
	return len(t.Targets) > 0
}

// AppliesTo reports whether the task should run against domain.
func (t *TaskDefinition) AppliesTo(domain string) bool {
	if !t.HasOverrides() {
		return true
	}
	_, ok := t.Targets[domain]
	return ok
}

// ValuesFor returns the base values with the domain's override merged on top.
func (t *TaskDefinition) ValuesFor(domain string) Values {
	return t.Values.Merge(t.Targets[domain])
}

// Render resolves every command of the task for domain.
// No commands are returned if any of them fails to render.
func (t *TaskDefinition) Render(domain string) ([]RenderedCommand, error) {
	values := t.ValuesFor(domain)
	rendered := make([]RenderedCommand, 0, len(t.Commands))
	for _, cmd := range t.Commands {
		rc, err := cmd.Render(values)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, rc)
	}
	return rendered, nil
}
