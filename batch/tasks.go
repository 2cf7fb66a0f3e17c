package batch

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/synqronlabs/mxprobe"
	"github.com/synqronlabs/mxprobe/dns"
)

// LoadTasks reads task.yaml at path.
func LoadTasks(path string) ([]*mxprobe.TaskDefinition, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTasks(f, path)
}

// ParseTasks decodes a task document:
//
//	templates:
//	  <name>: [<step>, ...]
//	tasks:
//	  - name: <name>
//	    description: <text>
//	    template: <template name>   # or commands: [<step>, ...]
//	    values: {<placeholder>: <scalar>}
//	    targets: {<domain>: {<placeholder>: <scalar>}}
//
// A step is either a scalar pattern or a mapping with data,
// expect_response (default true) and pause_after (default 0).
// Scalars tagged !!binary are decoded to their raw bytes.
func ParseTasks(r io.Reader, file string) ([]*mxprobe.TaskDefinition, error) {
	p := &taskParser{file: file, templates: make(map[string][]mxprobe.CommandTemplate)}

	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{File: file, Msg: "empty task document"}
		}
		return nil, &Error{File: file, Msg: err.Error()}
	}

	root := deref(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, p.errorf(root, "task document must be a mapping with templates and tasks")
	}

	var templatesNode, tasksNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], deref(root.Content[i+1])
		switch key.Value {
		case "templates":
			templatesNode = value
		case "tasks":
			tasksNode = value
		default:
			return nil, p.errorf(key, "unknown key %q", key.Value)
		}
	}

	if templatesNode != nil {
		if err := p.parseTemplates(templatesNode); err != nil {
			return nil, err
		}
	}
	if tasksNode == nil {
		return nil, p.errorf(root, "missing tasks")
	}
	return p.parseTasks(tasksNode)
}

type taskParser struct {
	file      string
	templates map[string][]mxprobe.CommandTemplate
}

func (p *taskParser) errorf(n *yaml.Node, format string, args ...any) error {
	return &Error{File: p.file, Line: n.Line, Msg: fmt.Sprintf(format, args...)}
}

func (p *taskParser) parseTemplates(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return p.errorf(n, "templates must be a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], deref(n.Content[i+1])
		if _, dup := p.templates[key.Value]; dup {
			return p.errorf(key, "duplicate template %q", key.Value)
		}
		steps, err := p.parseSteps(value)
		if err != nil {
			return err
		}
		p.templates[key.Value] = steps
	}
	return nil
}

func (p *taskParser) parseSteps(n *yaml.Node) ([]mxprobe.CommandTemplate, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, p.errorf(n, "command list must be a sequence")
	}
	steps := make([]mxprobe.CommandTemplate, 0, len(n.Content))
	for _, item := range n.Content {
		step, err := p.parseStep(deref(item))
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (p *taskParser) parseStep(n *yaml.Node) (mxprobe.CommandTemplate, error) {
	step := mxprobe.CommandTemplate{ExpectResponse: true}

	switch n.Kind {
	case yaml.ScalarNode:
		data, err := p.scalar(n)
		if err != nil {
			return step, err
		}
		step.Pattern = data
		return step, nil
	case yaml.MappingNode:
	default:
		return step, p.errorf(n, "command must be a string or a mapping with data")
	}

	hasData := false
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], deref(n.Content[i+1])
		switch key.Value {
		case "data":
			data, err := p.scalar(value)
			if err != nil {
				return step, err
			}
			step.Pattern = data
			hasData = true
		case "expect_response":
			if err := value.Decode(&step.ExpectResponse); err != nil {
				return step, p.errorf(value, "expect_response must be a boolean")
			}
		case "pause_after":
			var d Duration
			if err := d.UnmarshalYAML(value); err != nil {
				return step, p.errorf(value, "pause_after: %v", err)
			}
			if d < 0 {
				return step, p.errorf(value, "pause_after must not be negative")
			}
			step.PauseAfter = time.Duration(d)
		default:
			return step, p.errorf(key, "unknown command key %q", key.Value)
		}
	}
	if !hasData {
		return step, p.errorf(n, "command mapping without data")
	}
	return step, nil
}

func (p *taskParser) parseTasks(n *yaml.Node) ([]*mxprobe.TaskDefinition, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, p.errorf(n, "tasks must be a list")
	}

	tasks := make([]*mxprobe.TaskDefinition, 0, len(n.Content))
	seen := make(map[string]bool, len(n.Content))
	for _, item := range n.Content {
		task, err := p.parseTask(deref(item))
		if err != nil {
			return nil, err
		}
		if seen[task.Name] {
			return nil, p.errorf(item, "duplicate task %q", task.Name)
		}
		seen[task.Name] = true
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (p *taskParser) parseTask(n *yaml.Node) (*mxprobe.TaskDefinition, error) {
	if n.Kind != yaml.MappingNode {
		return nil, p.errorf(n, "task must be a mapping")
	}

	task := &mxprobe.TaskDefinition{Values: mxprobe.Values{}}
	var commandsNode, templateNode *yaml.Node

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], deref(n.Content[i+1])
		var err error
		switch key.Value {
		case "name":
			task.Name, err = p.scalar(value)
		case "description":
			task.Description, err = p.scalar(value)
		case "template":
			templateNode = value
		case "commands":
			commandsNode = value
		case "values":
			task.Values, err = p.values(value, "values")
		case "targets":
			task.Targets, err = p.targets(value)
		default:
			err = p.errorf(key, "unknown task key %q", key.Value)
		}
		if err != nil {
			return nil, err
		}
	}

	if task.Name == "" {
		return nil, p.errorf(n, "task missing name")
	}

	switch {
	case templateNode != nil && commandsNode != nil:
		return nil, p.errorf(n, "task %s has both template and commands", task.Name)
	case commandsNode != nil:
		commands, err := p.parseSteps(commandsNode)
		if err != nil {
			return nil, err
		}
		task.Commands = commands
	case templateNode != nil:
		name, err := p.scalar(templateNode)
		if err != nil {
			return nil, err
		}
		commands, ok := p.templates[name]
		if !ok {
			return nil, p.errorf(templateNode, "task %s references missing template %s", task.Name, name)
		}
		task.Template = name
		task.Commands = commands
	default:
		return nil, p.errorf(n, "task %s needs a template or commands", task.Name)
	}

	return task, nil
}

func (p *taskParser) values(n *yaml.Node, what string) (mxprobe.Values, error) {
	if n.Kind != yaml.MappingNode {
		return nil, p.errorf(n, "%s must be a mapping", what)
	}
	values := make(mxprobe.Values, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], deref(n.Content[i+1])
		v, err := p.scalar(value)
		if err != nil {
			return nil, err
		}
		values[key.Value] = v
	}
	return values, nil
}

func (p *taskParser) targets(n *yaml.Node) (map[string]mxprobe.Values, error) {
	if n.Kind != yaml.MappingNode {
		return nil, p.errorf(n, "targets must be a mapping of domain to values")
	}
	targets := make(map[string]mxprobe.Values, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], deref(n.Content[i+1])
		domain := dns.Normalize(key.Value)
		if domain == "" {
			return nil, p.errorf(key, "empty target domain")
		}
		values, err := p.values(value, "targets."+key.Value)
		if err != nil {
			return nil, err
		}
		targets[domain] = values
	}
	return targets, nil
}

// scalar returns the text of a scalar node. !!binary scalars are decoded.
func (p *taskParser) scalar(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", p.errorf(n, "expected a scalar value")
	}
	if n.Tag == "!!binary" {
		var s string
		if err := n.Decode(&s); err != nil {
			return "", p.errorf(n, "invalid binary value: %v", err)
		}
		return s, nil
	}
	return n.Value, nil
}

func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
