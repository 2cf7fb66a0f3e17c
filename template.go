package mxprobe

import (
	"bytes"
	"fmt"
	"strings"
)

// Render substitutes every {name} placeholder in pattern with values[name].
//
// Substitution is byte-level and literal: substituted values are never
// expanded again, and bytes outside placeholders are copied unchanged.
// "{{" and "}}" produce literal braces. Nothing is returned on error.
func Render(pattern string, values Values) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(pattern))

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '{':
			if i+1 < len(pattern) && pattern[i+1] == '{' {
				buf.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(pattern[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated placeholder at offset %d", ErrMalformedPattern, i)
			}
			name := pattern[i+1 : i+1+end]
			if name == "" || strings.IndexByte(name, '{') >= 0 {
				return nil, fmt.Errorf("%w: invalid placeholder at offset %d", ErrMalformedPattern, i)
			}
			value, ok := values[name]
			if !ok {
				return nil, &MissingPlaceholderError{Name: name}
			}
			buf.WriteString(value)
			i += end + 2
		case '}':
			if i+1 < len(pattern) && pattern[i+1] == '}' {
				buf.WriteByte('}')
				i += 2
				continue
			}
			return nil, fmt.Errorf("%w: single '}' at offset %d", ErrMalformedPattern, i)
		default:
			buf.WriteByte(c)
			i++
		}
	}
	return buf.Bytes(), nil
}

// Placeholders returns the distinct placeholder names of pattern in order of
// first appearance. Malformed placeholders are ignored.
func Placeholders(pattern string) []string {
	var names []string
	seen := make(map[string]bool)
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '{' {
			continue
		}
		if i+1 < len(pattern) && pattern[i+1] == '{' {
			i++
			continue
		}
		end := strings.IndexByte(pattern[i+1:], '}')
		if end <= 0 {
			continue
		}
		name := pattern[i+1 : i+1+end]
		if strings.IndexByte(name, '{') < 0 && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i += end + 1
	}
	return names
}

// Render resolves the template against values.
func (c CommandTemplate) Render(values Values) (RenderedCommand, error) {
	data, err := Render(c.Pattern, values)
	if err != nil {
		return RenderedCommand{}, err
	}
	return RenderedCommand{
		Data:           data,
		ExpectResponse: c.ExpectResponse,
		PauseAfter:     c.PauseAfter,
	}, nil
}
