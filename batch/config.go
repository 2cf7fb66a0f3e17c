package batch

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/synqronlabs/mxprobe"
	"github.com/synqronlabs/mxprobe/transcript"
)

// Transcript formats accepted by the transcript_format key.
const (
	FormatYAML    = transcript.FormatYAML
	FormatMsgpack = transcript.FormatMsgpack
	FormatBoth    = transcript.FormatBoth
)

// Duration is a YAML duration: a number of seconds (1.5) or a Go duration
// string ("1500ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	switch value.Tag {
	case "!!int", "!!float":
		secs, err := strconv.ParseFloat(value.Value, 64)
		if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

type configDocument struct {
	ConnectTimeout          *Duration `yaml:"connect_timeout"`
	CommandTimeout          *Duration `yaml:"command_timeout"`
	BannerTimeout           *Duration `yaml:"banner_timeout"`
	DelayBeforeFirstCommand *Duration `yaml:"delay_before_first_command"`
	DelayBetweenCommands    *Duration `yaml:"delay_between_commands"`
	DelayBetweenHosts       *Duration `yaml:"delay_between_hosts"`
	Port                    *int      `yaml:"port"`
	ReadChunk               *int      `yaml:"read_chunk"`
	LogDir                  *string   `yaml:"log_dir"`
	TranscriptFormat        *string   `yaml:"transcript_format"`
}

// LoadConfig reads config.yaml at path. A missing file yields the defaults.
func LoadConfig(path string) (mxprobe.Config, string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return mxprobe.DefaultConfig(), FormatYAML, nil
		}
		return mxprobe.Config{}, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ParseConfig(f, path)
}

// ParseConfig decodes a config document over the defaults. Unknown keys are
// rejected.
func ParseConfig(r io.Reader, file string) (mxprobe.Config, string, error) {
	config := mxprobe.DefaultConfig()
	format := FormatYAML

	var doc configDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return config, format, nil
		}
		return mxprobe.Config{}, "", &Error{File: file, Msg: err.Error()}
	}

	durations := []struct {
		src *Duration
		dst *time.Duration
	}{
		{doc.ConnectTimeout, &config.ConnectTimeout},
		{doc.CommandTimeout, &config.CommandTimeout},
		{doc.BannerTimeout, &config.BannerTimeout},
		{doc.DelayBeforeFirstCommand, &config.DelayBeforeFirstCommand},
		{doc.DelayBetweenCommands, &config.DelayBetweenCommands},
		{doc.DelayBetweenHosts, &config.DelayBetweenHosts},
	}
	for _, d := range durations {
		if d.src != nil {
			*d.dst = time.Duration(*d.src)
		}
	}

	if doc.Port != nil {
		if *doc.Port < 1 || *doc.Port > 65535 {
			return mxprobe.Config{}, "", &Error{File: file, Msg: fmt.Sprintf("port %d out of range", *doc.Port)}
		}
		config.Port = *doc.Port
	}
	if doc.ReadChunk != nil {
		if *doc.ReadChunk < 1 {
			return mxprobe.Config{}, "", &Error{File: file, Msg: "read_chunk must be positive"}
		}
		config.ReadChunk = *doc.ReadChunk
	}
	if doc.LogDir != nil {
		if *doc.LogDir == "" {
			return mxprobe.Config{}, "", &Error{File: file, Msg: "log_dir must not be empty"}
		}
		config.LogDir = *doc.LogDir
	}
	if doc.TranscriptFormat != nil {
		switch *doc.TranscriptFormat {
		case FormatYAML, FormatMsgpack, FormatBoth:
			format = *doc.TranscriptFormat
		default:
			return mxprobe.Config{}, "", &Error{File: file, Msg: fmt.Sprintf("unknown transcript_format %q", *doc.TranscriptFormat)}
		}
	}

	if err := config.Validate(); err != nil {
		return mxprobe.Config{}, "", &Error{File: file, Msg: err.Error()}
	}
	return config, format, nil
}
