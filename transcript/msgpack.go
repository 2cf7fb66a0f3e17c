package transcript

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tinylib/msgp/msgp"

	"github.com/synqronlabs/mxprobe"
)

// MsgpackFile is the name of the MessagePack stream inside a run directory.
const MsgpackFile = "sessions.msgpack"

// Reader limits. Sizes in a stream are not trusted until the bytes
// behind them have been read.
const (
	maxPayloadSize  = 64 << 20
	maxStringLength = 1 << 20
	eventsPrealloc  = 1024
)

// MsgpackWriter appends each result as one MessagePack map to
// sessions.msgpack. Payloads are stored as raw binary, so the stream
// round-trips every byte of every event.
type MsgpackWriter struct {
	path string

	mu sync.Mutex
	f  *os.File
	w  *msgp.Writer
}

// NewMsgpackWriter opens dir/sessions.msgpack for appending.
func NewMsgpackWriter(dir string) (*MsgpackWriter, error) {
	path := filepath.Join(dir, MsgpackFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &MsgpackWriter{path: path, f: f, w: msgp.NewWriter(f)}, nil
}

// Path returns the file the writer appends to.
func (w *MsgpackWriter) Path() string {
	return w.path
}

// Record implements mxprobe.Sink. Each result is flushed before Record
// returns.
func (w *MsgpackWriter) Record(result *mxprobe.SessionResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return fmt.Errorf("record to %s: %w", w.path, os.ErrClosed)
	}
	if err := encodeResult(w.w, result); err != nil {
		return fmt.Errorf("encode session %s: %w", result.ID, err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	return nil
}

// Close flushes and closes the stream.
func (w *MsgpackWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	flushErr := w.w.Flush()
	closeErr := w.f.Close()
	w.f = nil
	return errors.Join(flushErr, closeErr)
}

var _ Writer = (*MsgpackWriter)(nil)

// ReadMsgpack decodes every result of a stream written by MsgpackWriter.
// Unknown keys are skipped. A damaged stream returns the results decoded
// before the damage together with an error.
func ReadMsgpack(r io.Reader) ([]*mxprobe.SessionResult, error) {
	rd := msgp.NewReaderSize(r, 64<<10)
	rd.SetMaxElements(maxPayloadSize)
	rd.SetMaxStringLength(maxStringLength)
	var results []*mxprobe.SessionResult
	for {
		result, err := decodeResult(rd)
		if err != nil {
			if errors.Is(err, io.EOF) && result == nil {
				return results, nil
			}
			return results, fmt.Errorf("decode session %d: %w", len(results)+1, err)
		}
		results = append(results, result)
	}
}

// ReadMsgpackFile decodes the stream stored at path.
func ReadMsgpackFile(path string) ([]*mxprobe.SessionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMsgpack(f)
}

func encodeResult(w *msgp.Writer, r *mxprobe.SessionResult) error {
	if err := w.WriteMapHeader(14); err != nil {
		return err
	}
	fields := []struct {
		key, value string
	}{
		{"id", r.ID},
		{"run_id", r.RunID},
		{"batch", r.Batch},
		{"task", r.Task},
		{"domain", r.Domain},
		{"hostname", r.Hostname},
		{"ip", r.IP},
		{"status", string(r.Status)},
		{"error", r.Error},
	}
	for _, kv := range fields {
		if err := writeString(w, kv.key, kv.value); err != nil {
			return err
		}
	}
	if err := writeInt(w, "preference", r.Preference); err != nil {
		return err
	}
	if err := writeInt(w, "port", r.Port); err != nil {
		return err
	}
	if err := w.WriteString("start_time"); err != nil {
		return err
	}
	if err := w.WriteTime(r.StartTime); err != nil {
		return err
	}
	if err := w.WriteString("end_time"); err != nil {
		return err
	}
	if err := w.WriteTime(r.EndTime); err != nil {
		return err
	}

	if err := w.WriteString("events"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(uint32(len(r.Events))); err != nil {
		return err
	}
	for _, ev := range r.Events {
		if err := w.WriteMapHeader(3); err != nil {
			return err
		}
		if err := writeString(w, "direction", string(ev.Direction)); err != nil {
			return err
		}
		if err := w.WriteString("timestamp"); err != nil {
			return err
		}
		if err := w.WriteTime(ev.Timestamp); err != nil {
			return err
		}
		if err := w.WriteString("payload"); err != nil {
			return err
		}
		if err := w.WriteBytes(ev.Payload); err != nil {
			return err
		}
	}
	return nil
}

func writeString(w *msgp.Writer, key, value string) error {
	if err := w.WriteString(key); err != nil {
		return err
	}
	return w.WriteString(value)
}

func writeInt(w *msgp.Writer, key string, value int) error {
	if err := w.WriteString(key); err != nil {
		return err
	}
	return w.WriteInt(value)
}

// decodeResult returns a nil result and io.EOF at a clean end of stream.
func decodeResult(rd *msgp.Reader) (*mxprobe.SessionResult, error) {
	n, err := rd.ReadMapHeader()
	if err != nil {
		return nil, err
	}

	r := &mxprobe.SessionResult{}
	for range n {
		key, err := rd.ReadMapKeyPtr()
		if err != nil {
			return r, err
		}
		name := string(key)
		switch name {
		case "id":
			r.ID, err = rd.ReadString()
		case "run_id":
			r.RunID, err = rd.ReadString()
		case "batch":
			r.Batch, err = rd.ReadString()
		case "task":
			r.Task, err = rd.ReadString()
		case "domain":
			r.Domain, err = rd.ReadString()
		case "hostname":
			r.Hostname, err = rd.ReadString()
		case "ip":
			r.IP, err = rd.ReadString()
		case "status":
			var s string
			s, err = rd.ReadString()
			r.Status = mxprobe.Status(s)
		case "error":
			r.Error, err = rd.ReadString()
		case "preference":
			r.Preference, err = rd.ReadInt()
		case "port":
			r.Port, err = rd.ReadInt()
		case "start_time":
			r.StartTime, err = rd.ReadTime()
		case "end_time":
			r.EndTime, err = rd.ReadTime()
		case "events":
			r.Events, err = decodeEvents(rd)
		default:
			err = rd.Skip()
		}
		if err != nil {
			return r, fmt.Errorf("field %s: %w", name, err)
		}
	}
	return r, nil
}

func decodeEvents(rd *msgp.Reader) ([]mxprobe.SessionEvent, error) {
	n, err := rd.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	events := make([]mxprobe.SessionEvent, 0, min(n, eventsPrealloc))
	for range n {
		fields, err := rd.ReadMapHeader()
		if err != nil {
			return events, err
		}
		var ev mxprobe.SessionEvent
		for range fields {
			key, err := rd.ReadMapKeyPtr()
			if err != nil {
				return events, err
			}
			switch string(key) {
			case "direction":
				var d string
				d, err = rd.ReadString()
				ev.Direction = mxprobe.Direction(d)
			case "timestamp":
				ev.Timestamp, err = rd.ReadTime()
			case "payload":
				ev.Payload, err = rd.ReadBytes(nil)
			default:
				err = rd.Skip()
			}
			if err != nil {
				return events, err
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
