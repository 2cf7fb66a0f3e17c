package mxprobe

import (
	"bytes"
	"fmt"
	"strings"
)

// ReplyCode represents SMTP reply codes (RFC 5321).
// 2yz: Success, 3yz: Continue, 4yz: Transient failure, 5yz: Permanent failure.
type ReplyCode int

const (
	// 2xx - Success
	CodeSystemStatus   ReplyCode = 211
	CodeHelpMessage    ReplyCode = 214
	CodeServiceReady   ReplyCode = 220
	CodeServiceClosing ReplyCode = 221
	CodeOK             ReplyCode = 250

	// 3xx - Intermediate
	CodeStartMailInput ReplyCode = 354

	// 4xx - Transient Failure
	CodeServiceUnavailable ReplyCode = 421
	CodeMailboxUnavailable ReplyCode = 450
	CodeLocalError         ReplyCode = 451

	// 5xx - Permanent Failure
	CodeCommandUnrecognized ReplyCode = 500
	CodeSyntaxError         ReplyCode = 501
	CodeBadSequence         ReplyCode = 503
	CodeMailboxNotFound     ReplyCode = 550
	CodeTransactionFailed   ReplyCode = 554
)

var codeDescriptions = map[ReplyCode]string{
	CodeSystemStatus:        "system status",
	CodeHelpMessage:         "help message",
	CodeServiceReady:        "service ready",
	CodeServiceClosing:      "service closing",
	CodeOK:                  "ok",
	CodeStartMailInput:      "start mail input",
	CodeServiceUnavailable:  "service unavailable",
	CodeMailboxUnavailable:  "mailbox unavailable",
	CodeLocalError:          "local error in processing",
	CodeCommandUnrecognized: "command unrecognized",
	CodeSyntaxError:         "syntax error in parameters",
	CodeBadSequence:         "bad sequence of commands",
	CodeMailboxNotFound:     "mailbox not found",
	CodeTransactionFailed:   "transaction failed",
}

// Class returns the first digit of the code.
func (c ReplyCode) Class() int {
	return int(c) / 100
}

// Description returns the RFC 5321 meaning of well-known codes and ""
// for any other code.
func (c ReplyCode) Description() string {
	return codeDescriptions[c]
}

// Reply is one complete SMTP reply found in received bytes. A multi-line
// reply ("250-a", "250-b", "250 c") is a single Reply.
type Reply struct {
	Code ReplyCode

	// EnhancedCode is the RFC 3463 status code of the first line, if any
	// (e.g. "2.1.5").
	EnhancedCode string

	// Lines holds the text of each line, without code and separator.
	Lines []string
}

// String formats the first line of the reply.
func (r Reply) String() string {
	text := ""
	if len(r.Lines) > 0 {
		text = r.Lines[0]
	}
	if text == "" {
		return fmt.Sprintf("%d", r.Code)
	}
	return fmt.Sprintf("%d %s", r.Code, text)
}

// IsError returns true for 4xx or 5xx codes.
func (r Reply) IsError() bool {
	return r.Code >= 400
}

// IsSuccess returns true for 2xx codes.
func (r Reply) IsSuccess() bool {
	return r.Code >= 200 && r.Code < 300
}

// IsIntermediate returns true for 3xx codes.
func (r Reply) IsIntermediate() bool {
	return r.Code >= 300 && r.Code < 400
}

// IsTransientError returns true for 4xx codes.
func (r Reply) IsTransientError() bool {
	return r.Code >= 400 && r.Code < 500
}

// IsPermanentError returns true for 5xx codes.
func (r Reply) IsPermanentError() bool {
	return r.Code >= 500
}

// Kind names the class of the reply: "success", "intermediate",
// "transient" or "permanent".
func (r Reply) Kind() string {
	switch {
	case r.IsSuccess():
		return "success"
	case r.IsIntermediate():
		return "intermediate"
	case r.IsTransientError():
		return "transient"
	case r.IsPermanentError():
		return "permanent"
	}
	return ""
}

// ParseReplies returns every complete reply in data, in order.
//
// Lines that do not start with a three-digit code abandon the reply in
// progress. A trailing line without "\n" is ignored, as is a multi-line
// reply whose final line has not arrived yet.
func ParseReplies(data []byte) []Reply {
	var (
		replies []Reply
		current *Reply
	)

	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(data[:i]), "\r")
		data = data[i+1:]

		code, sep, text, ok := splitReplyLine(line)
		if !ok || (current != nil && current.Code != code) {
			current = nil
			if !ok {
				continue
			}
		}
		if current == nil {
			current = &Reply{Code: code, EnhancedCode: enhancedCode(code, text)}
		}
		current.Lines = append(current.Lines, text)

		if sep != '-' {
			replies = append(replies, *current)
			current = nil
		}
	}
	return replies
}

// LastReply returns the last complete reply received during a session.
// Received payloads are joined first, so replies split across reads are
// found too.
func LastReply(events []SessionEvent) (Reply, bool) {
	var stream []byte
	for _, ev := range events {
		if ev.Direction == DirectionReceived {
			stream = append(stream, ev.Payload...)
		}
	}
	replies := ParseReplies(stream)
	if len(replies) == 0 {
		return Reply{}, false
	}
	return replies[len(replies)-1], true
}

// splitReplyLine splits "250-text" or "250 text" or "250".
func splitReplyLine(line string) (code ReplyCode, sep byte, text string, ok bool) {
	if len(line) < 3 {
		return 0, 0, "", false
	}
	n := 0
	for i := 0; i < 3; i++ {
		c := line[i]
		if c < '0' || c > '9' {
			return 0, 0, "", false
		}
		n = n*10 + int(c-'0')
	}
	if n < 200 || n > 599 {
		return 0, 0, "", false
	}
	if len(line) == 3 {
		return ReplyCode(n), ' ', "", true
	}
	sep = line[3]
	if sep != ' ' && sep != '-' {
		return 0, 0, "", false
	}
	return ReplyCode(n), sep, line[4:], true
}

// enhancedCode returns the leading "class.subject.detail" token of text
// when its class matches the reply code (RFC 2034).
func enhancedCode(code ReplyCode, text string) string {
	token, _, _ := strings.Cut(text, " ")
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != fmt.Sprint(code.Class()) {
		return ""
	}
	for _, p := range parts[1:] {
		if p == "" || len(p) > 3 {
			return ""
		}
		for i := 0; i < len(p); i++ {
			if p[i] < '0' || p[i] > '9' {
				return ""
			}
		}
	}
	return token
}
