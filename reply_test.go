package mxprobe

import (
	"strings"
	"testing"
	"time"
)

func TestParseReplies(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single line", input: "220 mx.example.com ESMTP\r\n", want: []string{"220 mx.example.com ESMTP"}},
		{name: "bare code", input: "250\r\n", want: []string{"250"}},
		{
			name:  "multi-line",
			input: "250-mx.example.com\r\n250-PIPELINING\r\n250 8BITMIME\r\n",
			want:  []string{"250 mx.example.com"},
		},
		{name: "two replies", input: "250 2.1.0 ok\r\n354 go ahead\r\n", want: []string{"250 2.1.0 ok", "354 go ahead"}},
		{name: "incomplete line", input: "250 ok\r\n221 by", want: []string{"250 ok"}},
		{name: "unfinished multi-line", input: "250-a\r\n250-b\r\n", want: nil},
		{name: "garbage", input: "hello\r\n\r\n99 x\r\n2500\r\n", want: nil},
		{name: "bare LF", input: "421 closing\n", want: []string{"421 closing"}},
		{name: "code change abandons", input: "250-a\r\n550 no\r\n", want: []string{"550 no"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, r := range ParseReplies([]byte(tt.input)) {
				got = append(got, r.String())
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("ParseReplies() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplyDetails(t *testing.T) {
	replies := ParseReplies([]byte("250-mx.example.com\r\n250 SIZE 1000\r\n550 5.1.1 no such user\r\n451 2.0.0 mismatched\r\n"))
	if len(replies) != 3 {
		t.Fatalf("got %d replies, want 3", len(replies))
	}

	ehlo := replies[0]
	if ehlo.Code != CodeOK || !ehlo.IsSuccess() || len(ehlo.Lines) != 2 || ehlo.Lines[1] != "SIZE 1000" {
		t.Errorf("multi-line reply = %+v", ehlo)
	}

	rejected := replies[1]
	if rejected.Code != CodeMailboxNotFound || rejected.EnhancedCode != "5.1.1" || !rejected.IsPermanentError() || !rejected.IsError() {
		t.Errorf("rejected reply = %+v", rejected)
	}

	mismatched := replies[2]
	if mismatched.EnhancedCode != "" || !mismatched.IsTransientError() || mismatched.Code.Class() != 4 {
		t.Errorf("class-mismatched enhanced code kept: %+v", mismatched)
	}
}

func TestReplyKindAndDescription(t *testing.T) {
	tests := []struct {
		input    string
		wantKind string
		wantDesc string
	}{
		{"220 mx ready\r\n", "success", "service ready"},
		{"211 status\r\n", "success", "system status"},
		{"214 help\r\n", "success", "help message"},
		{"354 go ahead\r\n", "intermediate", "start mail input"},
		{"421 try later\r\n", "transient", "service unavailable"},
		{"554 5.7.1 rejected\r\n", "permanent", "transaction failed"},
		{"252 cannot verify\r\n", "success", ""},
	}
	for _, tt := range tests {
		replies := ParseReplies([]byte(tt.input))
		if len(replies) != 1 {
			t.Fatalf("ParseReplies(%q) = %d replies, want 1", tt.input, len(replies))
		}
		r := replies[0]
		if got := r.Kind(); got != tt.wantKind {
			t.Errorf("%q Kind() = %q, want %q", tt.input, got, tt.wantKind)
		}
		if got := r.Code.Description(); got != tt.wantDesc {
			t.Errorf("%q Description() = %q, want %q", tt.input, got, tt.wantDesc)
		}
	}
}

func TestLastReply(t *testing.T) {
	now := time.Now()
	events := []SessionEvent{
		{Direction: DirectionReceived, Timestamp: now, Payload: []byte("220 ready\r\n")},
		{Direction: DirectionSent, Timestamp: now, Payload: []byte("EHLO a\r\n")},
		{Direction: DirectionReceived, Timestamp: now, Payload: []byte("250-mx\r\n250-PIPE")},
		{Direction: DirectionReceived, Timestamp: now, Payload: []byte("LINING\r\n250 OK\r\n")},
	}

	reply, ok := LastReply(events)
	if !ok || reply.Code != CodeOK || len(reply.Lines) != 3 || reply.Lines[1] != "PIPELINING" {
		t.Errorf("LastReply() = %+v, %v", reply, ok)
	}

	if _, ok := LastReply(events[1:2]); ok {
		t.Error("LastReply() found a reply in sent data")
	}
}
