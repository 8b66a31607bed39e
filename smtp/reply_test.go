package smtp_test

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/emersion/go-mailauth"
	"github.com/emersion/go-mailauth/smtp"
)

func TestReadReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *mailauth.Reply
	}{
		{
			name: "single line",
			raw:  "220 mx.example.org ESMTP ready\r\n",
			want: &mailauth.Reply{Status: 220, Lines: []string{"mx.example.org ESMTP ready"}},
		},
		{
			name: "multi-line",
			raw:  "250-mx.example.org\r\n250-PIPELINING\r\n250 AUTH PLAIN LOGIN\r\n",
			want: &mailauth.Reply{Status: 250, Lines: []string{"mx.example.org", "PIPELINING", "AUTH PLAIN LOGIN"}},
		},
		{
			name: "no text",
			raw:  "354\r\n",
			want: &mailauth.Reply{Status: 354, Lines: []string{""}},
		},
		{
			name: "bare LF",
			raw:  "250 OK\n",
			want: &mailauth.Reply{Status: 250, Lines: []string{"OK"}},
		},
		{
			name: "enhanced code",
			raw:  "550-5.1.1 The email account that you tried to reach\r\n550 5.1.1 does not exist\r\n",
			want: &mailauth.Reply{
				Status:       550,
				EnhancedCode: "5.1.1",
				Lines:        []string{"The email account that you tried to reach", "does not exist"},
			},
		},
		{
			name: "enhanced code class mismatch",
			raw:  "550 2.1.1 odd\r\n",
			want: &mailauth.Reply{Status: 550, Lines: []string{"2.1.1 odd"}},
		},
		{
			name: "challenge",
			raw:  "334 PDE4OTYuNjk3MTcwOTUyQHBvc3RvZmZpY2UuZXhhbXBsZS5uZXQ+\r\n",
			want: &mailauth.Reply{Status: 334, Lines: []string{"PDE4OTYuNjk3MTcwOTUyQHBvc3RvZmZpY2UuZXhhbXBsZS5uZXQ+"}},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			reply, err := smtp.ReadReply(bufio.NewReader(strings.NewReader(tc.raw)))
			if err != nil {
				t.Fatalf("ReadReply() = %v", err)
			}
			if diff := cmp.Diff(tc.want, reply); diff != "" {
				t.Errorf("ReadReply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadReply_malformed(t *testing.T) {
	for _, raw := range []string{
		"25\r\n",
		"abc hello\r\n",
		"250_hello\r\n",
		"650 too big\r\n",
		"250-first\r\n251 second\r\n",
		"250 " + strings.Repeat("a", 5000) + "\r\n",
	} {
		_, err := smtp.ReadReply(bufio.NewReader(strings.NewReader(raw)))
		var protoErr *mailauth.ProtocolError
		if !errors.As(err, &protoErr) {
			t.Errorf("ReadReply(%q) = %v, want *mailauth.ProtocolError", raw, err)
		}
	}
}

func TestReadReply_eof(t *testing.T) {
	for raw, want := range map[string]error{
		"":                  io.EOF,
		"250-partial\r\n":   io.ErrUnexpectedEOF,
		"250 no terminator": io.ErrUnexpectedEOF,
	} {
		_, err := smtp.ReadReply(bufio.NewReader(strings.NewReader(raw)))
		if !errors.Is(err, want) {
			t.Errorf("ReadReply(%q) = %v, want %v", raw, err, want)
		}
	}
}
