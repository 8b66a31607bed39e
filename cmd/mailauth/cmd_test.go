package main

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersion/go-mailauth/sasl"
	"github.com/emersion/go-mailauth/smtp"
)

func TestMechanismsCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"mechanisms"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, sasl.Names(), strings.Fields(out.String()))
}

func TestRespond(t *testing.T) {
	mech, err := sasl.New("CRAM-MD5", &sasl.Credential{Username: "tim", Password: "tanstaaftanstaaf"}, nil, nil)
	require.NoError(t, err)

	var (
		out    bytes.Buffer
		logged []interface{}
	)
	in := strings.NewReader("PDE4OTYuNjk3MTcwOTUyQHBvc3RvZmZpY2UucmVzdG9uLm1jaS5uZXQ+\n")
	err = respond(mech, in, &out, func(keyvals ...interface{}) { logged = keyvals })
	require.NoError(t, err)

	assert.Equal(t, "dGltIGI5MTNhNjAyYzdlZGE3YTQ5NWI0ZTZlNzMzNGQzODkw\n", out.String())
	assert.True(t, mech.IsAuthenticated())
	assert.Contains(t, logged, "authenticated")
}

func TestRespond_initialResponse(t *testing.T) {
	mech, err := sasl.New("PLAIN", &sasl.Credential{Username: "user", Password: "pass"}, nil, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	err = respond(mech, strings.NewReader("=\n"), &out, func(...interface{}) {})
	require.NoError(t, err)
	assert.Equal(t, "AHVzZXIAcGFzcw==\n=\n", out.String())
}

func TestRespond_badChallenge(t *testing.T) {
	mech, err := sasl.New("CRAM-MD5", &sasl.Credential{Username: "tim", Password: "tanstaaftanstaaf"}, nil, nil)
	require.NoError(t, err)

	err = respond(mech, strings.NewReader("not base64!\n"), &bytes.Buffer{}, func(...interface{}) {})
	assert.Error(t, err)
}

// serveSMTP accepts one connection and plays a server accepting AUTH PLAIN.
func serveSMTP(t *testing.T, ln net.Listener) <-chan []string {
	done := make(chan []string, 1)
	go func() {
		var lines []string
		defer func() { done <- lines }()

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		reply := func(s string) {
			conn.Write([]byte(s))
		}
		reply("220 mx.example.org ESMTP\r\n")
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			lines = append(lines, line)
			switch {
			case strings.HasPrefix(line, "EHLO "):
				reply("250-mx.example.org\r\n250 AUTH CRAM-MD5 PLAIN\r\n")
			case line == "AUTH PLAIN AHVzZXIAcGFzcw==":
				reply("235 2.7.0 Authentication successful\r\n")
			case strings.HasPrefix(line, "AUTH "):
				reply("535 5.7.8 Authentication credentials invalid\r\n")
			case line == "QUIT":
				reply("221 2.0.0 Bye\r\n")
				return
			default:
				reply("500 5.5.1 Unrecognized command\r\n")
			}
		}
	}()
	return done
}

func TestSMTPAuth(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	done := serveSMTP(t, ln)

	p := &Profile{
		Server:    ln.Addr().String(),
		TLS:       tlsNone,
		Mechanism: "plain",
		Username:  "user",
		Password:  "pass",
	}
	var logs bytes.Buffer
	logger := log.NewLogfmtLogger(&logs)
	err = smtpAuth(context.Background(), p, &smtp.Options{Logger: logger, LocalName: "client.example.org"}, logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"EHLO client.example.org", "AUTH PLAIN AHVzZXIAcGFzcw==", "QUIT"}, <-done)
	assert.Contains(t, logs.String(), "mechanism=PLAIN")
	assert.NotContains(t, logs.String(), "AHVzZXIAcGFzcw==")
}

func TestSMTPAuth_rejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	done := serveSMTP(t, ln)

	p := &Profile{
		Server:   ln.Addr().String(),
		TLS:      tlsNone,
		Username: "user",
		Password: "wrong",
	}
	err = smtpAuth(context.Background(), p, nil, log.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRAM-MD5")

	ln.Close()
	<-done
}
