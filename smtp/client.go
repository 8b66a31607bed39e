// Package smtp implements an SMTP client protocol adapter.
//
// The client drives SASL mechanisms through the AUTH command (RFC 4954) and
// classifies server replies into the mailauth error taxonomy. It doesn't send
// message data.
package smtp

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/emersion/go-mailauth"
	"github.com/emersion/go-mailauth/netstream"
)

// Options contains options for Client.
type Options struct {
	// Raw ingress and egress data will be written to this writer, if any.
	// This includes credentials sent during authentication.
	DebugWriter io.Writer
	// Logger receives debug and warning messages. Secrets are never logged.
	// Defaults to a no-op logger.
	Logger log.Logger
	// Timeouts applied to each read and write on the connection. Zero means
	// no timeout.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// LocalName is the host name sent with EHLO. Defaults to "localhost".
	LocalName string
}

func (options *Options) wrapReadWriter(rw io.ReadWriter) io.ReadWriter {
	if options.DebugWriter == nil {
		return rw
	}
	return struct {
		io.Reader
		io.Writer
	}{
		Reader: io.TeeReader(rw, options.DebugWriter),
		Writer: io.MultiWriter(rw, options.DebugWriter),
	}
}

// Client is an SMTP client.
//
// Commands are sent synchronously: each method blocks until the server
// replied. A Client is not safe for concurrent use.
//
// Once a method returned a *mailauth.ProtocolError, the client is unusable and
// every later call fails with the same error.
type Client struct {
	stream  *netstream.Stream
	options Options
	logger  log.Logger
	br      *bufio.Reader
	bw      *bufio.Writer

	greeting   *mailauth.Reply
	helloDone  bool
	extensions map[string]string
	err        error
}

// New creates a new SMTP client and reads the server greeting.
//
// A nil options pointer is equivalent to a zero options value.
func New(conn net.Conn, options *Options) (*Client, error) {
	if options == nil {
		options = &Options{}
	}

	stream := netstream.New(conn)
	if options.ReadTimeout > 0 {
		if err := stream.SetReadTimeout(options.ReadTimeout); err != nil {
			return nil, err
		}
	}
	if options.WriteTimeout > 0 {
		if err := stream.SetWriteTimeout(options.WriteTimeout); err != nil {
			return nil, err
		}
	}

	logger := options.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	rw := options.wrapReadWriter(stream)
	c := &Client{
		stream:  stream,
		options: *options,
		logger:  log.With(logger, "component", "smtp", "server", conn.RemoteAddr()),
		br:      bufio.NewReader(rw),
		bw:      bufio.NewWriter(rw),
	}

	reply, err := ReadReply(c.br)
	if err := mailauth.Classify(&mailauth.Command{Name: "greeting"}, reply, err); err != nil {
		return nil, err
	}
	if reply.Status != mailauth.StatusServiceReady {
		return nil, mailauth.NewCommandError(mailauth.ErrorCodeUnexpectedStatus, reply.Status, reply.Text(), nil)
	}
	c.greeting = reply
	level.Debug(c.logger).Log("msg", "connected", "greeting", reply.Text())
	return c, nil
}

// Dial connects to an SMTP server without TLS.
func Dial(address string, options *Options) (*Client, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	c, err := New(conn, options)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// DialTLS connects to an SMTP server with implicit TLS.
func DialTLS(address string, config *tls.Config, options *Options) (*Client, error) {
	conn, err := tls.Dial("tcp", address, config)
	if err != nil {
		return nil, err
	}
	c, err := New(conn, options)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Greeting returns the reply the server sent upon connection.
func (c *Client) Greeting() *mailauth.Reply {
	return c.greeting
}

// Close immediately closes the connection.
func (c *Client) Close() error {
	return c.stream.Close()
}

// Err returns the error which made the client unusable, if any.
func (c *Client) Err() error {
	return c.err
}

// fail marks the client unusable if err is a protocol error.
func (c *Client) fail(err error) error {
	var protoErr *mailauth.ProtocolError
	if c.err == nil && errors.As(err, &protoErr) {
		level.Warn(c.logger).Log("msg", "connection is unusable", "err", err)
		c.err = err
	}
	return err
}

func (c *Client) writeLine(line string) error {
	if _, err := c.bw.WriteString(line + "\r\n"); err != nil {
		return err
	}
	return c.bw.Flush()
}

// exec sends a command line and reads the reply. redacted is logged in place
// of line.
func (c *Client) exec(cmd *mailauth.Command, line, redacted string) (*mailauth.Reply, error) {
	if c.err != nil {
		return nil, c.err
	}

	level.Debug(c.logger).Log("msg", "sending command", "command", redacted)
	if err := c.writeLine(line); err != nil {
		return nil, c.fail(&mailauth.ProtocolError{Text: fmt.Sprintf("smtp: failed to send %v", redacted), Err: err})
	}

	reply, err := ReadReply(c.br)
	if err := mailauth.Classify(cmd, reply, err); err != nil {
		return reply, c.fail(err)
	}
	return reply, nil
}

func (c *Client) cmd(kind mailauth.CommandKind, format string, v ...interface{}) (*mailauth.Reply, error) {
	line := fmt.Sprintf(format, v...)
	verb, _, _ := strings.Cut(line, " ")
	return c.exec(&mailauth.Command{Kind: kind, Name: verb}, line, line)
}
