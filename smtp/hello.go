package smtp

import (
	"crypto/tls"
	"errors"
	"net"
	"strings"

	"github.com/go-kit/log/level"

	"github.com/emersion/go-mailauth"
	"github.com/emersion/go-mailauth/sasl"
)

// Hello sends EHLO, falling back to HELO if the server doesn't support
// ESMTP. An empty localName uses Options.LocalName.
//
// Hello may be called once, or again after StartTLS.
func (c *Client) Hello(localName string) error {
	if localName == "" {
		localName = c.options.LocalName
	}
	if localName == "" {
		localName = "localhost"
	}
	if strings.ContainsAny(localName, "\r\n ") {
		return &mailauth.ConfigError{Text: "smtp: invalid local name"}
	}

	reply, err := c.cmd(mailauth.CommandOther, "EHLO %v", localName)
	var cmdErr *mailauth.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Status() == mailauth.StatusCommandUnrecognized || cmdErr.Status() == mailauth.StatusCommandNotImplemented) {
		level.Debug(c.logger).Log("msg", "EHLO not supported, falling back to HELO")
		_, err = c.cmd(mailauth.CommandOther, "HELO %v", localName)
		reply = nil
	}
	if err != nil {
		return err
	}

	c.helloDone = true
	c.extensions = make(map[string]string)
	if reply != nil && len(reply.Lines) > 1 {
		for _, line := range reply.Lines[1:] {
			k, v, _ := strings.Cut(line, " ")
			c.extensions[strings.ToUpper(k)] = v
		}
	}
	return nil
}

func (c *Client) hello() error {
	if c.helloDone {
		return nil
	}
	return c.Hello("")
}

// Extension reports whether an extension is supported by the server, and
// returns its parameters.
func (c *Client) Extension(name string) (bool, string, error) {
	if err := c.hello(); err != nil {
		return false, "", err
	}
	params, ok := c.extensions[strings.ToUpper(name)]
	return ok, params, nil
}

// Mechanisms returns the SASL mechanisms advertised by the server.
func (c *Client) Mechanisms() ([]string, error) {
	ok, params, err := c.Extension("AUTH")
	if err != nil || !ok {
		return nil, err
	}
	var mechs []string
	for _, name := range strings.Fields(params) {
		mechs = append(mechs, strings.ToUpper(name))
	}
	return mechs, nil
}

// StartTLS upgrades the connection to TLS (RFC 3207) and sends EHLO again.
//
// A failed handshake leaves the client unusable.
func (c *Client) StartTLS(config *tls.Config) error {
	if config == nil {
		return &mailauth.ConfigError{Text: "smtp: missing TLS configuration"}
	}
	if ok, _, err := c.Extension("STARTTLS"); err != nil {
		return err
	} else if !ok {
		return &mailauth.ConfigError{Text: "smtp: server doesn't support STARTTLS"}
	}
	if _, err := c.cmd(mailauth.CommandOther, "STARTTLS"); err != nil {
		return err
	}

	err := c.stream.Upgrade(c.br, func(conn net.Conn) (net.Conn, error) {
		tlsConn := tls.Client(conn, config)
		if err := tlsConn.Handshake(); err != nil {
			return nil, err
		}
		return tlsConn, nil
	})
	if err != nil {
		return c.fail(&mailauth.ProtocolError{Text: "smtp: TLS handshake failed", Err: err})
	}

	rw := c.options.wrapReadWriter(c.stream)
	c.br.Reset(rw)
	c.bw.Reset(rw)
	level.Debug(c.logger).Log("msg", "upgraded connection to TLS")

	c.helloDone = false
	c.extensions = nil
	return c.hello()
}

// TLSConnectionState returns the state of the TLS connection, if any.
func (c *Client) TLSConnectionState() (tls.ConnectionState, bool) {
	tlsConn, ok := c.stream.Conn().(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return tlsConn.ConnectionState(), true
}

// ChannelBinding returns a channel binding provider for the current TLS
// session, or nil if the connection isn't encrypted.
func (c *Client) ChannelBinding() sasl.ChannelBindingProvider {
	tlsConn, ok := c.stream.Conn().(*tls.Conn)
	if !ok {
		return nil
	}
	return sasl.NewTLSChannelBinding(tlsConn)
}
