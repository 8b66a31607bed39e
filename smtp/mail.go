package smtp

import (
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/emersion/go-mailauth"
)

func formatPath(addr *mail.Address) (string, error) {
	if addr == nil || addr.Address == "" {
		return "<>", nil
	}
	if strings.ContainsAny(addr.Address, "<>\r\n ") {
		return "", &mailauth.ConfigError{Text: "smtp: invalid address " + addr.Address}
	}
	return "<" + addr.Address + ">", nil
}

// Mail sends a MAIL command. A nil from address stands for the null
// reverse-path.
//
// A rejection yields a *mailauth.CommandError with the
// mailauth.ErrorCodeSenderNotAccepted code and the sender mailbox.
func (c *Client) Mail(from *mail.Address) error {
	if err := c.hello(); err != nil {
		return err
	}
	path, err := formatPath(from)
	if err != nil {
		return err
	}
	_, err = c.exec(&mailauth.Command{Kind: mailauth.CommandMail, Name: "MAIL", Mailbox: from}, "MAIL FROM:"+path, "MAIL FROM:"+path)
	return err
}

// Rcpt sends a RCPT command.
//
// A rejection yields a *mailauth.CommandError with the
// mailauth.ErrorCodeRecipientNotAccepted code and the recipient mailbox.
func (c *Client) Rcpt(to *mail.Address) error {
	if to == nil || to.Address == "" {
		return &mailauth.ConfigError{Text: "smtp: missing recipient address"}
	}
	if err := c.hello(); err != nil {
		return err
	}
	path, err := formatPath(to)
	if err != nil {
		return err
	}
	_, err = c.exec(&mailauth.Command{Kind: mailauth.CommandRcpt, Name: "RCPT", Mailbox: to}, "RCPT TO:"+path, "RCPT TO:"+path)
	return err
}

// Reset aborts the current mail transaction.
func (c *Client) Reset() error {
	if err := c.hello(); err != nil {
		return err
	}
	_, err := c.cmd(mailauth.CommandOther, "RSET")
	return err
}

// Noop checks that the connection is still alive.
func (c *Client) Noop() error {
	_, err := c.cmd(mailauth.CommandOther, "NOOP")
	return err
}

// Quit sends QUIT and closes the connection.
func (c *Client) Quit() error {
	_, err := c.cmd(mailauth.CommandOther, "QUIT")
	if closeErr := c.Close(); err == nil {
		err = closeErr
	}
	return err
}
