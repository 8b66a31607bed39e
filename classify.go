package mailauth

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// CommandKind identifies the class of command a reply answers.
type CommandKind int

const (
	CommandOther CommandKind = iota
	// MAIL FROM. Rejections carry the sender mailbox.
	CommandMail
	// RCPT TO. Rejections carry the recipient mailbox.
	CommandRcpt
	// DATA, BDAT or the end of message data. A 354 reply is expected to DATA.
	CommandData
	// AUTH and its continuation lines. A 334 reply is expected.
	CommandAuth
)

// Command describes the command a reply answers.
type Command struct {
	Kind CommandKind
	// Name is the command verb, used in error messages.
	Name string
	// Mailbox is the address argument of MAIL and RCPT. A nil mailbox on a
	// MAIL command stands for the null reverse-path.
	Mailbox *mail.Address
}

func (cmd *Command) name() string {
	if cmd.Name != "" {
		return cmd.Name
	}
	switch cmd.Kind {
	case CommandMail:
		return "MAIL"
	case CommandRcpt:
		return "RCPT"
	case CommandData:
		return "DATA"
	case CommandAuth:
		return "AUTH"
	default:
		return "command"
	}
}

func (cmd *Command) acceptsIntermediate(status StatusCode) bool {
	switch cmd.Kind {
	case CommandData:
		return status == StatusStartMailInput
	case CommandAuth:
		return status == StatusAuthenticationChallenge
	default:
		return false
	}
}

// Reply is a server reply.
type Reply struct {
	Status StatusCode
	// EnhancedCode is the RFC 3463 enhanced status code, e.g. "5.1.1", if
	// the server sent one.
	EnhancedCode string
	// Lines contains the text of each reply line, without the status codes.
	Lines []string
}

// Text returns the reply text, lines joined with a space.
func (r *Reply) Text() string {
	return strings.Join(r.Lines, " ")
}

// Classify maps the outcome of reading a reply to cmd onto the error
// taxonomy.
//
// readErr is the error returned while reading the reply, if any. Classify
// returns nil for a successful reply, a *CommandError for a rejected command
// and a *ProtocolError when the reply is missing, malformed or out of
// sequence.
func Classify(cmd *Command, reply *Reply, readErr error) error {
	if readErr != nil {
		var protoErr *ProtocolError
		if errors.As(readErr, &protoErr) {
			return readErr
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return &ProtocolError{Text: "server closed the connection unexpectedly", Err: readErr}
		}
		return &ProtocolError{Text: fmt.Sprintf("failed to read %v reply", cmd.name()), Err: readErr}
	}
	if reply == nil {
		return &ProtocolError{Text: fmt.Sprintf("missing %v reply", cmd.name())}
	}

	status := reply.Status
	switch {
	case status.IsPositive():
		return nil
	case status.IsIntermediate():
		if cmd.acceptsIntermediate(status) {
			return nil
		}
		return &ProtocolError{Text: fmt.Sprintf("unexpected %v reply to %v", int(status), cmd.name())}
	case status.IsTransient(), status.IsPermanent():
		// rejected below
	default:
		return &ProtocolError{Text: fmt.Sprintf("invalid status code %v", int(status))}
	}

	text := reply.Text()
	switch cmd.Kind {
	case CommandMail, CommandRcpt:
		code := ErrorCodeSenderNotAccepted
		if cmd.Kind == CommandRcpt {
			code = ErrorCodeRecipientNotAccepted
		}
		mailbox := cmd.Mailbox
		if mailbox == nil {
			mailbox = &mail.Address{}
		}
		return NewMailboxError(code, status, mailbox, text, nil)
	case CommandData:
		return NewCommandError(ErrorCodeMessageNotAccepted, status, text, nil)
	default:
		return NewCommandError(ErrorCodeUnexpectedStatus, status, text, nil)
	}
}
