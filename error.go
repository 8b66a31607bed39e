package mailauth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"
)

// ConfigError is returned when invalid arguments are supplied, e.g. a missing
// credential or an unknown mechanism name.
type ConfigError struct {
	Text string
}

var _ error = (*ConfigError)(nil)

func (err *ConfigError) Error() string {
	return "mailauth: " + err.Text
}

// ProtocolError indicates that the connection is desynchronized: the server
// sent a malformed reply, replied out of sequence, disconnected unexpectedly,
// or a SASL exchange could not proceed.
//
// After a ProtocolError, the connection must be discarded.
type ProtocolError struct {
	Text string
	Err  error
}

var _ error = (*ProtocolError)(nil)

func (err *ProtocolError) Error() string {
	var sb strings.Builder
	sb.WriteString("mailauth: protocol error")
	if err.Text != "" {
		sb.WriteString(": ")
		sb.WriteString(err.Text)
	}
	if err.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(err.Err.Error())
	}
	return sb.String()
}

func (err *ProtocolError) Unwrap() error {
	return err.Err
}

// ErrorCode describes why a command was rejected.
type ErrorCode int

const (
	// The server replied with an error to a command not covered below.
	ErrorCodeUnexpectedStatus ErrorCode = iota
	// The message data was rejected.
	ErrorCodeMessageNotAccepted
	// The sender address was rejected. Mailbox holds the address.
	ErrorCodeSenderNotAccepted
	// A recipient address was rejected. Mailbox holds the address.
	ErrorCodeRecipientNotAccepted
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCodeUnexpectedStatus:     "unexpected-status",
	ErrorCodeMessageNotAccepted:   "message-not-accepted",
	ErrorCodeSenderNotAccepted:    "sender-not-accepted",
	ErrorCodeRecipientNotAccepted: "recipient-not-accepted",
}

func (code ErrorCode) String() string {
	if s, ok := errorCodeNames[code]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(code))
}

// IsAddressRejection reports whether the code identifies a rejected sender or
// recipient address.
func (code ErrorCode) IsAddressRejection() bool {
	return code == ErrorCodeSenderNotAccepted || code == ErrorCodeRecipientNotAccepted
}

// MarshalText implements encoding.TextMarshaler.
func (code ErrorCode) MarshalText() ([]byte, error) {
	s, ok := errorCodeNames[code]
	if !ok {
		return nil, fmt.Errorf("mailauth: unknown error code %d", int(code))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (code *ErrorCode) UnmarshalText(b []byte) error {
	for c, s := range errorCodeNames {
		if s == string(b) {
			*code = c
			return nil
		}
	}
	return fmt.Errorf("mailauth: unknown error code %q", b)
}

// CommandError is returned when the server rejects a command. The connection
// remains usable.
//
// A CommandError carries a mailbox if and only if its code is
// ErrorCodeSenderNotAccepted or ErrorCodeRecipientNotAccepted.
type CommandError struct {
	code    ErrorCode
	status  StatusCode
	mailbox *mail.Address
	text    string
	err     error
}

var _ error = (*CommandError)(nil)

// NewCommandError creates a command error which doesn't refer to a mailbox.
//
// It panics if code is an address rejection code, use NewMailboxError instead.
func NewCommandError(code ErrorCode, status StatusCode, text string, err error) *CommandError {
	if code.IsAddressRejection() {
		panic(fmt.Sprintf("mailauth: error code %v requires a mailbox", code))
	}
	return &CommandError{code: code, status: status, text: text, err: err}
}

// NewMailboxError creates a command error for a rejected sender or recipient.
//
// It panics if code is not an address rejection code or if mailbox is nil.
func NewMailboxError(code ErrorCode, status StatusCode, mailbox *mail.Address, text string, err error) *CommandError {
	if !code.IsAddressRejection() {
		panic(fmt.Sprintf("mailauth: error code %v cannot carry a mailbox", code))
	}
	if mailbox == nil {
		panic("mailauth: nil mailbox")
	}
	mbox := *mailbox
	return &CommandError{code: code, status: status, mailbox: &mbox, text: text, err: err}
}

// Code returns the error code.
func (err *CommandError) Code() ErrorCode {
	return err.code
}

// Status returns the raw status code sent by the server.
func (err *CommandError) Status() StatusCode {
	return err.status
}

// Mailbox returns the rejected address, or nil if the error code isn't an
// address rejection.
func (err *CommandError) Mailbox() *mail.Address {
	if err.mailbox == nil {
		return nil
	}
	mbox := *err.mailbox
	return &mbox
}

// Text returns the human-readable message.
func (err *CommandError) Text() string {
	return err.text
}

func (err *CommandError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mailauth: %v (%v)", err.code, int(err.status))
	if err.mailbox != nil {
		fmt.Fprintf(&sb, " <%v>", err.mailbox.Address)
	}
	text := err.text
	if text == "" {
		text = "<unknown>"
	}
	fmt.Fprintf(&sb, " %v", text)
	return sb.String()
}

func (err *CommandError) Unwrap() error {
	return err.err
}

type commandErrorJSON struct {
	Code    ErrorCode    `json:"code"`
	Status  StatusCode   `json:"status"`
	Mailbox *mailboxJSON `json:"mailbox,omitempty"`
	Text    string       `json:"text,omitempty"`
}

// mailboxJSON is encoded field by field: the null reverse-path and bare local
// parts like "postmaster" have no RFC 5322 form.
type mailboxJSON struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// MarshalJSON implements json.Marshaler. The wrapped error is not encoded.
func (err *CommandError) MarshalJSON() ([]byte, error) {
	v := commandErrorJSON{
		Code:   err.code,
		Status: err.status,
		Text:   err.text,
	}
	if err.mailbox != nil {
		v.Mailbox = &mailboxJSON{Name: err.mailbox.Name, Address: err.mailbox.Address}
	}
	return json.Marshal(&v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (err *CommandError) UnmarshalJSON(b []byte) error {
	var v commandErrorJSON
	if e := json.Unmarshal(b, &v); e != nil {
		return e
	}

	var mailbox *mail.Address
	if v.Mailbox != nil {
		mailbox = &mail.Address{Name: v.Mailbox.Name, Address: v.Mailbox.Address}
	}
	if v.Code.IsAddressRejection() != (mailbox != nil) {
		return fmt.Errorf("mailauth: command error %v with mismatched mailbox", v.Code)
	}

	*err = CommandError{
		code:    v.Code,
		status:  v.Status,
		mailbox: mailbox,
		text:    v.Text,
	}
	return nil
}
