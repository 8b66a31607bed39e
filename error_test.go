package mailauth_test

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersion/go-mailauth"
)

func TestCommandError_roundTrip(t *testing.T) {
	codes := []mailauth.ErrorCode{
		mailauth.ErrorCodeUnexpectedStatus,
		mailauth.ErrorCodeMessageNotAccepted,
		mailauth.ErrorCodeSenderNotAccepted,
		mailauth.ErrorCodeRecipientNotAccepted,
	}
	statuses := []mailauth.StatusCode{
		mailauth.StatusMailboxBusy,
		mailauth.StatusMailboxUnavailable,
		mailauth.StatusTransactionFailed,
		mailauth.StatusCode(599),
	}

	mbox := &mail.Address{Address: "joe@example.org"}
	for _, code := range codes {
		for _, status := range statuses {
			var err *mailauth.CommandError
			if code.IsAddressRejection() {
				err = mailauth.NewMailboxError(code, status, mbox, "rejected", nil)
			} else {
				err = mailauth.NewCommandError(code, status, "rejected", nil)
			}
			assert.Equal(t, code, err.Code())
			assert.Equal(t, status, err.Status())
			assert.Equal(t, code.IsAddressRejection(), err.Mailbox() != nil, "mailbox presence for %v", code)
		}
	}
}

func TestCommandError_mailboxImmutable(t *testing.T) {
	mbox := &mail.Address{Address: "joe@example.org"}
	err := mailauth.NewMailboxError(mailauth.ErrorCodeRecipientNotAccepted, mailauth.StatusMailboxUnavailable, mbox, "no such user", nil)

	mbox.Address = "changed@example.org"
	err.Mailbox().Address = "changed@example.org"

	assert.Equal(t, "joe@example.org", err.Mailbox().Address)
}

func TestCommandError_panics(t *testing.T) {
	assert.Panics(t, func() {
		mailauth.NewCommandError(mailauth.ErrorCodeSenderNotAccepted, mailauth.StatusMailboxUnavailable, "", nil)
	})
	assert.Panics(t, func() {
		mailauth.NewMailboxError(mailauth.ErrorCodeUnexpectedStatus, mailauth.StatusMailboxUnavailable, &mail.Address{}, "", nil)
	})
	assert.Panics(t, func() {
		mailauth.NewMailboxError(mailauth.ErrorCodeRecipientNotAccepted, mailauth.StatusMailboxUnavailable, nil, "", nil)
	})
}

func TestCommandError_unwrap(t *testing.T) {
	cause := io.ErrShortWrite
	err := mailauth.NewCommandError(mailauth.ErrorCodeMessageNotAccepted, mailauth.StatusTransactionFailed, "rejected", cause)
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, %v) = false", err, cause)
	}

	var cmdErr *mailauth.CommandError
	if !errors.As(error(err), &cmdErr) {
		t.Fatalf("errors.As() = false")
	}
}

func TestCommandError_JSON(t *testing.T) {
	mbox := &mail.Address{Name: "Joe", Address: "joe@example.org"}
	want := mailauth.NewMailboxError(mailauth.ErrorCodeSenderNotAccepted, mailauth.StatusMailboxNameNotAllowed, mbox, "sender rejected", nil)

	b, err := json.Marshal(want)
	require.NoError(t, err)

	var got mailauth.CommandError
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, want.Code(), got.Code())
	assert.Equal(t, want.Status(), got.Status())
	assert.Equal(t, want.Text(), got.Text())
	require.NotNil(t, got.Mailbox())
	assert.Equal(t, "joe@example.org", got.Mailbox().Address)
	assert.Equal(t, "Joe", got.Mailbox().Name)
}

func TestCommandError_JSONClassified(t *testing.T) {
	tests := []struct {
		name string
		cmd  *mailauth.Command
		want *mail.Address
	}{
		{"null sender", &mailauth.Command{Kind: mailauth.CommandMail, Name: "MAIL"}, &mail.Address{}},
		{"local part only", &mailauth.Command{Kind: mailauth.CommandRcpt, Name: "RCPT", Mailbox: &mail.Address{Address: "postmaster"}}, &mail.Address{Address: "postmaster"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			reply := &mailauth.Reply{Status: mailauth.StatusMailboxNameNotAllowed, Lines: []string{"rejected"}}
			err := mailauth.Classify(tc.cmd, reply, nil)
			var want *mailauth.CommandError
			require.ErrorAs(t, err, &want)

			b, e := json.Marshal(want)
			require.NoError(t, e)

			var got mailauth.CommandError
			require.NoError(t, json.Unmarshal(b, &got))
			assert.Equal(t, want.Code(), got.Code())
			assert.Equal(t, tc.want, got.Mailbox())
		})
	}
}

func TestCommandError_JSONInvariant(t *testing.T) {
	for _, s := range []string{
		`{"code":"recipient-not-accepted","status":550}`,
		`{"code":"unexpected-status","status":550,"mailbox":{"address":"joe@example.org"}}`,
		`{"code":"sender-not-accepted","status":550,"mailbox":"<joe@example.org>"}`,
		`{"code":"bogus","status":550}`,
	} {
		var cmdErr mailauth.CommandError
		if err := json.Unmarshal([]byte(s), &cmdErr); err == nil {
			t.Errorf("json.Unmarshal(%q) = nil, want error", s)
		}
	}
}

func TestProtocolError(t *testing.T) {
	err := &mailauth.ProtocolError{Text: "bad reply", Err: io.ErrUnexpectedEOF}
	assert.Equal(t, "mailauth: protocol error: bad reply: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
