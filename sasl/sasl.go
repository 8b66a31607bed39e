// Package sasl implements client-side Simple Authentication and Security
// Layer (SASL) mechanisms, as defined in RFC 4422.
//
// A Mechanism is created for a single authentication attempt and driven by a
// protocol adapter: the adapter feeds each decoded server challenge to
// Challenge and sends back the returned response. Mechanisms never perform
// I/O.
package sasl

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/emersion/go-mailauth"
)

// Mechanism is a client-side SASL mechanism.
//
// A Mechanism holds the state of a single authentication attempt. It must not
// be reused across attempts or connections and is not safe for concurrent
// use.
type Mechanism interface {
	// Name returns the upper-case mechanism name, e.g. "CRAM-MD5".
	Name() string
	// SupportsInitialResponse reports whether the mechanism can produce a
	// response before the server sent any challenge.
	SupportsInitialResponse() bool
	// SupportsChannelBinding reports whether the mechanism binds the
	// exchange to the underlying TLS session.
	SupportsChannelBinding() bool

	// Challenge computes the response to a decoded server challenge. An empty
	// challenge on the first step requests the initial response.
	//
	// Once authenticated, an empty challenge yields an empty response and a
	// non-empty challenge fails. Errors are *mailauth.ProtocolError unless
	// documented otherwise.
	Challenge(serverData []byte) ([]byte, error)

	// IsAuthenticated reports whether the client side of the exchange has
	// completed.
	IsAuthenticated() bool
	// NegotiatedChannelBinding reports whether the completed exchange was
	// bound to the TLS session.
	NegotiatedChannelBinding() bool
	// NegotiatedSecurityLayer reports whether the completed exchange
	// established a security layer.
	NegotiatedSecurityLayer() bool
}

// Credential holds the identity used by a mechanism.
type Credential struct {
	// Username is the authentication identity.
	Username string
	// Password is the secret. For OAUTHBEARER and XOAUTH2 it holds the
	// access token.
	Password string
	// AuthzID is the optional authorization identity, i.e. the user to act
	// as. Leave empty to act as Username.
	AuthzID string
	// Domain is the NTLM domain. If empty, the domain announced by the server
	// is used.
	Domain string
	// GSS is the security context used by GSSAPI.
	GSS GSSContext
}

func configErrorf(format string, v ...interface{}) error {
	return &mailauth.ConfigError{Text: fmt.Sprintf(format, v...)}
}

func protocolErrorf(mech, format string, v ...interface{}) error {
	return &mailauth.ProtocolError{Text: fmt.Sprintf("sasl: %v: %v", mech, fmt.Sprintf(format, v...))}
}

func wrapProtocolError(mech, text string, err error) error {
	return &mailauth.ProtocolError{Text: fmt.Sprintf("sasl: %v: %v", mech, text), Err: err}
}

func checkCredential(mech string, cred *Credential, needSecret bool) error {
	if cred == nil {
		return configErrorf("sasl: %v: missing credential", mech)
	}
	if cred.Username == "" {
		return configErrorf("sasl: %v: missing username", mech)
	}
	if needSecret && cred.Password == "" {
		return configErrorf("sasl: %v: missing password", mech)
	}
	return nil
}

// state is the step state shared by all mechanisms.
type state struct {
	step                  int
	authenticated         bool
	negotiatedBinding     bool
	negotiatedSecureLayer bool
}

func (s *state) IsAuthenticated() bool {
	return s.authenticated
}

func (s *state) NegotiatedChannelBinding() bool {
	return s.authenticated && s.negotiatedBinding
}

func (s *state) NegotiatedSecurityLayer() bool {
	return s.authenticated && s.negotiatedSecureLayer
}

// done handles challenges received after authentication. ok is true if the
// challenge has been handled.
func (s *state) done(mech string, serverData []byte) (resp []byte, ok bool, err error) {
	if !s.authenticated {
		return nil, false, nil
	}
	if len(serverData) > 0 {
		return nil, true, protocolErrorf(mech, "unexpected server challenge after authentication")
	}
	return []byte{}, true, nil
}

// randomNonce returns a printable random string without commas.
func randomNonce() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}
