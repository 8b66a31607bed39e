package sasl

import (
	gosasl "github.com/emersion/go-sasl"
)

// The ANONYMOUS mechanism name.
const Anonymous = "ANONYMOUS"

// NewAnonymousClient creates a client implementation of the ANONYMOUS
// authentication mechanism, as described in RFC 4505. The username is sent as
// the trace information, usually an email address.
func NewAnonymousClient(cred *Credential) (Mechanism, error) {
	if err := checkCredential(Anonymous, cred, false); err != nil {
		return nil, err
	}
	return &clientMechanism{
		name:   Anonymous,
		client: gosasl.NewAnonymousClient(cred.Username),
	}, nil
}
