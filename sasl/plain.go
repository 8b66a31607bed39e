package sasl

import (
	gosasl "github.com/emersion/go-sasl"
)

// The PLAIN mechanism name.
const Plain = "PLAIN"

// NewPlainClient creates a client implementation of the PLAIN authentication
// mechanism, as described in RFC 4616. The authorization identity may be left
// blank to act as the username.
func NewPlainClient(cred *Credential) (Mechanism, error) {
	if err := checkCredential(Plain, cred, true); err != nil {
		return nil, err
	}
	return &clientMechanism{
		name:   Plain,
		client: gosasl.NewPlainClient(cred.AuthzID, cred.Username, cred.Password),
	}, nil
}
