package sasl

import (
	gosasl "github.com/emersion/go-sasl"
)

// The EXTERNAL mechanism name.
const External = gosasl.External

// NewExternalClient creates a client implementation of the EXTERNAL
// authentication mechanism, as described in RFC 4422. The authorization
// identity may be left blank to indicate that the client is requesting to act
// as the identity associated with the authentication credentials, e.g. a TLS
// client certificate.
func NewExternalClient(identity string) Mechanism {
	return &clientMechanism{
		name:   External,
		client: gosasl.NewExternalClient(identity),
	}
}
