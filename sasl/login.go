package sasl

import (
	gosasl "github.com/emersion/go-sasl"
)

// The LOGIN mechanism name.
const Login = "LOGIN"

// NewLoginClient creates a client implementation of the obsolete LOGIN
// authentication mechanism, as described in draft-murchison-sasl-login.
//
// The server prompts ("Username:", "Password:") are not interpreted, the
// username is sent first and the password second. The username doubles as
// the initial response.
func NewLoginClient(cred *Credential) (Mechanism, error) {
	if err := checkCredential(Login, cred, true); err != nil {
		return nil, err
	}
	return &clientMechanism{
		name:     Login,
		client:   gosasl.NewLoginClient(cred.Username, cred.Password),
		rounds:   1,
		prompted: true,
	}, nil
}
