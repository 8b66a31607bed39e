package sasl

import (
	gosasl "github.com/emersion/go-sasl"

	"github.com/emersion/go-mailauth/internal/saslwire"
)

type client struct {
	mech Mechanism
}

// NewClient wraps a mechanism into a github.com/emersion/go-sasl client, for
// use with protocol libraries built on it.
func NewClient(mech Mechanism) gosasl.Client {
	return &client{mech}
}

func (c *client) Start() (mech string, ir []byte, err error) {
	mech = c.mech.Name()
	if !c.mech.SupportsInitialResponse() {
		return mech, nil, nil
	}
	ir, err = c.mech.Challenge(nil)
	if err != nil {
		return "", nil, err
	}
	if ir == nil {
		// nil means "no initial response" to go-sasl
		ir = []byte{}
	}
	return mech, ir, nil
}

func (c *client) Next(challenge []byte) (response []byte, err error) {
	return c.mech.Challenge(challenge)
}

// ChallengeBase64 feeds a base64-encoded challenge to mech and returns the
// base64-encoded response. An empty string or "=" denotes an empty challenge.
func ChallengeBase64(mech Mechanism, challenge string) (string, error) {
	b, err := saslwire.Decode(challenge)
	if err != nil {
		return "", wrapProtocolError(mech.Name(), "malformed base64 challenge", err)
	}
	resp, err := mech.Challenge(b)
	if err != nil {
		return "", err
	}
	if len(resp) == 0 {
		return "", nil
	}
	return saslwire.Encode(resp), nil
}
