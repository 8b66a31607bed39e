package sasl

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"hash"
)

// The CRAM-MD5 mechanism name.
const CRAMMD5 = "CRAM-MD5"

type cramClient struct {
	state
	name     string
	hash     func() hash.Hash
	username string
	password string
}

// NewCRAMMD5Client creates a client implementation of the CRAM-MD5
// authentication mechanism, as described in RFC 2195.
func NewCRAMMD5Client(cred *Credential) (Mechanism, error) {
	if err := checkCredential(CRAMMD5, cred, true); err != nil {
		return nil, err
	}
	return &cramClient{
		name:     CRAMMD5,
		hash:     md5.New,
		username: cred.Username,
		password: cred.Password,
	}, nil
}

func (a *cramClient) Name() string                  { return a.name }
func (a *cramClient) SupportsInitialResponse() bool { return false }
func (a *cramClient) SupportsChannelBinding() bool  { return false }

func (a *cramClient) Challenge(serverData []byte) ([]byte, error) {
	if resp, ok, err := a.done(a.name, serverData); ok {
		return resp, err
	}
	if len(serverData) == 0 {
		return nil, protocolErrorf(a.name, "server challenge required")
	}

	mac := hmac.New(a.hash, []byte(a.password))
	mac.Write(serverData)
	digest := mac.Sum(nil)

	resp := make([]byte, 0, len(a.username)+1+hex.EncodedLen(len(digest)))
	resp = append(resp, a.username...)
	resp = append(resp, ' ')
	resp = append(resp, hex.EncodeToString(digest)...)

	a.step++
	a.authenticated = true
	return resp, nil
}
