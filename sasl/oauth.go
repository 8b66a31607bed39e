package sasl

import (
	"fmt"
	"net/url"
	"strconv"

	gosasl "github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
)

// OAuth mechanism names.
const (
	OAuthBearer = "OAUTHBEARER"
	XOAuth2     = "XOAUTH2"
)

// NewOAuthBearerClient creates a client implementation of the OAUTHBEARER
// authentication mechanism, as described in RFC 7628. The credential password
// holds the access token. The host and port are taken from uri when not nil.
//
// The exchange is complete once the initial response is sent. A failure report
// from the server is returned as a *mailauth.ProtocolError wrapping a
// *OAuthBearerError from github.com/emersion/go-sasl.
func NewOAuthBearerClient(cred *Credential, uri *url.URL) (Mechanism, error) {
	if err := checkCredential(OAuthBearer, cred, true); err != nil {
		return nil, err
	}
	opts := &gosasl.OAuthBearerOptions{Username: cred.Username, Token: cred.Password}
	if uri != nil {
		opts.Host = uri.Hostname()
		if port := uri.Port(); port != "" {
			n, err := strconv.Atoi(port)
			if err != nil {
				return nil, configErrorf("sasl: %v: invalid port %q", OAuthBearer, port)
			}
			opts.Port = n
		}
	}
	return &clientMechanism{
		name:   OAuthBearer,
		client: gosasl.NewOAuthBearerClient(opts),
	}, nil
}

type xoauth2Client struct {
	state
	Username string
	Token    string
}

// NewXOAuth2Client creates a client implementation of the XOAUTH2
// authentication mechanism, as described in
// https://developers.google.com/gmail/xoauth2_protocol. The credential
// password holds the access token.
func NewXOAuth2Client(cred *Credential) (Mechanism, error) {
	if err := checkCredential(XOAuth2, cred, true); err != nil {
		return nil, err
	}
	return &xoauth2Client{Username: cred.Username, Token: cred.Password}, nil
}

func (a *xoauth2Client) Name() string                  { return XOAuth2 }
func (a *xoauth2Client) SupportsInitialResponse() bool { return true }
func (a *xoauth2Client) SupportsChannelBinding() bool  { return false }

func (a *xoauth2Client) Challenge(serverData []byte) ([]byte, error) {
	if len(serverData) > 0 && a.authenticated {
		return nil, protocolErrorf(XOAuth2, "server rejected the token: %s", serverData)
	}
	if resp, ok, err := a.done(XOAuth2, serverData); ok {
		return resp, err
	}
	if len(serverData) > 0 {
		return nil, protocolErrorf(XOAuth2, "unexpected server challenge")
	}

	a.step++
	a.authenticated = true
	return []byte("user=" + a.Username + "\x01auth=Bearer " + a.Token + "\x01\x01"), nil
}

// TokenCredential fetches an access token from ts and returns a credential
// suitable for OAUTHBEARER and XOAUTH2.
//
// The token is fetched once, here, so that the mechanism never blocks.
func TokenCredential(ts oauth2.TokenSource, username string) (*Credential, error) {
	if ts == nil {
		return nil, configErrorf("sasl: missing token source")
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("sasl: failed to fetch OAuth2 token: %w", err)
	}
	if !tok.Valid() {
		return nil, configErrorf("sasl: invalid or expired OAuth2 token")
	}
	return &Credential{Username: username, Password: tok.AccessToken}, nil
}
