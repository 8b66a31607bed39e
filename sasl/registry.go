package sasl

import (
	"net/url"
	"strings"
)

// names lists the supported mechanisms, strongest first.
var names = []string{
	ScramSHA256Plus,
	ScramSHA1Plus,
	ScramSHA256,
	ScramSHA1,
	NTLM,
	DigestMD5,
	CRAMMD5,
	Plain,
	Login,
	OAuthBearer,
	XOAuth2,
	GSSAPI,
	External,
	Anonymous,
}

// mechanisms which need credentials the caller must pick deliberately
var noAutoSelect = map[string]bool{
	OAuthBearer: true,
	XOAuth2:     true,
	GSSAPI:      true,
	External:    true,
	Anonymous:   true,
}

// Names returns the names of the supported mechanisms, strongest first.
func Names() []string {
	l := make([]string, len(names))
	copy(l, names)
	return l
}

// IsSupported reports whether a mechanism name is supported. Names are
// case-insensitive.
func IsSupported(name string) bool {
	name = strings.ToUpper(name)
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// New creates a mechanism by name. Names are case-insensitive.
//
// uri identifies the service being authenticated to, e.g.
// "smtp://mail.example.org". It is required by DIGEST-MD5 and used by
// OAUTHBEARER. cb may be nil, in which case channel binding is not attempted;
// it is required by the PLUS variants.
//
// A *mailauth.ConfigError is returned if the name is unknown or the
// credential doesn't suit the mechanism.
func New(name string, cred *Credential, uri *url.URL, cb ChannelBindingProvider) (Mechanism, error) {
	switch name := strings.ToUpper(name); name {
	case Plain:
		return NewPlainClient(cred)
	case Login:
		return NewLoginClient(cred)
	case CRAMMD5:
		return NewCRAMMD5Client(cred)
	case DigestMD5:
		return NewDigestMD5Client(cred, uri)
	case NTLM:
		return NewNTLMClient(cred)
	case GSSAPI:
		return NewGSSAPIClient(cred, cb)
	case OAuthBearer:
		return NewOAuthBearerClient(cred, uri)
	case XOAuth2:
		return NewXOAuth2Client(cred)
	case ScramSHA1, ScramSHA256, ScramSHA1Plus, ScramSHA256Plus:
		return NewScramClient(name, cred, cb)
	case Anonymous:
		return NewAnonymousClient(cred)
	case External:
		var identity string
		if cred != nil {
			identity = cred.AuthzID
		}
		return NewExternalClient(identity), nil
	default:
		return nil, configErrorf("sasl: unsupported mechanism %q", name)
	}
}

// Best picks the strongest supported mechanism among the ones offered by the
// server.
//
// PLUS variants are skipped when cb is nil. OAUTHBEARER, XOAUTH2, GSSAPI,
// EXTERNAL and ANONYMOUS are never picked, callers select them explicitly.
func Best(offered []string, cb ChannelBindingProvider) (string, bool) {
	set := make(map[string]bool, len(offered))
	for _, name := range offered {
		set[strings.ToUpper(name)] = true
	}
	for _, name := range names {
		if !set[name] || noAutoSelect[name] {
			continue
		}
		if strings.HasSuffix(name, "-PLUS") && cb == nil {
			continue
		}
		return name, true
	}
	return "", false
}
