package sasl

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// The DIGEST-MD5 mechanism name.
const DigestMD5 = "DIGEST-MD5"

type digestMD5Client struct {
	state
	username string
	password string
	authzID  string
	service  string
	host     string
	cnonce   string

	rspauth string
}

// NewDigestMD5Client creates a client implementation of the DIGEST-MD5
// authentication mechanism, as described in RFC 2831.
//
// The digest URI is built from the scheme and host of uri. Only the "auth"
// quality of protection is supported, no security layer is negotiated.
func NewDigestMD5Client(cred *Credential, uri *url.URL) (Mechanism, error) {
	if err := checkCredential(DigestMD5, cred, true); err != nil {
		return nil, err
	}
	if uri == nil || uri.Hostname() == "" {
		return nil, configErrorf("sasl: %v: missing server URI", DigestMD5)
	}
	cnonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("sasl: %v: failed to generate nonce: %w", DigestMD5, err)
	}
	return &digestMD5Client{
		username: cred.Username,
		password: cred.Password,
		authzID:  cred.AuthzID,
		service:  serviceName(uri.Scheme),
		host:     uri.Hostname(),
		cnonce:   cnonce,
	}, nil
}

func (a *digestMD5Client) Name() string                  { return DigestMD5 }
func (a *digestMD5Client) SupportsInitialResponse() bool { return false }
func (a *digestMD5Client) SupportsChannelBinding() bool  { return false }

func (a *digestMD5Client) Challenge(serverData []byte) ([]byte, error) {
	if resp, ok, err := a.done(DigestMD5, serverData); ok {
		return resp, err
	}
	if len(serverData) == 0 {
		return nil, protocolErrorf(DigestMD5, "server challenge required")
	}

	directives, err := parseDigestDirectives(string(serverData))
	if err != nil {
		return nil, err
	}

	a.step++
	switch a.step {
	case 1:
		return a.digestResponse(directives)
	case 2:
		rspauth := directives.get("rspauth")
		if rspauth == "" {
			return nil, protocolErrorf(DigestMD5, "missing rspauth")
		}
		if rspauth != a.rspauth {
			return nil, protocolErrorf(DigestMD5, "server authentication failed")
		}
		a.authenticated = true
		return []byte{}, nil
	default:
		return nil, protocolErrorf(DigestMD5, "unexpected server challenge")
	}
}

func (a *digestMD5Client) digestResponse(directives digestDirectives) ([]byte, error) {
	nonce := directives.get("nonce")
	if nonce == "" {
		return nil, protocolErrorf(DigestMD5, "missing nonce")
	}
	if algo := directives.get("algorithm"); algo != "md5-sess" {
		return nil, protocolErrorf(DigestMD5, "unsupported algorithm %q", algo)
	}
	if qops := directives.get("qop"); qops != "" && !containsToken(qops, "auth") {
		return nil, protocolErrorf(DigestMD5, "server doesn't offer qop=auth")
	}
	utf8 := strings.EqualFold(directives.get("charset"), "utf-8")

	realm := directives.get("realm")
	if realm == "" {
		realm = a.host
	}
	digestURI := a.service + "/" + a.host
	const nc = "00000001"

	creds, err := digestCredentials(utf8, a.username, realm, a.password)
	if err != nil {
		return nil, err
	}

	sum := md5.Sum([]byte(creds))
	a1 := string(sum[:]) + ":" + nonce + ":" + a.cnonce
	if a.authzID != "" {
		a1 += ":" + a.authzID
	}
	ha1 := md5Hex(a1)
	kd := func(a2 string) string {
		return md5Hex(ha1 + ":" + nonce + ":" + nc + ":" + a.cnonce + ":auth:" + md5Hex(a2))
	}
	a.rspauth = kd(":" + digestURI)

	var sb strings.Builder
	if utf8 {
		sb.WriteString("charset=utf-8,")
	}
	fmt.Fprintf(&sb, "username=%v,", quoteDigest(a.username))
	fmt.Fprintf(&sb, "realm=%v,", quoteDigest(realm))
	fmt.Fprintf(&sb, "nonce=%v,", quoteDigest(nonce))
	fmt.Fprintf(&sb, "nc=%v,", nc)
	fmt.Fprintf(&sb, "cnonce=%v,", quoteDigest(a.cnonce))
	fmt.Fprintf(&sb, "digest-uri=%v,", quoteDigest(digestURI))
	fmt.Fprintf(&sb, "response=%v,", kd("AUTHENTICATE:"+digestURI))
	sb.WriteString("qop=auth")
	if a.authzID != "" {
		fmt.Fprintf(&sb, ",authzid=%v", quoteDigest(a.authzID))
	}
	return []byte(sb.String()), nil
}

// digestCredentials builds "username:realm:password". RFC 2831 section 2.1.2.1
// requires ISO 8859-1 whenever all characters fit, UTF-8 otherwise.
func digestCredentials(utf8 bool, username, realm, password string) (string, error) {
	s := username + ":" + realm + ":" + password
	latin1, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err == nil {
		return latin1, nil
	}
	if !utf8 {
		return "", protocolErrorf(DigestMD5, "credentials cannot be encoded in ISO 8859-1")
	}
	return s, nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func quoteDigest(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func containsToken(list, token string) bool {
	for _, t := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(t), token) {
			return true
		}
	}
	return false
}

// serviceName maps a URI scheme to a registered GSSAPI service name.
func serviceName(scheme string) string {
	switch strings.ToLower(scheme) {
	case "smtp", "smtps", "submission", "submissions":
		return "smtp"
	case "imap", "imaps":
		return "imap"
	case "pop", "pops", "pop3", "pop3s":
		return "pop"
	default:
		return strings.ToLower(scheme)
	}
}

// digestDirectives holds the directives of a DIGEST-MD5 challenge. Only the
// first occurrence of a directive is kept.
type digestDirectives map[string]string

func (d digestDirectives) get(k string) string {
	return d[k]
}

func parseDigestDirectives(s string) (digestDirectives, error) {
	d := make(digestDirectives)
	for {
		s = strings.TrimLeft(s, " \t,")
		if s == "" {
			return d, nil
		}

		i := strings.IndexByte(s, '=')
		if i <= 0 {
			return nil, protocolErrorf(DigestMD5, "malformed challenge directive")
		}
		key := strings.ToLower(strings.TrimSpace(s[:i]))
		s = strings.TrimLeft(s[i+1:], " \t")

		var value string
		if strings.HasPrefix(s, `"`) {
			var sb strings.Builder
			closed := false
			i := 1
			for ; i < len(s); i++ {
				c := s[i]
				if c == '\\' && i+1 < len(s) {
					i++
					sb.WriteByte(s[i])
				} else if c == '"' {
					closed = true
					break
				} else {
					sb.WriteByte(c)
				}
			}
			if !closed {
				return nil, protocolErrorf(DigestMD5, "unterminated quoted string")
			}
			value = sb.String()
			s = s[i+1:]
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				end = len(s)
			}
			value = strings.TrimSpace(s[:end])
			s = s[end:]
		}

		if _, ok := d[key]; !ok {
			d[key] = value
		}

		s = strings.TrimLeft(s, " \t")
		if s != "" && s[0] != ',' {
			return nil, protocolErrorf(DigestMD5, "malformed challenge directive")
		}
	}
}
