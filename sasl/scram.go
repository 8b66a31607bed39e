package sasl

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/xdg-go/stringprep"
	"golang.org/x/crypto/pbkdf2"
)

// SCRAM mechanism names.
const (
	ScramSHA1       = "SCRAM-SHA-1"
	ScramSHA256     = "SCRAM-SHA-256"
	ScramSHA1Plus   = "SCRAM-SHA-1-PLUS"
	ScramSHA256Plus = "SCRAM-SHA-256-PLUS"
)

// minimum iteration count accepted from the server, RFC 7677 section 4
const scramMinIterations = 4096

// SCRAM-PLUS tries channel binding types in this order.
var scramBindingPreference = []ChannelBindingKind{
	ChannelBindingExporter,
	ChannelBindingUnique,
	ChannelBindingEndpoint,
}

type scramClient struct {
	state
	name     string
	hash     func() hash.Hash
	plus     bool
	username string
	password string
	authzID  string
	nonce    string
	// GS2 channel binding flag: "n", "y" or "p=<kind>"
	cbFlag string
	cbData []byte

	gs2Header       string
	clientFirstBare string
	serverSignature []byte
}

// NewScramClient creates a client implementation of the SCRAM family of
// authentication mechanisms, as described in RFC 5802 and RFC 7677.
//
// name must be one of ScramSHA1, ScramSHA256, ScramSHA1Plus or
// ScramSHA256Plus. The PLUS variants require a channel binding provider.
func NewScramClient(name string, cred *Credential, cb ChannelBindingProvider) (Mechanism, error) {
	var (
		h    func() hash.Hash
		plus bool
	)
	switch name {
	case ScramSHA1:
		h = sha1.New
	case ScramSHA256:
		h = sha256.New
	case ScramSHA1Plus:
		h, plus = sha1.New, true
	case ScramSHA256Plus:
		h, plus = sha256.New, true
	default:
		return nil, configErrorf("sasl: unknown SCRAM mechanism %q", name)
	}

	if err := checkCredential(name, cred, true); err != nil {
		return nil, err
	}
	cbFlag, cbData, err := scramChannelBinding(name, plus, cb)
	if err != nil {
		return nil, err
	}

	username, err := stringprep.SASLprep.Prepare(cred.Username)
	if err != nil {
		return nil, configErrorf("sasl: %v: invalid username: %v", name, err)
	}
	password, err := stringprep.SASLprep.Prepare(cred.Password)
	if err != nil {
		return nil, configErrorf("sasl: %v: invalid password: %v", name, err)
	}
	authzID := cred.AuthzID
	if authzID != "" {
		if authzID, err = stringprep.SASLprep.Prepare(authzID); err != nil {
			return nil, configErrorf("sasl: %v: invalid authorization identity: %v", name, err)
		}
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("sasl: %v: failed to generate nonce: %w", name, err)
	}

	return &scramClient{
		name:     name,
		hash:     h,
		plus:     plus,
		username: username,
		password: password,
		authzID:  authzID,
		nonce:    nonce,
		cbFlag:   cbFlag,
		cbData:   cbData,
	}, nil
}

func (a *scramClient) Name() string                  { return a.name }
func (a *scramClient) SupportsInitialResponse() bool { return true }
func (a *scramClient) SupportsChannelBinding() bool  { return a.plus }

func (a *scramClient) Challenge(serverData []byte) ([]byte, error) {
	if resp, ok, err := a.done(a.name, serverData); ok {
		return resp, err
	}

	switch a.step {
	case 0:
		if len(serverData) > 0 {
			return nil, protocolErrorf(a.name, "unexpected server challenge")
		}
		a.step++
		return a.clientFirst(), nil
	case 1:
		resp, err := a.clientFinal(string(serverData))
		if err != nil {
			return nil, err
		}
		a.step++
		return resp, nil
	default:
		if err := a.verifyServerFinal(string(serverData)); err != nil {
			return nil, err
		}
		a.step++
		a.authenticated = true
		a.negotiatedBinding = a.plus
		return []byte{}, nil
	}
}

// scramChannelBinding picks the GS2 channel binding flag and data for a new
// attempt. PLUS variants need a binding the provider can supply.
func scramChannelBinding(name string, plus bool, cb ChannelBindingProvider) (flag string, data []byte, err error) {
	if cb == nil {
		if plus {
			return "", nil, configErrorf("sasl: %v: missing channel binding provider", name)
		}
		return "n", nil, nil
	}
	for _, kind := range scramBindingPreference {
		if data, ok := cb.ChannelBindingToken(kind); ok {
			if !plus {
				// we could bind but the server didn't offer a PLUS variant,
				// RFC 5802 section 6 downgrade protection
				return "y", nil, nil
			}
			return "p=" + string(kind), data, nil
		}
	}
	if plus {
		return "", nil, configErrorf("sasl: %v: no channel binding available for this connection", name)
	}
	return "n", nil, nil
}

func (a *scramClient) clientFirst() []byte {
	a.gs2Header = a.cbFlag + ","
	if a.authzID != "" {
		a.gs2Header += "a=" + escapeSASLName(a.authzID)
	}
	a.gs2Header += ","
	a.clientFirstBare = "n=" + escapeSASLName(a.username) + ",r=" + a.nonce
	return []byte(a.gs2Header + a.clientFirstBare)
}

func (a *scramClient) clientFinal(serverFirst string) ([]byte, error) {
	attrs, err := parseScramAttributes(a.name, serverFirst)
	if err != nil {
		return nil, err
	}
	if _, ok := attrs['m']; ok {
		return nil, protocolErrorf(a.name, "unsupported mandatory extension")
	}
	if e, ok := attrs['e']; ok {
		return nil, protocolErrorf(a.name, "server error: %v", e)
	}

	nonce := attrs['r']
	if len(nonce) <= len(a.nonce) || !strings.HasPrefix(nonce, a.nonce) {
		return nil, protocolErrorf(a.name, "invalid server nonce")
	}
	salt, err := base64.StdEncoding.DecodeString(attrs['s'])
	if err != nil || len(salt) == 0 {
		return nil, protocolErrorf(a.name, "invalid salt")
	}
	iters, err := strconv.Atoi(attrs['i'])
	if err != nil || iters <= 0 {
		return nil, protocolErrorf(a.name, "invalid iteration count")
	}
	if iters < scramMinIterations {
		return nil, protocolErrorf(a.name, "iteration count %v too low", iters)
	}

	cbind := append([]byte(a.gs2Header), a.cbData...)
	clientFinalBare := "c=" + base64.StdEncoding.EncodeToString(cbind) + ",r=" + nonce
	authMessage := a.clientFirstBare + "," + serverFirst + "," + clientFinalBare

	saltedPassword := pbkdf2.Key([]byte(a.password), salt, iters, a.hash().Size(), a.hash)
	clientKey := a.hmac(saltedPassword, "Client Key")
	h := a.hash()
	h.Write(clientKey)
	storedKey := h.Sum(nil)
	clientSignature := a.hmac(storedKey, authMessage)

	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	serverKey := a.hmac(saltedPassword, "Server Key")
	a.serverSignature = a.hmac(serverKey, authMessage)

	return []byte(clientFinalBare + ",p=" + base64.StdEncoding.EncodeToString(proof)), nil
}

func (a *scramClient) verifyServerFinal(serverFinal string) error {
	attrs, err := parseScramAttributes(a.name, serverFinal)
	if err != nil {
		return err
	}
	if e, ok := attrs['e']; ok {
		return protocolErrorf(a.name, "server error: %v", e)
	}
	v, ok := attrs['v']
	if !ok {
		return protocolErrorf(a.name, "missing server signature")
	}
	sig, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return protocolErrorf(a.name, "malformed server signature")
	}
	if !hmac.Equal(sig, a.serverSignature) {
		return protocolErrorf(a.name, "invalid server signature")
	}
	return nil
}

func (a *scramClient) hmac(key []byte, s string) []byte {
	mac := hmac.New(a.hash, key)
	mac.Write([]byte(s))
	return mac.Sum(nil)
}

func parseScramAttributes(mech, s string) (map[byte]string, error) {
	if s == "" {
		return nil, protocolErrorf(mech, "empty server message")
	}
	attrs := make(map[byte]string)
	for _, field := range strings.Split(s, ",") {
		if len(field) < 2 || field[1] != '=' {
			return nil, protocolErrorf(mech, "malformed attribute %q", field)
		}
		k := field[0]
		if _, dup := attrs[k]; dup {
			return nil, protocolErrorf(mech, "duplicate attribute %q", string(k))
		}
		attrs[k] = field[2:]
	}
	return attrs, nil
}

// escapeSASLName escapes a GS2 saslname (RFC 5801 section 4).
func escapeSASLName(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	return strings.ReplaceAll(s, ",", "=2C")
}
