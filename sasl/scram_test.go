package sasl

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"hash"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"github.com/emersion/go-mailauth"
)

const (
	rfc5802ServerFirst = "r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096"
	rfc5802ClientFinal = "c=biws,r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,p=v0X8v3Bz2T0CJGbJQyF0X+HI4Ts="
	rfc5802ServerFinal = "v=rmF9pqV8S7suAoZWja4dJRkFsKQ="

	rfc7677ServerFirst = "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	rfc7677ClientFinal = "c=biws,r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ="
	rfc7677ServerFinal = "v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4="
)

func newTestScram(t *testing.T, name, nonce string, cred *Credential, cb ChannelBindingProvider) *scramClient {
	t.Helper()
	mech, err := NewScramClient(name, cred, cb)
	if err != nil {
		t.Fatalf("NewScramClient(%v) = %v", name, err)
	}
	a := mech.(*scramClient)
	a.nonce = nonce
	return a
}

func TestScram_rfcVectors(t *testing.T) {
	tests := []struct {
		name                     string
		nonce                    string
		clientFirst              string
		serverFirst, clientFinal string
		serverFinal              string
	}{
		{
			name:        ScramSHA1,
			nonce:       "fyko+d2lbbFgONRv9qkxdawL",
			clientFirst: "n,,n=user,r=fyko+d2lbbFgONRv9qkxdawL",
			serverFirst: rfc5802ServerFirst,
			clientFinal: rfc5802ClientFinal,
			serverFinal: rfc5802ServerFinal,
		},
		{
			name:        ScramSHA256,
			nonce:       "rOprNGfwEbeRWgbNEkqO",
			clientFirst: "n,,n=user,r=rOprNGfwEbeRWgbNEkqO",
			serverFirst: rfc7677ServerFirst,
			clientFinal: rfc7677ClientFinal,
			serverFinal: rfc7677ServerFinal,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			a := newTestScram(t, tc.name, tc.nonce, &Credential{Username: "user", Password: "pencil"}, nil)

			resp, err := a.Challenge(nil)
			if err != nil {
				t.Fatalf("Challenge(nil) = %v", err)
			}
			if string(resp) != tc.clientFirst {
				t.Errorf("client-first = %q, want %q", resp, tc.clientFirst)
			}

			resp, err = a.Challenge([]byte(tc.serverFirst))
			if err != nil {
				t.Fatalf("Challenge(server-first) = %v", err)
			}
			if string(resp) != tc.clientFinal {
				t.Errorf("client-final = %q, want %q", resp, tc.clientFinal)
			}
			if a.IsAuthenticated() {
				t.Errorf("authenticated before server-final")
			}

			resp, err = a.Challenge([]byte(tc.serverFinal))
			if err != nil {
				t.Fatalf("Challenge(server-final) = %v", err)
			}
			if len(resp) != 0 {
				t.Errorf("response to server-final = %q, want empty", resp)
			}
			if !a.IsAuthenticated() {
				t.Errorf("IsAuthenticated() = false")
			}
			if a.NegotiatedChannelBinding() {
				t.Errorf("NegotiatedChannelBinding() = true")
			}
		})
	}
}

func TestScram_invalidServerSignature(t *testing.T) {
	a := newTestScram(t, ScramSHA1, "fyko+d2lbbFgONRv9qkxdawL", &Credential{Username: "user", Password: "pencil"}, nil)
	if _, err := a.Challenge(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Challenge([]byte(rfc5802ServerFirst)); err != nil {
		t.Fatal(err)
	}

	_, err := a.Challenge([]byte("v=" + base64.StdEncoding.EncodeToString(make([]byte, 20))))
	var protoErr *mailauth.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Errorf("Challenge() = %v, want *mailauth.ProtocolError", err)
	}
	if a.IsAuthenticated() {
		t.Errorf("IsAuthenticated() = true after a forged server signature")
	}
}

func TestScram_badServerFirst(t *testing.T) {
	tests := map[string]string{
		"foreign nonce":   "r=other,s=QSXCR+Q6sek8bf92,i=4096",
		"same nonce":      "r=fyko+d2lbbFgONRv9qkxdawL,s=QSXCR+Q6sek8bf92,i=4096",
		"low iterations":  "r=fyko+d2lbbFgONRv9qkxdawLxyz,s=QSXCR+Q6sek8bf92,i=1024",
		"bad salt":        "r=fyko+d2lbbFgONRv9qkxdawLxyz,s=!!!,i=4096",
		"extension":       "m=ext,r=fyko+d2lbbFgONRv9qkxdawLxyz,s=QSXCR+Q6sek8bf92,i=4096",
		"server error":    "e=other-error",
		"malformed":       "garbage",
		"empty":           "",
		"duplicate nonce": "r=fyko+d2lbbFgONRv9qkxdawLxyz,r=x,s=QSXCR+Q6sek8bf92,i=4096",
	}
	for name, serverFirst := range tests {
		serverFirst := serverFirst
		t.Run(name, func(t *testing.T) {
			a := newTestScram(t, ScramSHA1, "fyko+d2lbbFgONRv9qkxdawL", &Credential{Username: "user", Password: "pencil"}, nil)
			if _, err := a.Challenge(nil); err != nil {
				t.Fatal(err)
			}
			_, err := a.Challenge([]byte(serverFirst))
			var protoErr *mailauth.ProtocolError
			if !errors.As(err, &protoErr) {
				t.Errorf("Challenge(%q) = %v, want *mailauth.ProtocolError", serverFirst, err)
			}
		})
	}
}

func TestScram_gs2Header(t *testing.T) {
	unique := &staticChannelBinding{kind: ChannelBindingUnique, data: "unique"}
	exporter := &staticChannelBinding{kind: ChannelBindingExporter, data: "exporter"}
	unavailable := &staticChannelBinding{kind: "unknown"}
	cred := &Credential{Username: "us=er,x", Password: "pencil", AuthzID: "admin"}

	tests := []struct {
		name string
		cb   ChannelBindingProvider
		want string
	}{
		{ScramSHA256, nil, "n,a=admin,n=us=3Der=2Cx,r=nonce"},
		{ScramSHA256, unavailable, "n,a=admin,n=us=3Der=2Cx,r=nonce"},
		{ScramSHA256, unique, "y,a=admin,n=us=3Der=2Cx,r=nonce"},
		{ScramSHA256Plus, unique, "p=tls-unique,a=admin,n=us=3Der=2Cx,r=nonce"},
		{ScramSHA1Plus, exporter, "p=tls-exporter,a=admin,n=us=3Der=2Cx,r=nonce"},
	}
	for _, tc := range tests {
		a := newTestScram(t, tc.name, "nonce", cred, tc.cb)
		resp, err := a.Challenge(nil)
		if err != nil {
			t.Errorf("%v: Challenge(nil) = %v", tc.name, err)
			continue
		}
		if string(resp) != tc.want {
			t.Errorf("%v: client-first = %q, want %q", tc.name, resp, tc.want)
		}
	}
}

func TestScram_plusWithoutBinding(t *testing.T) {
	cred := &Credential{Username: "user", Password: "pencil"}

	_, err := NewScramClient(ScramSHA256Plus, cred, nil)
	var configErr *mailauth.ConfigError
	if !errors.As(err, &configErr) {
		t.Errorf("NewScramClient() without provider = %v, want *mailauth.ConfigError", err)
	}

	mech, err := NewScramClient(ScramSHA256Plus, cred, &staticChannelBinding{kind: "unknown"})
	if !errors.As(err, &configErr) {
		t.Errorf("NewScramClient() without binding = %v, want *mailauth.ConfigError", err)
	}
	if mech != nil {
		t.Errorf("NewScramClient() without binding returned a mechanism")
	}
}

func TestScram_plus(t *testing.T) {
	cb := &staticChannelBinding{kind: ChannelBindingUnique, data: "unique"}
	a := newTestScram(t, ScramSHA256Plus, "fyko+d2lbbFgONRv9qkxdawL", &Credential{Username: "user", Password: "pencil"}, cb)

	challenges := scramPlusChallenges(t, a)
	resp, err := a.Challenge(challenges[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "p=tls-unique,,n=user,r=fyko+d2lbbFgONRv9qkxdawL" {
		t.Errorf("client-first = %q", resp)
	}

	resp, err = a.Challenge(challenges[1])
	if err != nil {
		t.Fatal(err)
	}
	wantC := "c=" + base64.StdEncoding.EncodeToString([]byte("p=tls-unique,,unique"))
	if got := string(resp[:len(wantC)]); got != wantC {
		t.Errorf("channel binding attribute = %q, want %q", got, wantC)
	}

	if _, err := a.Challenge(challenges[2]); err != nil {
		t.Fatal(err)
	}
	if !a.NegotiatedChannelBinding() {
		t.Errorf("NegotiatedChannelBinding() = false")
	}
}

func TestScram_saslprep(t *testing.T) {
	// U+00AD SOFT HYPHEN is mapped to nothing
	a := newTestScram(t, ScramSHA1, "nonce", &Credential{Username: "us\u00ader", Password: "pencil"}, nil)
	resp, err := a.Challenge(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "n,,n=user,r=nonce" {
		t.Errorf("client-first = %q", resp)
	}

	// prohibited control character
	_, err = NewScramClient(ScramSHA1, &Credential{Username: "user", Password: "pen\u0007cil"}, nil)
	var configErr *mailauth.ConfigError
	if !errors.As(err, &configErr) {
		t.Errorf("NewScramClient() = %v, want *mailauth.ConfigError", err)
	}
}

// scramPlusChallenges plays the server side of a SCRAM-PLUS exchange for a
// client created with the "user"/"pencil" credential.
func scramPlusChallenges(t *testing.T, a *scramClient) [][]byte {
	t.Helper()

	var h func() hash.Hash
	switch a.name {
	case ScramSHA1Plus:
		h = sha1.New
	case ScramSHA256Plus:
		h = sha256.New
	default:
		t.Fatalf("not a PLUS mechanism: %v", a.name)
	}

	data := a.cbData
	salt := []byte("salt-for-testing")
	nonce := a.nonce + "server-nonce"
	serverFirst := "r=" + nonce + ",s=" + base64.StdEncoding.EncodeToString(salt) + ",i=4096"
	gs2Header := a.cbFlag + ","
	if a.authzID != "" {
		gs2Header += "a=" + escapeSASLName(a.authzID)
	}
	gs2Header += ","
	clientFirstBare := "n=" + escapeSASLName(a.username) + ",r=" + a.nonce
	clientFinalBare := "c=" + base64.StdEncoding.EncodeToString(append([]byte(gs2Header), data...)) + ",r=" + nonce
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalBare

	saltedPassword := pbkdf2.Key([]byte("pencil"), salt, 4096, h().Size(), h)
	mac := hmac.New(h, saltedPassword)
	mac.Write([]byte("Server Key"))
	serverKey := mac.Sum(nil)
	mac = hmac.New(h, serverKey)
	mac.Write([]byte(authMessage))
	serverFinal := "v=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return [][]byte{nil, []byte(serverFirst), []byte(serverFinal)}
}
