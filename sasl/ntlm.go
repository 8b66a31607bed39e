package sasl

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
)

// The NTLM mechanism name.
const NTLM = "NTLM"

const (
	ntlmNegotiateUnicode    uint32 = 0x00000001
	ntlmNegotiateOEM        uint32 = 0x00000002
	ntlmRequestTarget       uint32 = 0x00000004
	ntlmNegotiateNTLM       uint32 = 0x00000200
	ntlmNegotiateAlwaysSign uint32 = 0x00008000
	ntlmNegotiateExtSession uint32 = 0x00080000
	ntlmNegotiateTargetInfo uint32 = 0x00800000
	ntlmNegotiate128        uint32 = 0x20000000
	ntlmNegotiate56         uint32 = 0x80000000

	ntlmDefaultFlags = ntlmNegotiateUnicode | ntlmNegotiateOEM | ntlmRequestTarget |
		ntlmNegotiateNTLM | ntlmNegotiateAlwaysSign | ntlmNegotiateExtSession |
		ntlmNegotiate128 | ntlmNegotiate56
)

const (
	ntlmAvEOL       uint16 = 0
	ntlmAvTimestamp uint16 = 7
)

var ntlmSignature = []byte("NTLMSSP\x00")

// security buffer lengths are 16-bit
const ntlmMaxField = 0xffff

// the NT response wraps target info in 48 bytes: NTProofStr, the blob header
// and trailing reserved bytes
const ntlmMaxTargetInfo = ntlmMaxField - 48

// Windows FILETIME epoch offset, in 100ns units
const ntlmEpochOffset = 116444736000000000

type ntlmClient struct {
	state
	username    string
	password    string
	domain      string
	workstation string

	clientChallenge [8]byte
	now             func() time.Time
}

// NewNTLMClient creates a client implementation of the NTLM authentication
// mechanism, as described in MS-NLMP. Only NTLMv2 responses are sent; no
// signing or sealing is negotiated.
func NewNTLMClient(cred *Credential) (Mechanism, error) {
	if err := checkCredential(NTLM, cred, true); err != nil {
		return nil, err
	}

	username, domain := cred.Username, cred.Domain
	if domain == "" {
		if i := strings.IndexByte(username, '\\'); i >= 0 {
			domain, username = username[:i], username[i+1:]
		}
	}

	for _, field := range []string{username, domain} {
		if len(utf16le(field)) > ntlmMaxField {
			return nil, configErrorf("sasl: %v: username or domain too long", NTLM)
		}
	}

	a := &ntlmClient{
		username: username,
		password: cred.Password,
		domain:   domain,
		now:      time.Now,
	}
	if _, err := rand.Read(a.clientChallenge[:]); err != nil {
		return nil, fmt.Errorf("sasl: NTLM: failed to generate client challenge: %w", err)
	}
	return a, nil
}

func (a *ntlmClient) Name() string                  { return NTLM }
func (a *ntlmClient) SupportsInitialResponse() bool { return true }
func (a *ntlmClient) SupportsChannelBinding() bool  { return false }

func (a *ntlmClient) Challenge(serverData []byte) ([]byte, error) {
	if resp, ok, err := a.done(NTLM, serverData); ok {
		return resp, err
	}

	switch a.step {
	case 0:
		if len(serverData) > 0 {
			return nil, protocolErrorf(NTLM, "unexpected server challenge")
		}
		a.step++
		return ntlmNegotiateMessage(), nil
	default:
		challenge, err := parseNTLMChallenge(serverData)
		if err != nil {
			return nil, err
		}
		resp := a.authenticateMessage(challenge)
		a.step++
		a.authenticated = true
		return resp, nil
	}
}

func ntlmNegotiateMessage() []byte {
	b := make([]byte, 32)
	copy(b, ntlmSignature)
	binary.LittleEndian.PutUint32(b[8:], 1)
	binary.LittleEndian.PutUint32(b[12:], ntlmDefaultFlags)
	// empty domain and workstation security buffers
	return b
}

type ntlmChallenge struct {
	flags           uint32
	serverChallenge [8]byte
	targetName      []byte
	targetInfo      []byte
}

func parseNTLMChallenge(b []byte) (*ntlmChallenge, error) {
	if len(b) < 32 || !bytes.Equal(b[:8], ntlmSignature) {
		return nil, protocolErrorf(NTLM, "malformed challenge message")
	}
	if binary.LittleEndian.Uint32(b[8:]) != 2 {
		return nil, protocolErrorf(NTLM, "unexpected message type")
	}

	c := &ntlmChallenge{flags: binary.LittleEndian.Uint32(b[20:])}
	copy(c.serverChallenge[:], b[24:32])

	var err error
	if c.targetName, err = ntlmSecurityBuffer(b, 12); err != nil {
		return nil, err
	}
	if c.flags&ntlmNegotiateTargetInfo != 0 && len(b) >= 48 {
		if c.targetInfo, err = ntlmSecurityBuffer(b, 40); err != nil {
			return nil, err
		}
		if len(c.targetInfo) > ntlmMaxTargetInfo {
			return nil, protocolErrorf(NTLM, "target info too large")
		}
	}
	return c, nil
}

func ntlmSecurityBuffer(msg []byte, offset int) ([]byte, error) {
	n := int(binary.LittleEndian.Uint16(msg[offset:]))
	start := int(binary.LittleEndian.Uint32(msg[offset+4:]))
	if n == 0 {
		return nil, nil
	}
	if start < 0 || start+n > len(msg) {
		return nil, protocolErrorf(NTLM, "security buffer out of range")
	}
	return msg[start : start+n], nil
}

// ntlmAvTimestampValue returns the MsvAvTimestamp value of target info.
func ntlmAvTimestampValue(info []byte) ([]byte, bool) {
	for len(info) >= 4 {
		id := binary.LittleEndian.Uint16(info)
		n := int(binary.LittleEndian.Uint16(info[2:]))
		if id == ntlmAvEOL || 4+n > len(info) {
			break
		}
		if id == ntlmAvTimestamp && n == 8 {
			return info[4:12], true
		}
		info = info[4+n:]
	}
	return nil, false
}

func (a *ntlmClient) authenticateMessage(c *ntlmChallenge) []byte {
	unicode := c.flags&ntlmNegotiateUnicode != 0
	encode := func(s string) []byte {
		if unicode {
			return utf16le(s)
		}
		return []byte(s)
	}

	domain := a.domain
	if domain == "" && len(c.targetName) > 0 {
		if unicode {
			domain = fromUTF16LE(c.targetName)
		} else {
			domain = string(c.targetName)
		}
	}

	responseKey := ntowfv2(a.password, a.username, domain)

	timestamp, hasTimestamp := ntlmAvTimestampValue(c.targetInfo)
	if !hasTimestamp {
		timestamp = make([]byte, 8)
		ft := uint64(a.now().UnixNano()/100 + ntlmEpochOffset)
		binary.LittleEndian.PutUint64(timestamp, ft)
	}

	var temp bytes.Buffer
	temp.Write([]byte{1, 1, 0, 0, 0, 0, 0, 0})
	temp.Write(timestamp)
	temp.Write(a.clientChallenge[:])
	temp.Write([]byte{0, 0, 0, 0})
	temp.Write(c.targetInfo)
	temp.Write([]byte{0, 0, 0, 0})

	mac := hmac.New(md5.New, responseKey)
	mac.Write(c.serverChallenge[:])
	mac.Write(temp.Bytes())
	ntProof := mac.Sum(nil)
	ntResponse := append(ntProof, temp.Bytes()...)

	var lmResponse []byte
	if hasTimestamp {
		// MS-NLMP 3.1.5.1.2: the LM response is zeroed when the server sent
		// a timestamp
		lmResponse = make([]byte, 24)
	} else {
		mac := hmac.New(md5.New, responseKey)
		mac.Write(c.serverChallenge[:])
		mac.Write(a.clientChallenge[:])
		lmResponse = append(mac.Sum(nil), a.clientChallenge[:]...)
	}

	flags := ntlmDefaultFlags &^ (ntlmNegotiateUnicode | ntlmNegotiateOEM)
	if unicode {
		flags |= ntlmNegotiateUnicode
	} else {
		flags |= ntlmNegotiateOEM
	}

	payloads := [][]byte{
		lmResponse,
		ntResponse,
		encode(domain),
		encode(a.username),
		encode(a.workstation),
		nil, // session key
	}

	const headerLen = 64
	msg := make([]byte, headerLen)
	copy(msg, ntlmSignature)
	binary.LittleEndian.PutUint32(msg[8:], 3)
	offset := headerLen
	for i, p := range payloads {
		field := 12 + i*8
		binary.LittleEndian.PutUint16(msg[field:], uint16(len(p)))
		binary.LittleEndian.PutUint16(msg[field+2:], uint16(len(p)))
		binary.LittleEndian.PutUint32(msg[field+4:], uint32(offset))
		offset += len(p)
	}
	binary.LittleEndian.PutUint32(msg[60:], flags)
	for _, p := range payloads {
		msg = append(msg, p...)
	}
	return msg
}

// ntowfv1 is MD4(UNICODE(password)).
func ntowfv1(password string) []byte {
	h := md4.New()
	h.Write(utf16le(password))
	return h.Sum(nil)
}

// ntowfv2 is HMAC_MD5(NTOWFv1(password), UNICODE(Uppercase(user) + domain)).
func ntowfv2(password, username, domain string) []byte {
	mac := hmac.New(md5.New, ntowfv1(password))
	mac.Write(utf16le(strings.ToUpper(username) + domain))
	return mac.Sum(nil)
}

func utf16le(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(u))
	for i, c := range u {
		binary.LittleEndian.PutUint16(b[2*i:], c)
	}
	return b
}

func fromUTF16LE(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(u))
}
