// Package saslwire implements the base64 encoding of SASL payloads used by
// mail protocols.
//
// An empty payload is sent as a single "=" (RFC 4954 section 4, RFC 9051
// section 6.2.2).
package saslwire

import (
	"encoding/base64"
)

func Encode(b []byte) string {
	if len(b) == 0 {
		return "="
	} else {
		return base64.StdEncoding.EncodeToString(b)
	}
}

func Decode(s string) ([]byte, error) {
	if s == "=" || s == "" {
		// mechanisms treat nil as "no challenge", so return a non-nil empty
		// byte slice
		return []byte{}, nil
	} else {
		return base64.StdEncoding.DecodeString(s)
	}
}
