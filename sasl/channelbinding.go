package sasl

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"crypto/x509"
	"net"
)

// ChannelBindingKind is a channel binding type.
//
// The values are registered in the IANA "Channel-Binding Types" registry.
type ChannelBindingKind string

const (
	// RFC 5929 section 3. Undefined for TLS 1.3.
	ChannelBindingUnique ChannelBindingKind = "tls-unique"
	// RFC 5929 section 4.
	ChannelBindingEndpoint ChannelBindingKind = "tls-server-end-point"
	// RFC 9266.
	ChannelBindingExporter ChannelBindingKind = "tls-exporter"
)

// ChannelBinding is a structured channel binding, for consumers which pass
// the binding to a lower-level security API rather than embedding raw bytes.
type ChannelBinding struct {
	Kind          ChannelBindingKind
	InitiatorAddr net.Addr
	AcceptorAddr  net.Addr
	Data          []byte
}

// ChannelBindingProvider exposes channel binding data for the current TLS
// session.
//
// Both methods report false when the session doesn't support the requested
// kind. Providers must answer from already negotiated session state, without
// blocking.
type ChannelBindingProvider interface {
	// ChannelBindingToken returns the raw channel binding data.
	ChannelBindingToken(kind ChannelBindingKind) ([]byte, bool)
	// ChannelBinding returns the structured channel binding.
	ChannelBinding(kind ChannelBindingKind) (*ChannelBinding, bool)
}

// tlsChannelBinding reads channel bindings from a TLS connection.
type tlsChannelBinding struct {
	conn *tls.Conn
}

// NewTLSChannelBinding returns a provider reading channel binding data from
// conn. The handshake must be complete.
//
// The connection state is read on every query, the returned provider must
// not outlive the TLS session.
func NewTLSChannelBinding(conn *tls.Conn) ChannelBindingProvider {
	return &tlsChannelBinding{conn}
}

func (p *tlsChannelBinding) ChannelBindingToken(kind ChannelBindingKind) ([]byte, bool) {
	cs := p.conn.ConnectionState()
	return channelBindingData(&cs, kind)
}

func (p *tlsChannelBinding) ChannelBinding(kind ChannelBindingKind) (*ChannelBinding, bool) {
	cs := p.conn.ConnectionState()
	data, ok := channelBindingData(&cs, kind)
	if !ok {
		return nil, false
	}
	return &ChannelBinding{
		Kind:          kind,
		InitiatorAddr: p.conn.LocalAddr(),
		AcceptorAddr:  p.conn.RemoteAddr(),
		Data:          data,
	}, true
}

const exporterLabel = "EXPORTER-Channel-Binding"

func channelBindingData(cs *tls.ConnectionState, kind ChannelBindingKind) ([]byte, bool) {
	if !cs.HandshakeComplete {
		return nil, false
	}

	switch kind {
	case ChannelBindingUnique:
		if cs.Version >= tls.VersionTLS13 || len(cs.TLSUnique) == 0 {
			return nil, false
		}
		return append([]byte(nil), cs.TLSUnique...), true
	case ChannelBindingExporter:
		if cs.Version < tls.VersionTLS13 {
			return nil, false
		}
		b, err := cs.ExportKeyingMaterial(exporterLabel, nil, 32)
		if err != nil {
			return nil, false
		}
		return b, true
	case ChannelBindingEndpoint:
		if len(cs.PeerCertificates) == 0 {
			return nil, false
		}
		return serverEndPoint(cs.PeerCertificates[0])
	default:
		return nil, false
	}
}

// serverEndPoint hashes the server certificate with the hash of its signature
// algorithm, MD5 and SHA-1 being replaced with SHA-256.
func serverEndPoint(cert *x509.Certificate) ([]byte, bool) {
	switch cert.SignatureAlgorithm {
	case x509.MD5WithRSA, x509.SHA1WithRSA, x509.DSAWithSHA1, x509.ECDSAWithSHA1,
		x509.SHA256WithRSA, x509.SHA256WithRSAPSS, x509.ECDSAWithSHA256, x509.DSAWithSHA256,
		x509.PureEd25519: // undefined by RFC 5929, SHA-256 is common practice
		sum := sha256.Sum256(cert.Raw)
		return sum[:], true
	case x509.SHA384WithRSA, x509.SHA384WithRSAPSS, x509.ECDSAWithSHA384:
		sum := sha512.Sum384(cert.Raw)
		return sum[:], true
	case x509.SHA512WithRSA, x509.SHA512WithRSAPSS, x509.ECDSAWithSHA512:
		sum := sha512.Sum512(cert.Raw)
		return sum[:], true
	default:
		return nil, false
	}
}
