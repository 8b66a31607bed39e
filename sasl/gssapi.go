package sasl

// The GSSAPI mechanism name.
const GSSAPI = "GSSAPI"

// GSSContext is an initiator-side GSS-API security context, e.g. a Kerberos V5
// context for the service principal "<service>@<host>".
//
// Implementations must not block: tokens are computed from state the caller
// already acquired, such as a Kerberos service ticket.
type GSSContext interface {
	// Step consumes the acceptor token (nil on the first call) and returns the
	// next initiator token. established reports whether the context is
	// complete.
	Step(token []byte) (out []byte, established bool, err error)
	// Wrap protects a message with integrity only.
	Wrap(msg []byte) ([]byte, error)
	// Unwrap verifies and unprotects a message.
	Unwrap(token []byte) ([]byte, error)
}

// GSSChannelBinder is implemented by security contexts which accept channel
// bindings for GSS_Init_sec_context (RFC 2744 section 3.11). The acceptor
// then checks the binding against its own end of the TLS session.
type GSSChannelBinder interface {
	SetChannelBinding(cb *ChannelBinding) error
}

// GSS-API contexts try channel binding types in this order. Kerberos
// acceptors commonly expect tls-server-end-point.
var gssBindingPreference = []ChannelBindingKind{
	ChannelBindingEndpoint,
	ChannelBindingExporter,
	ChannelBindingUnique,
}

// "no security layer" bit, RFC 4752 section 3.3
const gssLayerNone byte = 1

type gssapiClient struct {
	state
	ctx         GSSContext
	authzID     string
	bound       bool
	established bool
}

// NewGSSAPIClient creates a client implementation of the GSSAPI authentication
// mechanism, as described in RFC 4752, on top of cred.GSS.
//
// The "no security layer" option is always selected.
//
// If cred.GSS implements GSSChannelBinder and cb supplies a structured
// binding, the binding is handed to the context before the first step.
func NewGSSAPIClient(cred *Credential, cb ChannelBindingProvider) (Mechanism, error) {
	if err := checkCredential(GSSAPI, cred, false); err != nil {
		return nil, err
	}
	if cred.GSS == nil {
		return nil, configErrorf("sasl: %v: missing GSS-API security context", GSSAPI)
	}
	a := &gssapiClient{ctx: cred.GSS, authzID: cred.AuthzID}

	binder, ok := cred.GSS.(GSSChannelBinder)
	if !ok || cb == nil {
		return a, nil
	}
	for _, kind := range gssBindingPreference {
		binding, ok := cb.ChannelBinding(kind)
		if !ok {
			continue
		}
		if err := binder.SetChannelBinding(binding); err != nil {
			return nil, configErrorf("sasl: %v: failed to set channel binding: %v", GSSAPI, err)
		}
		a.bound = true
		break
	}
	return a, nil
}

func (a *gssapiClient) Name() string                  { return GSSAPI }
func (a *gssapiClient) SupportsInitialResponse() bool { return true }
func (a *gssapiClient) SupportsChannelBinding() bool  { return a.bound }

func (a *gssapiClient) Challenge(serverData []byte) ([]byte, error) {
	if resp, ok, err := a.done(GSSAPI, serverData); ok {
		return resp, err
	}

	if !a.established {
		var in []byte
		switch {
		case a.step == 0 && len(serverData) > 0:
			return nil, protocolErrorf(GSSAPI, "unexpected server token")
		case a.step > 0 && len(serverData) == 0:
			return nil, protocolErrorf(GSSAPI, "empty server token")
		case a.step > 0:
			in = serverData
		}
		out, established, err := a.ctx.Step(in)
		if err != nil {
			return nil, wrapProtocolError(GSSAPI, "security context step failed", err)
		}
		a.step++
		a.established = established
		if out == nil {
			out = []byte{}
		}
		return out, nil
	}

	if len(serverData) == 0 {
		// the server acknowledges the last context token
		return []byte{}, nil
	}

	msg, err := a.ctx.Unwrap(serverData)
	if err != nil {
		return nil, wrapProtocolError(GSSAPI, "failed to unwrap security layer offer", err)
	}
	if len(msg) != 4 {
		return nil, protocolErrorf(GSSAPI, "malformed security layer offer")
	}
	if msg[0]&gssLayerNone == 0 {
		return nil, protocolErrorf(GSSAPI, "server requires a security layer")
	}

	// no layer selected, so the maximum message size is zero
	reply := append([]byte{gssLayerNone, 0, 0, 0}, a.authzID...)

	out, err := a.ctx.Wrap(reply)
	if err != nil {
		return nil, wrapProtocolError(GSSAPI, "failed to wrap security layer selection", err)
	}
	a.step++
	a.authenticated = true
	a.negotiatedBinding = a.bound
	return out, nil
}
