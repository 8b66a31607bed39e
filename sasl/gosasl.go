package sasl

import (
	gosasl "github.com/emersion/go-sasl"
)

// clientMechanism drives a github.com/emersion/go-sasl client as a
// Mechanism. It is the inverse of NewClient.
//
// go-sasl clients don't report completion: the exchange is complete once
// rounds challenges have been answered after the initial response.
type clientMechanism struct {
	state
	name   string
	client gosasl.Client
	rounds int
	// prompted mechanisms accept a server prompt in place of the initial
	// response request, e.g. LOGIN's "Username:"
	prompted bool
}

func (m *clientMechanism) Name() string                  { return m.name }
func (m *clientMechanism) SupportsInitialResponse() bool { return true }
func (m *clientMechanism) SupportsChannelBinding() bool  { return false }

func (m *clientMechanism) Challenge(serverData []byte) ([]byte, error) {
	if m.authenticated && len(serverData) > 0 {
		// the library may decode a failure report, e.g. OAUTHBEARER's JSON
		// error
		_, err := m.client.Next(serverData)
		return nil, wrapProtocolError(m.name, "unexpected server challenge after authentication", err)
	}
	if resp, ok, err := m.done(m.name, serverData); ok {
		return resp, err
	}

	var (
		resp []byte
		err  error
	)
	if m.step == 0 {
		if len(serverData) > 0 && !m.prompted {
			return nil, protocolErrorf(m.name, "unexpected server challenge")
		}
		_, resp, err = m.client.Start()
	} else {
		resp, err = m.client.Next(serverData)
	}
	if err != nil {
		return nil, wrapProtocolError(m.name, "exchange failed", err)
	}

	if m.step == m.rounds {
		m.authenticated = true
	}
	m.step++
	if resp == nil {
		resp = []byte{}
	}
	return resp, nil
}
