package smtp

import (
	"context"
	"errors"

	"github.com/go-kit/log/level"

	"github.com/emersion/go-mailauth"
	"github.com/emersion/go-mailauth/internal/saslwire"
	"github.com/emersion/go-mailauth/sasl"
)

// Authenticate runs a SASL exchange with the AUTH command (RFC 4954).
//
// The initial response is sent on the AUTH line when the mechanism supports
// it. If the mechanism fails mid-exchange, the exchange is cancelled with "*"
// and the mechanism error is returned. A rejection by the server yields a
// *mailauth.CommandError carrying the reply code.
//
// If ctx is done before the exchange completes, the connection is left in an
// undefined state and the client becomes unusable.
func (c *Client) Authenticate(ctx context.Context, mech sasl.Mechanism) (err error) {
	if mech == nil {
		return &mailauth.ConfigError{Text: "smtp: missing SASL mechanism"}
	}
	if err := c.hello(); err != nil {
		return err
	}
	if c.err != nil {
		return c.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := c.stream.WatchContext(ctx)
	defer func() {
		if !stop() {
			// the stream is unusable, even if the exchange completed
			c.err = &mailauth.ProtocolError{Text: "smtp: authentication interrupted", Err: context.Cause(ctx)}
			err = c.err
		}
	}()

	return c.fail(c.authenticate(mech))
}

func (c *Client) authenticate(mech sasl.Mechanism) error {
	name := mech.Name()
	cmd := &mailauth.Command{Kind: mailauth.CommandAuth, Name: "AUTH"}
	logger := level.Debug(c.logger)

	line := "AUTH " + name
	if mech.SupportsInitialResponse() {
		ir, err := mech.Challenge(nil)
		if err != nil {
			// nothing has been sent yet
			return err
		}
		line += " " + saslwire.Encode(ir)
	}

	reply, err := c.exec(cmd, line, "AUTH "+name)
	for {
		if err != nil {
			return err
		}

		switch reply.Status {
		case mailauth.StatusAuthenticationChallenge:
			// handled below
		default:
			if !mech.IsAuthenticated() {
				return protocolErrorf("server completed %v authentication before the mechanism", name)
			}
			logger.Log("msg", "authenticated", "mechanism", name,
				"channel_binding", mech.NegotiatedChannelBinding())
			return nil
		}

		resp, mechErr := sasl.ChallengeBase64(mech, reply.Text())
		if mechErr != nil {
			logger.Log("msg", "cancelling authentication", "mechanism", name, "err", mechErr)
			// the server answers the cancellation with a 501 reply
			var cmdErr *mailauth.CommandError
			if _, err := c.exec(cmd, "*", "*"); err != nil && !errors.As(err, &cmdErr) {
				return err
			}
			return mechErr
		}
		reply, err = c.exec(cmd, resp, "<SASL response>")
	}
}
