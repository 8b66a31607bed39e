package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/emersion/go-mailauth/internal/saslwire"
	"github.com/emersion/go-mailauth/sasl"
)

func respondCmd(opts *rootOptions) *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Answer base64 challenges read from stdin, one per line.",
		Long: `Answer base64 challenges read from stdin, one per line.

The initial response, if the mechanism has one, is printed first. An empty
line or "=" stands for an empty challenge. Channel binding is not available,
so PLUS mechanisms cannot be used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.resolveProfile()
			if err != nil {
				return err
			}
			if p.Mechanism == "" {
				return fmt.Errorf("missing --mechanism")
			}
			logger, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			uri := p.serviceURL()
			if service != "" {
				uri.Scheme = service
			}
			mech, err := sasl.New(p.Mechanism, p.credential(), uri, nil)
			if err != nil {
				return err
			}
			return respond(mech, cmd.InOrStdin(), cmd.OutOrStdout(), func(keyvals ...interface{}) {
				level.Info(logger).Log(keyvals...)
			})
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Service name used in the DIGEST-MD5 digest-uri. Defaults to smtp.")

	return cmd
}

// respond drives mech with the challenges read from r and writes the
// responses to w.
func respond(mech sasl.Mechanism, r io.Reader, w io.Writer, logf func(keyvals ...interface{})) error {
	if mech.SupportsInitialResponse() {
		ir, err := mech.Challenge(nil)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, saslwire.Encode(ir)); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		challenge := strings.TrimSpace(scanner.Text())
		resp, err := sasl.ChallengeBase64(mech, challenge)
		if err != nil {
			return err
		}
		if resp == "" {
			resp = "="
		}
		if _, err := fmt.Fprintln(w, resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	logf("msg", "exchange finished", "mechanism", mech.Name(),
		"authenticated", mech.IsAuthenticated(),
		"channel_binding", mech.NegotiatedChannelBinding(),
		"security_layer", mech.NegotiatedSecurityLayer())
	return nil
}
