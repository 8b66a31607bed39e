package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/emersion/go-mailauth/sasl"
	"github.com/emersion/go-mailauth/smtp"
)

func smtpAuthCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smtp-auth",
		Short: "Authenticate against an SMTP server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.resolveProfile()
			if err != nil {
				return err
			}
			if p.Server == "" {
				return fmt.Errorf("missing --server")
			}
			logger, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if p.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, p.Timeout)
				defer cancel()
			}

			return smtpAuth(ctx, p, &smtp.Options{
				DebugWriter:  opts.debugWriter(cmd.ErrOrStderr()),
				Logger:       logger,
				ReadTimeout:  p.Timeout,
				WriteTimeout: p.Timeout,
				LocalName:    p.LocalName,
			}, logger)
		},
	}

	cmd.Flags().StringVar(&opts.profile.TLS, "tls", "", "TLS mode: implicit, starttls or none. Defaults to implicit on port 465, starttls otherwise.")
	cmd.Flags().BoolVar(&opts.profile.Insecure, "insecure-skip-verify", false, "Don't verify the server certificate.")
	cmd.Flags().StringVar(&opts.profile.LocalName, "local-name", "", "Host name sent with EHLO.")
	cmd.Flags().DurationVar(&opts.profile.Timeout, "timeout", 0, "Timeout for the whole exchange and each network operation.")

	return cmd
}

func smtpAuth(ctx context.Context, p *Profile, options *smtp.Options, logger log.Logger) error {
	tlsConfig := &tls.Config{
		ServerName:         p.host(),
		InsecureSkipVerify: p.Insecure,
	}

	var (
		c   *smtp.Client
		err error
	)
	switch p.tlsMode() {
	case tlsImplicit:
		c, err = smtp.DialTLS(p.Server, tlsConfig, options)
	default:
		c, err = smtp.Dial(p.Server, options)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %v: %w", p.Server, err)
	}
	defer c.Close()

	if p.tlsMode() == tlsStartTLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	cb := c.ChannelBinding()
	name := p.Mechanism
	if name == "" {
		offered, err := c.Mechanisms()
		if err != nil {
			return err
		}
		var ok bool
		name, ok = sasl.Best(offered, cb)
		if !ok {
			return fmt.Errorf("no usable SASL mechanism among %v", offered)
		}
	}

	mech, err := sasl.New(name, p.credential(), p.serviceURL(), cb)
	if err != nil {
		return err
	}
	if err := c.Authenticate(ctx, mech); err != nil {
		return fmt.Errorf("%v authentication failed: %w", mech.Name(), err)
	}
	level.Info(logger).Log("msg", "authenticated", "server", p.Server, "mechanism", mech.Name(),
		"channel_binding", mech.NegotiatedChannelBinding())

	return c.Quit()
}
