package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile  string
	profileName string
	logLevel    string
	debug       bool

	// overrides applied on top of the selected profile
	profile Profile
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "mailauth",
		Short:         "Run SASL authentication exchanges.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Profile file (YAML).")
	cmd.PersistentFlags().StringVarP(&opts.profileName, "profile", "p", "", "Profile name. Defaults to the file's default profile.")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Print raw protocol traffic to stderr, credentials included.")
	cmd.PersistentFlags().StringVarP(&opts.profile.Mechanism, "mechanism", "m", "", "SASL mechanism. Defaults to the strongest offered one.")
	cmd.PersistentFlags().StringVarP(&opts.profile.Username, "username", "u", "", "Authentication identity.")
	cmd.PersistentFlags().StringVar(&opts.profile.AuthzID, "authzid", "", "Authorization identity.")
	cmd.PersistentFlags().StringVar(&opts.profile.Domain, "domain", "", "NTLM domain.")
	cmd.PersistentFlags().StringVarP(&opts.profile.Server, "server", "s", "", "Server address (host:port).")

	cmd.AddCommand(
		mechanismsCmd(),
		respondCmd(opts),
		smtpAuthCmd(opts),
	)

	return cmd
}

// resolveProfile merges the profile file, the command-line flags and the
// MAILAUTH_PASSWORD environment variable, in increasing priority.
func (opts *rootOptions) resolveProfile() (*Profile, error) {
	p := &Profile{}
	if opts.configFile != "" {
		cfg, err := loadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
		fromFile, err := cfg.Profile(opts.profileName)
		if err != nil {
			return nil, err
		}
		*p = *fromFile
	} else if opts.profileName != "" {
		return nil, fmt.Errorf("--profile requires --config")
	}

	o := &opts.profile
	if o.Server != "" {
		p.Server = o.Server
	}
	if o.Mechanism != "" {
		p.Mechanism = o.Mechanism
	}
	if o.Username != "" {
		p.Username = o.Username
	}
	if o.AuthzID != "" {
		p.AuthzID = o.AuthzID
	}
	if o.Domain != "" {
		p.Domain = o.Domain
	}
	if o.TLS != "" {
		p.TLS = o.TLS
	}
	if o.LocalName != "" {
		p.LocalName = o.LocalName
	}
	if o.Timeout != 0 {
		p.Timeout = o.Timeout
	}
	if o.Insecure {
		p.Insecure = true
	}
	if password, ok := os.LookupEnv("MAILAUTH_PASSWORD"); ok {
		p.Password = password
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (opts *rootOptions) logger(w io.Writer) (log.Logger, error) {
	var filter level.Option
	switch opts.logLevel {
	case "debug":
		filter = level.AllowDebug()
	case "info":
		filter = level.AllowInfo()
	case "warn":
		filter = level.AllowWarn()
	case "error":
		filter = level.AllowError()
	default:
		return nil, fmt.Errorf("invalid log level %q", opts.logLevel)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, filter)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	return logger, nil
}

func (opts *rootOptions) debugWriter(w io.Writer) io.Writer {
	if opts.debug {
		return w
	}
	return nil
}
