package main

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emersion/go-mailauth/sasl"
)

// TLS modes
const (
	tlsImplicit = "implicit"
	tlsStartTLS = "starttls"
	tlsNone     = "none"
)

// Profile describes an account to authenticate with.
type Profile struct {
	Server    string        `yaml:"server"`
	TLS       string        `yaml:"tls"`
	Insecure  bool          `yaml:"insecure_skip_verify"`
	LocalName string        `yaml:"local_name"`
	Timeout   time.Duration `yaml:"timeout"`
	Mechanism string        `yaml:"mechanism"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	AuthzID   string        `yaml:"authzid"`
	Domain    string        `yaml:"domain"`
}

// Config is the content of the profile file.
type Config struct {
	Default  string              `yaml:"default"`
	Profiles map[string]*Profile `yaml:"profiles"`
}

func decodeConfig(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for name, p := range cfg.Profiles {
		if p == nil {
			return nil, fmt.Errorf("profile %q is empty", name)
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
	}
	return &cfg, nil
}

func loadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeConfig(f)
}

// Profile returns the named profile, or the default one if name is empty.
func (cfg *Config) Profile(name string) (*Profile, error) {
	if name == "" {
		name = cfg.Default
	}
	if name == "" {
		if len(cfg.Profiles) == 1 {
			for _, p := range cfg.Profiles {
				return p, nil
			}
		}
		return nil, fmt.Errorf("no profile selected")
	}
	p, ok := cfg.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}

func (p *Profile) validate() error {
	switch strings.ToLower(p.TLS) {
	case "", tlsImplicit, tlsStartTLS, tlsNone:
	default:
		return fmt.Errorf("invalid TLS mode %q", p.TLS)
	}
	if p.Mechanism != "" && !sasl.IsSupported(p.Mechanism) {
		return fmt.Errorf("unsupported mechanism %q", p.Mechanism)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("negative timeout")
	}
	return nil
}

// tlsMode returns the TLS mode, guessing from the port when unset.
func (p *Profile) tlsMode() string {
	if p.TLS != "" {
		return strings.ToLower(p.TLS)
	}
	if _, port, err := net.SplitHostPort(p.Server); err == nil && port == "465" {
		return tlsImplicit
	}
	return tlsStartTLS
}

func (p *Profile) host() string {
	host, _, err := net.SplitHostPort(p.Server)
	if err != nil {
		return p.Server
	}
	return host
}

func (p *Profile) serviceURL() *url.URL {
	return &url.URL{Scheme: "smtp", Host: p.Server}
}

func (p *Profile) credential() *sasl.Credential {
	return &sasl.Credential{
		Username: p.Username,
		Password: p.Password,
		AuthzID:  p.AuthzID,
		Domain:   p.Domain,
	}
}
