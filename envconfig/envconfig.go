// Package envconfig loads the named-environment registry and resolves which
// environment to use for a request.
//
// The registry is a JSON file, by default at
// $XDG_CONFIG_HOME/kognic/environments.json:
//
//	{
//	  "default_environment": "production",
//	  "environments": {
//	    "production": {
//	      "host": "app.kognic.com",
//	      "auth_server": "https://auth.app.kognic.com",
//	      "credentials": "keyring://production"
//	    }
//	  }
//	}
//
// It is read once per process and fully validated at load time; the snapshot
// is read-only afterwards.
package envconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	kognicauth "github.com/kognic/kognic-auth-go"
	"github.com/kognic/kognic-auth-go/credentials"
)

// UnknownEnvironmentError reports an explicitly requested environment that is
// not in the registry.
type UnknownEnvironmentError struct {
	Name string
}

func (e *UnknownEnvironmentError) Error() string {
	return fmt.Sprintf("unknown environment: %s", e.Name)
}

// NoMatchError reports that no environment matched the request host and no
// default environment is configured.
type NoMatchError struct {
	Host string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no environment matches host %q and no default_environment is set", e.Host)
}

// Environment is one named host/auth-server/credentials bundle.
type Environment struct {
	Name       string `json:"-"`
	Host       string `json:"host" validate:"required,hostname_rfc1123"`
	AuthServer string `json:"auth_server" validate:"required,url"`

	// Credentials is a file path, a keyring://<profile> reference, or empty,
	// empty meaning "use environment variables or the default keyring profile".
	Credentials string `json:"credentials,omitempty"`
}

// Config is the read-only registry snapshot.
type Config struct {
	DefaultEnvironment string                 `json:"default_environment,omitempty"`
	Environments       map[string]Environment `json:"environments"`
}

// DefaultPath returns the default registry location:
// $XDG_CONFIG_HOME/kognic/environments.json, falling back to ~/.config.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "kognic", "environments.json")
}

// Load reads and validates the registry at path. A missing file is not an
// error: resolution then falls back to the built-in default environment.
func Load(path string) (*Config, error) {
	expanded, err := credentials.ExpandHome(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(expanded); errors.Is(err, fs.ErrNotExist) {
		return &Config{Environments: map[string]Environment{}}, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(expanded), koanfjson.Parser()); err != nil {
		return nil, fmt.Errorf("loading environment config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("parsing environment config %s: %w", path, err)
	}
	if cfg.Environments == nil {
		cfg.Environments = map[string]Environment{}
	}

	for name, env := range cfg.Environments {
		env.Name = name
		if env.Credentials != "" {
			if _, isKeyring := credentials.ParseLocator(env.Credentials).(credentials.KeyringRef); !isKeyring {
				expanded, err := credentials.ExpandHome(env.Credentials)
				if err != nil {
					return nil, fmt.Errorf("environment %q: %w", name, err)
				}
				env.Credentials = expanded
			}
		}
		cfg.Environments[name] = env
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid environment config %s: %w", path, err)
	}
	return cfg, nil
}

// validate rejects partially-invalid environments eagerly, naming the
// offending one.
func (c *Config) validate() error {
	v := validator.New()
	hosts := make(map[string]string, len(c.Environments))

	for name, env := range c.Environments {
		if err := v.Struct(env); err != nil {
			return fmt.Errorf("environment %q: %w", name, err)
		}
		if prev, ok := hosts[env.Host]; ok && prev != name {
			// Resolution matches on exact host, so duplicates would be ambiguous.
			first, second := prev, name
			if second < first {
				first, second = second, first
			}
			return fmt.Errorf("environments %q and %q share host %q", first, second, env.Host)
		}
		hosts[env.Host] = name
	}

	if c.DefaultEnvironment != "" {
		if _, ok := c.Environments[c.DefaultEnvironment]; !ok {
			return fmt.Errorf("default_environment %q is not a defined environment", c.DefaultEnvironment)
		}
	}
	return nil
}

// Resolve picks the environment for a request. Precedence: explicit name,
// exact hostname match against the request URL, then default_environment.
// An empty registry resolves to the built-in production environment so the
// CLI works without any config file.
func (c *Config) Resolve(explicitName, requestURL string) (Environment, error) {
	if explicitName != "" {
		env, ok := c.Environments[explicitName]
		if !ok {
			return Environment{}, &UnknownEnvironmentError{Name: explicitName}
		}
		return env, nil
	}

	var host string
	if requestURL != "" {
		u, err := url.Parse(requestURL)
		if err != nil {
			return Environment{}, fmt.Errorf("parsing request URL: %w", err)
		}
		host = u.Hostname()
	}

	if host != "" {
		for _, env := range c.Environments {
			if env.Host == host {
				return env, nil
			}
		}
	}

	if c.DefaultEnvironment != "" {
		return c.Environments[c.DefaultEnvironment], nil
	}

	if len(c.Environments) == 0 {
		return Environment{
			Name:       "default",
			Host:       kognicauth.DefaultPlatformHost,
			AuthServer: kognicauth.DefaultAuthServer,
		}, nil
	}

	return Environment{}, &NoMatchError{Host: host}
}
