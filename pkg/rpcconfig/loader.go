package rpcconfig

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CONDUIT_"

// Loader layers defaults, an optional YAML file and environment
// overrides into one Config, patterned on the teacher's pkg/config
// Loader: koanf.New(".") plus confmap/file/env providers applied in
// ascending priority order.
type Loader struct {
	k          *koanf.Koanf
	configPath string
	envPrefix  string
}

type LoaderOption func(*Loader)

func WithConfigPath(path string) LoaderOption {
	return func(l *Loader) { l.configPath = path }
}

func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{k: koanf.New("."), configPath: "conduit.yaml", envPrefix: envPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadClientOptions applies the three layers onto DefaultClientOptions.
func (l *Loader) LoadClientOptions() (ClientOptions, error) {
	cfg := DefaultClientOptions()
	if err := l.load("client"); err != nil {
		return cfg, err
	}
	if err := l.k.Unmarshal("client", &cfg); err != nil {
		return cfg, fmt.Errorf("rpcconfig: unmarshal client options: %w", err)
	}
	return cfg, nil
}

// LoadServerOptions applies the three layers onto DefaultServerOptions.
func (l *Loader) LoadServerOptions() (ServerOptions, error) {
	cfg := DefaultServerOptions()
	if err := l.load("server"); err != nil {
		return cfg, err
	}
	if err := l.k.Unmarshal("server", &cfg); err != nil {
		return cfg, fmt.Errorf("rpcconfig: unmarshal server options: %w", err)
	}
	return cfg, nil
}

func (l *Loader) load(section string) error {
	defaults := map[string]any{}
	if err := l.k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return fmt.Errorf("rpcconfig: load defaults: %w", err)
	}

	if _, err := os.Stat(l.configPath); err == nil {
		if err := l.k.Load(file.Provider(l.configPath), yaml.Parser()); err != nil {
			return fmt.Errorf("rpcconfig: load config file %s: %w", l.configPath, err)
		}
	}

	if err := l.k.Load(env.Provider(l.envPrefix, ".", envTransform(l.envPrefix)), nil); err != nil {
		return fmt.Errorf("rpcconfig: load env: %w", err)
	}
	_ = section
	return nil
}

// envTransform maps CONDUIT_CLIENT_RETRY_COUNT -> client.retry_count,
// mirroring the teacher's loader convention of prefix-stripped,
// lower-cased env keys. Only the first underscore (the section
// separator) becomes a dot, so nested keys such as client.tls.enabled
// cannot be set from the environment.
func envTransform(prefix string) func(string) string {
	return func(s string) string {
		trimmed := s
		if len(s) > len(prefix) {
			trimmed = s[len(prefix):]
		}
		out := make([]byte, 0, len(trimmed))
		sectionSplit := false
		for i := 0; i < len(trimmed); i++ {
			c := trimmed[i]
			if c == '_' && !sectionSplit {
				out = append(out, '.')
				sectionSplit = true
				continue
			}
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			out = append(out, c)
		}
		return string(out)
	}
}
