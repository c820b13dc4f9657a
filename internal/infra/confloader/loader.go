package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix of the environment variables read by
// default. A double underscore separates levels: LIBOS_IPC__BIND_PORT is
// ipc.bind_port.
const DefaultEnvPrefix = "LIBOS_"

// Layer names, lowest precedence first, as reported by Origin.
const (
	LayerDefaults  = "defaults"
	LayerFile      = "file"
	LayerEnv       = "env"
	LayerOverrides = "overrides"
)

// Loader merges defaults, a YAML file, the environment and overrides, each
// layer winning over the ones before it.
type Loader struct {
	envPrefix string
	filePath  string
	defaults  map[string]any
	overrides map[string]any

	k      *koanf.Koanf
	origin map[string]string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix reads environment variables starting with prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile reads path as YAML. An empty path skips the file layer.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithDefaults sets the lowest layer. Keys may be dotted paths.
func WithDefaults(m map[string]any) Option {
	return func(l *Loader) { l.defaults = m }
}

// WithOverrides sets the highest layer, usually from command-line flags.
// Every Load applies it again.
func WithOverrides(m map[string]any) Option {
	return func(l *Loader) { l.overrides = m }
}

// NewLoader returns a Loader with nothing loaded yet.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		envPrefix: DefaultEnvPrefix,
		k:         koanf.New("."),
		origin:    map[string]string{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath is the configured YAML file, or "".
func (l *Loader) FilePath() string { return l.filePath }

// Load reads every layer from scratch and unmarshals the result into
// target by koanf tags. Fields no layer sets keep their value in target.
func (l *Loader) Load(target any) error {
	k := koanf.New(".")
	origin := map[string]string{}

	for _, layer := range l.layers() {
		part := koanf.New(".")
		if err := layer.read(part); err != nil {
			return fmt.Errorf("load %s: %w", layer.name, err)
		}
		if err := k.Merge(part); err != nil {
			return fmt.Errorf("merge %s: %w", layer.name, err)
		}
		for _, key := range part.Keys() {
			origin[key] = layer.name
		}
	}

	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	l.k, l.origin = k, origin
	return nil
}

type layer struct {
	name string
	read func(*koanf.Koanf) error
}

func (l *Loader) layers() []layer {
	var out []layer
	if len(l.defaults) > 0 {
		out = append(out, layer{LayerDefaults, func(k *koanf.Koanf) error {
			return k.Load(mapProvider(l.defaults), nil)
		}})
	}
	if l.filePath != "" {
		out = append(out, layer{LayerFile, func(k *koanf.Koanf) error {
			return k.Load(file.Provider(l.filePath), yaml.Parser())
		}})
	}
	out = append(out, layer{LayerEnv, func(k *koanf.Koanf) error {
		return k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil)
	}})
	if len(l.overrides) > 0 {
		out = append(out, layer{LayerOverrides, func(k *koanf.Koanf) error {
			return k.Load(mapProvider(l.overrides), nil)
		}})
	}
	return out
}

func (l *Loader) envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, l.envPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

// Origin names the layer that set key in the last Load, or "" if none did.
func (l *Loader) Origin(key string) string { return l.origin[key] }

// Get returns the raw value of key from the last Load.
func (l *Loader) Get(key string) any { return l.k.Get(key) }

// String returns key as a string.
func (l *Loader) String(key string) string { return l.k.String(key) }

// Int returns key as an int.
func (l *Loader) Int(key string) int { return l.k.Int(key) }

// Bool returns key as a bool.
func (l *Loader) Bool(key string) bool { return l.k.Bool(key) }

// Keys lists the flattened keys of the last Load.
func (l *Loader) Keys() []string { return l.k.Keys() }
