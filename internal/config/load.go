package config

import (
	"fmt"

	"github.com/yndnr/libos-go/internal/infra/confloader"
)

// Load reads the configuration from path (optional), the environment and
// overrides, on top of Default, and verifies it. The returned loader
// reloads the same layers.
func Load(path string, overrides map[string]any) (*Config, *confloader.Loader, error) {
	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)

	cfg := Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}
