package main

import (
	"fmt"
	"os"

	"github.com/tinyrange/gicv3/internal/gic"
	"github.com/tinyrange/gicv3/internal/gicsim"
	"gopkg.in/yaml.v3"
)

// maxConfigSize bounds the configuration file.
const maxConfigSize = 1 << 20

// fileConfig is the on-disk configuration. Keys left out keep their
// defaults.
type fileConfig struct {
	GIC gic.Config    `yaml:"gic"`
	Sim gicsim.Params `yaml:"sim"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{GIC: gic.DefaultConfig(), Sim: gicsim.DefaultParams()}
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if info.Size() > maxConfigSize {
		return cfg, fmt.Errorf("config: %s is %d bytes, limit %d", path, info.Size(), maxConfigSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := parseConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte, cfg *fileConfig) error {
	// Decoding over the defaults keeps absent keys. Clusters replaces the
	// default list rather than merging into it.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return cfg.GIC.Validate()
}

// layout maps the driver configuration onto the platform model.
func (c fileConfig) layout() gicsim.Layout {
	return gicsim.Layout{
		DistributorBase:     c.GIC.DistributorBase(),
		RedistributorBase:   c.GIC.RedistributorBase(0),
		RedistributorStride: c.GIC.RedistributorStride,
		WakeAddr:            c.GIC.ErratumWakeAddr,
		Clusters:            c.GIC.Clusters,
	}
}
