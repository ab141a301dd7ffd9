package gic

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if got := cfg.DistributorBase(); got != 0x08000000 {
		t.Fatalf("DistributorBase = %#x, want 0x08000000", got)
	}
	if got := cfg.RedistributorBase(2); got != 0x080a0000+2*0x20000 {
		t.Fatalf("RedistributorBase(2) = %#x", got)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"no base":        func(c *Config) { c.Base = 0 },
		"small stride":   func(c *Config) { c.RedistributorStride = 0x10000 },
		"ipi base":       func(c *Config) { c.IPIBase = 13 },
		"wake bit":       func(c *Config) { c.ErratumWakeBit = 32 },
		"no clusters":    func(c *Config) { c.Clusters = nil },
		"wide cluster":   func(c *Config) { c.Clusters = []int{17} },
		"too many cores": func(c *Config) { c.Clusters = []int{16, 16, 16, 16, 16} },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: Validate succeeded", name)
		}
		if _, err := New(cfg, nil); err == nil {
			t.Fatalf("%s: New succeeded", name)
		}
	}
}

func TestConfigYAML(t *testing.T) {
	src := `
base: 0x2f000000
gicd_offset: 0
gicr_offset: 0x100000
gicr_stride: 0x20000
erratum_wake_addr: 0x3a000000
erratum_wake_bit: 5
ipi_base: 8
optional: true
clusters: [4, 4]
`
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Base != 0x2f000000 || cfg.RedistributorOffset != 0x100000 || cfg.IPIBase != 8 || !cfg.Optional {
		t.Fatalf("decoded %+v", cfg)
	}
	if cfg.ErratumWakeAddr != 0x3a000000 || cfg.ErratumWakeBit != 5 {
		t.Fatalf("erratum fields %#x/%d", cfg.ErratumWakeAddr, cfg.ErratumWakeBit)
	}
	if len(cfg.Clusters) != 2 || cfg.Clusters[1] != 4 {
		t.Fatalf("clusters = %v", cfg.Clusters)
	}
}

func TestCPUMask(t *testing.T) {
	m := MaskOf(0, 3, 63)
	if !m.Has(3) || m.Has(2) || !m.Has(63) || m.Has(64) || m.Has(-1) {
		t.Fatalf("Has wrong for %s", m)
	}
	if m.Count() != 3 {
		t.Fatalf("Count = %d, want 3", m.Count())
	}
	if got := m.String(); got != "{0,3,63}" {
		t.Fatalf("String = %q", got)
	}
}
