package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// LoadFile loads a config file (HCL or JSON), chosen by extension. Files
// without a .json extension are parsed as HCL. Unset values are filled
// with defaults and relative data paths are resolved against the file's
// directory; the result is not validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg *Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		cfg, err = LoadJSON(data)
	} else {
		cfg, err = LoadHCL(data, path)
	}
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{
		&c.GeoIP.CityDatabase,
		&c.GeoIP.ASNDatabase,
		&c.GeoIP.AnonymousDatabase,
		&c.GeoIP.SecondaryTable,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// LoadHCL parses HCL configuration. filename is used in diagnostics.
func LoadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadJSON parses JSON configuration. Unknown fields are rejected.
func LoadJSON(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads path when it is set and returns the defaults otherwise. The
// result is validated; warnings are returned alongside a nil error.
func Load(path string) (*Config, ValidationErrors, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, nil, err
		}
	}
	errs := cfg.Validate()
	if err := errs.Err(); err != nil {
		return nil, errs, err
	}
	return cfg, errs.Warnings(), nil
}
