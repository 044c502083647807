package geometry

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Load reads a custom device profile in YAML format. Fields that are not
// present are taken from the profile named in the base key, or from the
// default profile if no base is given.
//
//	base: sst39sf512
//	name: custom
//	rom_size: 65536
//	sector: {size: 4096, shift: 12, count: 16}
//	timing:
//	  program: {spins: 8192, timeout: 10ms}
func Load(r io.Reader) (Geometry, error) {
	var doc struct {
		Base     string `yaml:"base"`
		Geometry `yaml:",inline"`
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Geometry{}, fmt.Errorf("reading profile: %w", err)
	}

	// decode once to find the base profile, then decode again on top of it
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Geometry{}, fmt.Errorf("decoding profile: %w", err)
	}
	base := doc.Base
	if base == "" {
		base = Default
	}
	g, err := Lookup(base)
	if err != nil {
		return Geometry{}, err
	}

	doc.Geometry = g
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Geometry{}, fmt.Errorf("decoding profile: %w", err)
	}

	g = doc.Geometry
	if err := g.Validate(); err != nil {
		return Geometry{}, err
	}
	return g, nil
}
