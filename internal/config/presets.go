package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rmitchellscott/ditherbox/internal/dither"
)

// ErrUnknownPreset is returned by ResolveParams for a name with no preset.
var ErrUnknownPreset = errors.New("unknown preset")

// Preset is a named parameter set.
type Preset struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Params      dither.Params `json:"params" yaml:",inline"`
}

// UnmarshalYAML fills parameters missing from the document with
// dither.DefaultParams.
func (p *Preset) UnmarshalYAML(value *yaml.Node) error {
	type plain Preset
	raw := plain{Params: dither.DefaultParams()}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*p = Preset(raw)
	return nil
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Presets is an ordered set of presets keyed by lowercase name.
type Presets struct {
	order  []string
	byName map[string]Preset
}

func builtinPresets() []Preset {
	p := func(a dither.Algorithm, threshold int, factor float64, size int) dither.Params {
		return dither.Params{Algorithm: a, Threshold: threshold, ErrorDiffusionFactor: factor, MatrixSize: size}
	}
	return []Preset{
		{"classic", "Floyd-Steinberg at full strength", p(dither.AlgorithmFloydSteinberg, 128, 1.0, 4)},
		{"newsprint", "Jarvis-Judice-Ninke, smooth wide spread", p(dither.AlgorithmJarvisJudiceNinke, 128, 1.0, 4)},
		{"crisp", "Stucki with slightly boosted diffusion", p(dither.AlgorithmStucki, 128, 1.2, 4)},
		{"mac", "Atkinson, high contrast", p(dither.AlgorithmAtkinson, 128, 1.0, 4)},
		{"halftone-2", "Bayer ordered, 2x2 cells", p(dither.AlgorithmBayerOrdered, 128, 1.0, 2)},
		{"halftone-4", "Bayer ordered, 4x4 cells", p(dither.AlgorithmBayerOrdered, 128, 1.0, 4)},
	}
}

// DefaultPresets returns the built-in presets.
func DefaultPresets() *Presets {
	ps := &Presets{byName: make(map[string]Preset)}
	for _, p := range builtinPresets() {
		ps.put(p)
	}
	return ps
}

func (ps *Presets) put(p Preset) {
	key := strings.ToLower(p.Name)
	if _, exists := ps.byName[key]; !exists {
		ps.order = append(ps.order, key)
	}
	ps.byName[key] = p
}

// Get looks a preset up by name, ignoring case.
func (ps *Presets) Get(name string) (Preset, bool) {
	p, ok := ps.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// List returns presets in definition order.
func (ps *Presets) List() []Preset {
	out := make([]Preset, 0, len(ps.order))
	for _, key := range ps.order {
		out = append(out, ps.byName[key])
	}
	return out
}

// ParsePresets decodes a YAML presets document.
func ParsePresets(data []byte) ([]Preset, error) {
	var doc presetFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	for i, p := range doc.Presets {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("preset %d has no name", i)
		}
		if !p.Params.Algorithm.Valid() {
			return nil, fmt.Errorf("preset %q: unknown algorithm", p.Name)
		}
	}
	return doc.Presets, nil
}

// LoadPresets returns the built-in presets overlaid with the presets in
// path. An empty path yields the built-ins.
func LoadPresets(path string) (*Presets, error) {
	ps := DefaultPresets()
	if path == "" {
		return ps, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file %s: %w", path, err)
	}
	extra, err := ParsePresets(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, p := range extra {
		ps.put(p)
	}
	return ps, nil
}

// Overrides are optional per-request changes applied on top of a preset.
// Nil and empty fields keep the preset's value.
type Overrides struct {
	Algorithm  string
	Threshold  *int
	Factor     *float64
	MatrixSize *int
}

// ResolveParams starts from the named preset, or dither.DefaultParams when
// name is empty, and applies o. An unrecognized algorithm name is kept as
// AlgorithmUnknown so the dispatcher can pass the image through.
func (ps *Presets) ResolveParams(name string, o Overrides) (dither.Params, error) {
	params := dither.DefaultParams()
	if strings.TrimSpace(name) != "" {
		preset, ok := ps.Get(name)
		if !ok {
			return dither.Params{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
		}
		params = preset.Params
	}

	if strings.TrimSpace(o.Algorithm) != "" {
		params.Algorithm = dither.ParseAlgorithm(o.Algorithm)
	}
	if o.Threshold != nil {
		params.Threshold = *o.Threshold
	}
	if o.Factor != nil {
		params.ErrorDiffusionFactor = *o.Factor
	}
	if o.MatrixSize != nil {
		params.MatrixSize = *o.MatrixSize
	}
	return params, nil
}
