package config

import "sort"

// Preset is a named set of parameter overrides describing a typical
// interstellar environment.
type Preset struct {
	Description string  `yaml:"description"`
	Params      Entries `yaml:"params"`
}

var Presets = map[string]Preset{
	"dark_cloud": {
		Description: "cold quiescent dark cloud core",
		Params: Entries{
			{"T_kin", "10 K"},
			{"n_H2", "1e4 cm^-3"},
			{"N_mol", "1e17 cm^-2"},
			{"dv", "0.5 km/s"},
		},
	},
	"translucent": {
		Description: "diffuse to translucent cloud",
		Params: Entries{
			{"T_kin", "30 K"},
			{"n_H2", "500 cm^-3"},
			{"N_mol", "1e16 cm^-2"},
			{"dv", "1.0 km/s"},
		},
	},
	"warm_dense": {
		Description: "warm dense gas near a star-forming region",
		Params: Entries{
			{"T_kin", "50 K"},
			{"n_H2", "1e5 cm^-3"},
			{"N_mol", "1e17 cm^-2"},
			{"dv", "2.0 km/s"},
		},
	},
	"hot_core": {
		Description: "hot molecular core around a massive protostar",
		Params: Entries{
			{"T_kin", "200 K"},
			{"n_H2", "1e7 cm^-3"},
			{"N_mol", "1e18 cm^-2"},
			{"dv", "5.0 km/s"},
		},
	},
}

// GetPreset returns the named preset, looking at the configuration's own
// presets before the built-in ones.
func (c *Config) GetPreset(name string) (Preset, bool) {
	if p, ok := c.Presets[name]; ok {
		return p, true
	}
	p, ok := Presets[name]
	return p, ok
}

// ListPresets returns every preset name known to c, sorted.
func (c *Config) ListPresets() []string {
	seen := make(map[string]bool, len(Presets)+len(c.Presets))
	names := make([]string, 0, len(Presets)+len(c.Presets))
	for _, m := range []map[string]Preset{Presets, c.Presets} {
		for name := range m {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
