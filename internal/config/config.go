package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/snoopython/wradex/internal/units"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a configuration that cannot drive the solver.
var ErrInvalidConfig = errors.New("config: invalid configuration")

const (
	DefaultDir        = "~/.wradex"
	DefaultFile       = "config.yaml"
	DefaultTimeout    = 60 * time.Second
	DefaultMoldataURL = "https://home.strw.leidenuniv.nl/~moldata/datafiles"
)

// DefaultInput answers the RADEX prompts for one calculation with H2 as the
// only collision partner, then exits.
const DefaultInput = `{moldata}
{output}
{f_min} {f_max}
{T_kin}
1
H2
{n_H2}
{T_bg}
{N_mol}
{dv}
0
`

type Config struct {
	RadexPath        string            `yaml:"radex_path"`
	RadexOutput      string            `yaml:"radex_output"`
	RadexLog         string            `yaml:"radex_log"`
	RadexTimeout     time.Duration     `yaml:"radex_timeout"`
	RadexParams      Entries           `yaml:"radex_params"`
	RadexInput       string            `yaml:"radex_input"`
	RadexInputUnits  Entries           `yaml:"radex_input_units"`
	RadexOutputUnits Entries           `yaml:"radex_output_units"`
	MoldataDir       string            `yaml:"moldata_dir"`
	MoldataURL       string            `yaml:"moldata_url"`
	MoldataList      map[string]string `yaml:"moldata_list"`
	Presets          map[string]Preset `yaml:"presets,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		RadexPath:    "radex",
		RadexOutput:  DefaultDir + "/radex.out",
		RadexLog:     DefaultDir + "/radex.log",
		RadexTimeout: DefaultTimeout,
		RadexParams: Entries{
			{"T_kin", "20 K"},
			{"n_H2", "1e3 cm^-3"},
			{"T_bg", "2.73 K"},
			{"N_mol", "1e15 cm^-2"},
			{"dv", "1.0 km/s"},
		},
		RadexInput: DefaultInput,
		RadexInputUnits: Entries{
			{"T_kin", "K"},
			{"n_H2", "cm^-3"},
			{"T_bg", "K"},
			{"N_mol", "cm^-2"},
			{"dv", "km/s"},
		},
		RadexOutputUnits: Entries{
			{"E_UP", "K"},
			{"FREQ", "GHz"},
			{"WAVEL", "um"},
			{"T_ex", "K"},
			{"tau", ""},
			{"T_R", "K"},
			{"POP_UP", ""},
			{"POP_LOW", ""},
			{"FLUX_Kkms", "K km/s"},
			{"FLUX_ergs", "erg/cm2/s"},
		},
		MoldataDir: DefaultDir + "/moldata",
		MoldataURL: DefaultMoldataURL,
		MoldataList: map[string]string{
			"CO":    "co.dat",
			"13CO":  "13co.dat",
			"C17O":  "c17o.dat",
			"C18O":  "c18o.dat",
			"CS":    "cs@lique.dat",
			"HCN":   "hcn.dat",
			"HCO+":  "hco+.dat",
			"N2H+":  "n2h+.dat",
			"SiO":   "sio.dat",
			"CI":    "catom.dat",
			"CII":   "c+.dat",
			"p-NH3": "p-nh3.dat",
			"o-NH3": "o-nh3.dat",
		},
	}
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() string {
	return filepath.Join(expand(DefaultDir), DefaultFile)
}

// Load overlays the file at path onto the defaults. A moldata_list in the
// file replaces the built-in catalog rather than extending it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys map[string]yaml.Node
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	cfg := DefaultConfig()
	if _, ok := keys["moldata_list"]; ok {
		cfg.MoldataList = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EnsureFile writes the default configuration to path unless a file is
// already there. It reports whether a file was created.
func EnsureFile(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return true, Save(path, DefaultConfig())
}

// ExpandPaths replaces a leading "~" in every filesystem path.
func (c *Config) ExpandPaths() {
	c.RadexPath = expand(c.RadexPath)
	c.RadexOutput = expand(c.RadexOutput)
	c.RadexLog = expand(c.RadexLog)
	c.MoldataDir = expand(c.MoldataDir)
}

// Validate checks that every parameter has a compatible input unit and that
// every unit string parses.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.RadexPath == "" {
		add("radex_path is empty")
	}
	if c.RadexOutput == "" {
		add("radex_output is empty")
	}
	if c.RadexInput == "" {
		add("radex_input is empty")
	}
	if c.MoldataDir == "" {
		add("moldata_dir is empty")
	}
	if c.RadexTimeout < 0 {
		add("radex_timeout must not be negative, got %v", c.RadexTimeout)
	}
	if len(c.RadexParams) == 0 {
		add("radex_params is empty")
	}
	if len(c.RadexOutputUnits) == 0 {
		add("radex_output_units is empty")
	}

	for _, e := range c.RadexParams {
		q, err := units.ParseQuantity(e.Value)
		if err != nil {
			add("radex_params.%s: %v", e.Name, err)
			continue
		}
		in, ok := c.RadexInputUnits.Get(e.Name)
		if !ok {
			add("radex_input_units has no entry for %s", e.Name)
			continue
		}
		u, err := units.Parse(in)
		if err != nil {
			add("radex_input_units.%s: %v", e.Name, err)
			continue
		}
		if !q.Unit.Compatible(u) {
			add("radex_params.%s: %s is not convertible to %s", e.Name, q.Unit, u)
		}
	}
	for _, e := range c.RadexOutputUnits {
		if _, err := units.Parse(e.Value); err != nil {
			add("radex_output_units.%s: %v", e.Name, err)
		}
	}
	for name, p := range c.Presets {
		for _, e := range p.Params {
			if _, ok := c.RadexParams.Get(e.Name); !ok {
				add("preset %s sets unknown parameter %s", name, e.Name)
			}
		}
	}

	return errors.Join(errs...)
}

// DefaultParams returns the default parameter names in configured order and
// their quantities.
func (c *Config) DefaultParams() ([]string, map[string]units.Quantity, error) {
	names := c.RadexParams.Names()
	params := make(map[string]units.Quantity, len(names))
	for _, e := range c.RadexParams {
		q, err := units.ParseQuantity(e.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: radex_params.%s: %v", ErrInvalidConfig, e.Name, err)
		}
		params[e.Name] = q
	}
	return names, params, nil
}

// InputUnits returns the unit the solver expects for every parameter.
func (c *Config) InputUnits() (map[string]units.Unit, error) {
	out := make(map[string]units.Unit, len(c.RadexInputUnits))
	for _, e := range c.RadexInputUnits {
		u, err := units.Parse(e.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: radex_input_units.%s: %v", ErrInvalidConfig, e.Name, err)
		}
		out[e.Name] = u
	}
	return out, nil
}

// OutputUnits returns the output quantity names in result-line order and
// their units.
func (c *Config) OutputUnits() ([]string, map[string]units.Unit, error) {
	names := c.RadexOutputUnits.Names()
	out := make(map[string]units.Unit, len(names))
	for _, e := range c.RadexOutputUnits {
		u, err := units.Parse(e.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: radex_output_units.%s: %v", ErrInvalidConfig, e.Name, err)
		}
		out[e.Name] = u
	}
	return names, out, nil
}

// Species lists the catalog's species names, sorted.
func (c *Config) Species() []string {
	names := make([]string, 0, len(c.MoldataList))
	for name := range c.MoldataList {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MoldataFile returns the data file name of a species.
func (c *Config) MoldataFile(species string) (string, bool) {
	f, ok := c.MoldataList[species]
	return f, ok
}

func expand(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
