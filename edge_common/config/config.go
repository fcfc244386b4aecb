// Package config loads the edge server's static configuration from a
// YAML file (grounded on the original source's settings.yaml) with
// deployment-specific overrides layered from the environment (grounded on
// cl.httpd's envcfg.Cfg pattern). Only the enumerated options the edge
// process recognises are accepted; anything else is a configuration error
// and is fatal at startup, never at request time.
package config

import (
	"fmt"
	"io/ioutil"

	"github.com/tomazk/envcfg"
	yaml "gopkg.in/yaml.v2"
)

// CommMode enumerates the transport bindings the edge recognises.
type CommMode string

// Recognised communication modes.
const (
	CommHTTP      CommMode = "http"
	CommWebsocket CommMode = "websocket"
	CommMQTT      CommMode = "mqtt"
)

func (m CommMode) valid() bool {
	switch m {
	case CommHTTP, CommWebsocket, CommMQTT:
		return true
	default:
		return false
	}
}

// DelayType enumerates the distributions delaysim supports.
type DelayType string

// Recognised delay distributions.
const (
	DelayStatic      DelayType = "static"
	DelayGaussian    DelayType = "gaussian"
	DelayUniform     DelayType = "uniform"
	DelayExponential DelayType = "exponential"
)

// DelaySpec configures one of the two injectable delay points.
type DelaySpec struct {
	Enabled bool      `yaml:"enabled"`
	Type    DelayType `yaml:"type"`
	Value   float64   `yaml:"value"`
	Mean    float64   `yaml:"mean"`
	StdDev  float64   `yaml:"std_dev"`
	Min     float64   `yaml:"min"`
	Max     float64   `yaml:"max"`
}

// DelaySimulation groups the computation- and network-side delay specs.
type DelaySimulation struct {
	Computation DelaySpec `yaml:"computation"`
	Network     DelaySpec `yaml:"network"`
}

// LocalInferenceMode configures the Bernoulli local-inference refresher.
type LocalInferenceMode struct {
	Enabled     bool    `yaml:"enabled"`
	Probability float64 `yaml:"probability"`
}

// ModelSpec describes one model's entry under model.<name>.
type ModelSpec struct {
	InputHeight         int `yaml:"input_height"`
	InputWidth          int `yaml:"input_width"`
	LastOffloadingLayer int `yaml:"last_offloading_layer"`
}

// VarianceSpec configures the variance detector.
type VarianceSpec struct {
	WindowSize int     `yaml:"window_size"`
	Threshold  float64 `yaml:"threshold"`
}

// Config is the fully-parsed static configuration.
type Config struct {
	Communication struct {
		Mode CommMode `yaml:"mode"`
	} `yaml:"communication"`
	DelaySimulation    DelaySimulation       `yaml:"delay_simulation"`
	LocalInferenceMode LocalInferenceMode    `yaml:"local_inference_mode"`
	Models             map[string]ModelSpec  `yaml:"model"`
	Variance           VarianceSpec          `yaml:"variance"`
	EWMA               struct {
		Alpha float64 `yaml:"alpha"`
	} `yaml:"ewma"`
}

// Env holds deployment-specific values that are overlaid from the
// environment rather than checked into the YAML config.
type Env struct {
	Host           string `envcfg:"EDGE_HOST"`
	Port           string `envcfg:"EDGE_PORT"`
	PrometheusPort string `envcfg:"EDGE_PROMETHEUS_PORT"`
	NTPServer      string `envcfg:"EDGE_NTP_SERVER"`
}

// Defaults returns the spec's documented defaults, used for any field a
// YAML file omits.
func Defaults() Config {
	var c Config
	c.Communication.Mode = CommHTTP
	c.LocalInferenceMode.Enabled = false
	c.LocalInferenceMode.Probability = 0.0
	c.Variance.WindowSize = 10
	c.Variance.Threshold = 0.15
	c.EWMA.Alpha = 0.2
	return c
}

// Load reads and validates a YAML config file, applying Defaults() for any
// field the file leaves unset.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.Variance.WindowSize == 0 {
		cfg.Variance.WindowSize = 10
	}
	if cfg.Variance.Threshold == 0 {
		cfg.Variance.Threshold = 0.15
	}
	if cfg.EWMA.Alpha == 0 {
		cfg.EWMA.Alpha = 0.2
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv reads the deployment overlay from the process environment.
func LoadEnv() (*Env, error) {
	var e Env
	if err := envcfg.Unmarshal(&e); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}
	return &e, nil
}

// Validate rejects configuration errors: unrecognised enum values,
// missing model definitions, or an invalid refresher probability. All of
// these are fatal at startup per the error-handling design.
func (c *Config) Validate() error {
	if !c.Communication.Mode.valid() {
		return fmt.Errorf("config: unrecognised communication.mode %q", c.Communication.Mode)
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("config: no model.<name> entries defined")
	}
	for name, m := range c.Models {
		if m.InputHeight <= 0 || m.InputWidth <= 0 {
			return fmt.Errorf("config: model %q has non-positive input dimensions", name)
		}
		if m.LastOffloadingLayer < 0 {
			return fmt.Errorf("config: model %q has negative last_offloading_layer", name)
		}
	}
	if c.LocalInferenceMode.Probability < 0 || c.LocalInferenceMode.Probability > 1 {
		return fmt.Errorf("config: local_inference_mode.probability %f out of [0,1]", c.LocalInferenceMode.Probability)
	}
	for _, spec := range []DelaySpec{c.DelaySimulation.Computation, c.DelaySimulation.Network} {
		if spec.Enabled {
			switch spec.Type {
			case DelayStatic, DelayGaussian, DelayUniform, DelayExponential:
			default:
				return fmt.Errorf("config: unrecognised delay_simulation type %q", spec.Type)
			}
		}
	}
	return nil
}
