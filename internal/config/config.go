// Package config loads and validates the solver configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"cvrpsolver/internal/opt"
)

// ErrInvalid is returned for missing required keys and out-of-range values.
var ErrInvalid = errors.New("invalid configuration")

// Config mirrors the YAML layout. It is read-only once loaded.
type Config struct {
	General            General            `yaml:"general" json:"general"`
	InitialSolution    InitialSolution    `yaml:"initial_solution" json:"initial_solution"`
	VND                VND                `yaml:"vnd" json:"vnd"`
	SimulatedAnnealing SimulatedAnnealing `yaml:"simulated_annealing" json:"simulated_annealing"`
	TabuSearch         TabuSearch         `yaml:"tabu_search" json:"tabu_search"`
	LocalSearch        LocalSearch        `yaml:"local_search" json:"local_search"`
	Quality            Quality            `yaml:"quality" json:"quality"`
}

type General struct {
	RandomSeed       int64   `yaml:"random_seed" json:"random_seed"`
	TimeLimitSeconds float64 `yaml:"time_limit_seconds" json:"time_limit_seconds" validate:"gte=0"`
	Verbose          bool    `yaml:"verbose" json:"verbose"`
}

type InitialSolution struct {
	Randomness float64 `yaml:"randomness" json:"randomness" validate:"gte=0"`
}

type VND struct {
	Neighborhoods                   []string `yaml:"neighborhoods" json:"neighborhoods" validate:"min=1,dive,oneof=swap relocate two_opt cross_exchange"`
	MaxIterationsWithoutImprovement int      `yaml:"max_iterations_without_improvement" json:"max_iterations_without_improvement" validate:"gte=1"`
}

type SimulatedAnnealing struct {
	InitialTemperature       float64 `yaml:"initial_temperature" json:"initial_temperature" validate:"gt=0"`
	FinalTemperature         float64 `yaml:"final_temperature" json:"final_temperature" validate:"gt=0,ltfield=InitialTemperature"`
	Alpha                    float64 `yaml:"alpha" json:"alpha" validate:"gt=0,lt=1"`
	IterationsPerTemperature int     `yaml:"iterations_per_temperature" json:"iterations_per_temperature" validate:"gte=1"`
}

type TabuSearch struct {
	TabuTenure            int  `yaml:"tabu_tenure" json:"tabu_tenure" validate:"gte=0"`
	TabuTenureRandomRange int  `yaml:"tabu_tenure_random_range" json:"tabu_tenure_random_range" validate:"gte=0"`
	AspirationEnabled     bool `yaml:"aspiration_enabled" json:"aspiration_enabled"`
}

type LocalSearch struct {
	MaxIterations                   int `yaml:"max_iterations" json:"max_iterations" validate:"gte=1"`
	MaxIterationsWithoutImprovement int `yaml:"max_iterations_without_improvement" json:"max_iterations_without_improvement" validate:"gte=1"`
}

type Quality struct {
	TargetGapPercentage float64 `yaml:"target_gap_percentage" json:"target_gap_percentage" validate:"gte=0"`
}

// requiredKeys must be present in a configuration file. The time limit and
// the construction randomness may be omitted.
var requiredKeys = []string{
	"general.random_seed",
	"general.verbose",
	"vnd.neighborhoods",
	"vnd.max_iterations_without_improvement",
	"simulated_annealing.initial_temperature",
	"simulated_annealing.final_temperature",
	"simulated_annealing.alpha",
	"simulated_annealing.iterations_per_temperature",
	"tabu_search.tabu_tenure",
	"tabu_search.tabu_tenure_random_range",
	"tabu_search.aspiration_enabled",
	"local_search.max_iterations",
	"local_search.max_iterations_without_improvement",
	"quality.target_gap_percentage",
}

// Default is the configuration shipped in config.yaml.
func Default() Config {
	return Config{
		General:         General{RandomSeed: 42, TimeLimitSeconds: 300},
		InitialSolution: InitialSolution{Randomness: 0.1},
		VND: VND{
			Neighborhoods:                   []string{"swap", "relocate", "two_opt", "cross_exchange"},
			MaxIterationsWithoutImprovement: 10,
		},
		SimulatedAnnealing: SimulatedAnnealing{
			InitialTemperature:       1000,
			FinalTemperature:         0.1,
			Alpha:                    0.95,
			IterationsPerTemperature: 100,
		},
		TabuSearch:  TabuSearch{TabuTenure: 10, TabuTenureRandomRange: 3, AspirationEnabled: true},
		LocalSearch: LocalSearch{MaxIterations: 10000, MaxIterationsWithoutImprovement: 2000},
		Quality:     Quality{TargetGapPercentage: 5},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, checks that every required key is present and
// validates value ranges. Unknown keys are ignored.
func Parse(data []byte) (Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var missing []string
	for _, k := range requiredKeys {
		if !hasKey(&doc, strings.Split(k, ".")) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	var c Config
	if err := doc.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func hasKey(n *yaml.Node, path []string) bool {
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return false
		}
		n = n.Content[0]
	}
	for _, p := range path {
		if n.Kind != yaml.MappingNode {
			return false
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == p {
				next = n.Content[i+1]
				break
			}
		}
		if next == nil || next.Tag == "!!null" {
			return false
		}
		n = next
	}
	return true
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks value ranges and reports each failure by its key path.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := fe.Namespace()
		if i := strings.IndexByte(key, '.'); i >= 0 {
			key = key[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s fails %s (got %v)", key, rule, fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// Merge applies a partial JSON document on top of c and validates the result.
// Keys use the same names as the YAML file.
func (c Config) Merge(overrides json.RawMessage) (Config, error) {
	out := c
	out.VND.Neighborhoods = append([]string(nil), c.VND.Neighborhoods...)
	if len(overrides) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(overrides, &out); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// TimeLimit is the configured wall-clock budget, zero when unbounded.
func (c Config) TimeLimit() time.Duration {
	return time.Duration(c.General.TimeLimitSeconds * float64(time.Second))
}

// Params converts the configuration into engine parameters.
func (c Config) Params() (opt.Params, error) {
	ops := make([]opt.Operator, 0, len(c.VND.Neighborhoods))
	for _, name := range c.VND.Neighborhoods {
		op, err := opt.ParseOperator(name)
		if err != nil {
			return opt.Params{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		ops = append(ops, op)
	}
	sa := c.SimulatedAnnealing
	return opt.Params{
		Seed:       c.General.RandomSeed,
		Randomness: c.InitialSolution.Randomness,
		VND: opt.VNDParams{
			Neighborhoods: ops,
			MaxNoImprove:  c.VND.MaxIterationsWithoutImprovement,
		},
		Anneal: opt.AnnealParams{
			InitialTemp:       sa.InitialTemperature,
			FinalTemp:         sa.FinalTemperature,
			Alpha:             sa.Alpha,
			IterationsPerTemp: sa.IterationsPerTemperature,
			MaxIterations:     c.LocalSearch.MaxIterations,
			MaxNoImprove:      c.LocalSearch.MaxIterationsWithoutImprovement,
			TimeLimit:         c.TimeLimit(),
			Verbose:           c.General.Verbose,
		},
		Tabu: opt.TabuParams{
			Tenure:     c.TabuSearch.TabuTenure,
			Variation:  c.TabuSearch.TabuTenureRandomRange,
			Aspiration: c.TabuSearch.AspirationEnabled,
		},
	}, nil
}
