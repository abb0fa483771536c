// Package config loads declarative run configurations and assembles
// mediators from them.
//
// A configuration names the box, the initial global state, the outputs, the
// snapshot store, and the tagger graph of a run. Handler and generator
// kinds resolve through factory registries on a Builder, so embedding
// programs extend the configured vocabulary by registering factories and
// potentials before building. Everything physics-shaped (rates, bounding
// potentials) arrives through those registrations; the configuration itself
// only carries names and numbers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/avandermeer/eventchain/pkg/eventchain"
)

// Run is the top-level run configuration.
type Run struct {
	// Seed feeds the run's random source. Runs with equal configuration and
	// seed commit the same event sequence.
	Seed uint64 `yaml:"seed"`

	Box       Box        `yaml:"box"`
	State     State      `yaml:"state"`
	Outputs   []Output   `yaml:"outputs"`
	Snapshots *Snapshots `yaml:"snapshots"`
	Taggers   []Tagger   `yaml:"taggers"`

	raw []byte
}

// Box declares the periodic simulation box. Beta defaults to 1.
type Box struct {
	Lengths []float64 `yaml:"lengths"`
	Beta    float64   `yaml:"beta"`
}

// State declares the initial global state: explicit composites, explicit
// free point masses, randomly placed free point masses, or any mix.
type State struct {
	Composites []Composite `yaml:"composites"`
	Points     []Point     `yaml:"points"`
	Random     *Random     `yaml:"random"`
}

// Composite declares one root object and its point masses. The root
// position defaults to the mean of the point positions.
type Composite struct {
	Position []float64 `yaml:"position"`
	Points   []Point   `yaml:"points"`
}

// Point declares one point mass.
type Point struct {
	Position []float64          `yaml:"position"`
	Charges  map[string]float64 `yaml:"charges"`
}

// Random declares free point masses placed uniformly in the box with the
// run's random source, all carrying the same charges.
type Random struct {
	Points  int                `yaml:"points"`
	Charges map[string]float64 `yaml:"charges"`
}

// Output declares one named output writer.
type Output struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// Writer kinds understood by the builder.
const (
	OutputPositions   = "positions"
	OutputSeparations = "separations"
	OutputDiscard     = "discard"
)

// Snapshots declares the snapshot store of a run. EveryLegs > 0 additionally
// saves a snapshot at that leg cadence.
type Snapshots struct {
	Store     string `yaml:"store"` // "memory" or "sqlite"
	Path      string `yaml:"path"`
	EveryLegs uint64 `yaml:"every_legs"`
}

// Tagger declares one node of the activator graph. Count is the handler
// pool size and defaults to 1; an empty Trashes list defaults to the tagger
// itself, matching the rule that a tagger always trashes its own committed
// handler.
type Tagger struct {
	Tag      string `yaml:"tag"`
	Count    int    `yaml:"count"`
	Handler  Spec   `yaml:"handler"`
	Generate Spec   `yaml:"generate"`

	Creates     []string `yaml:"creates"`
	Trashes     []string `yaml:"trashes"`
	Activates   []string `yaml:"activates"`
	Deactivates []string `yaml:"deactivates"`

	Cells *Cells `yaml:"cells"`
}

// Cells declares the cuboid cell system and occupancy index owned by a
// tagger. Level defaults to 1 and Layers to 1.
type Cells struct {
	Counts []int  `yaml:"counts"`
	Layers int    `yaml:"layers"`
	Level  int    `yaml:"level"`
	Charge string `yaml:"charge"`
}

// Spec names a handler or generator kind together with its free-form
// parameters. In YAML the kind sits inline with the parameters:
//
//	handler:
//	  kind: pair-collider
//	  potential: harmonic
type Spec struct {
	Kind   string
	Params Params
}

// UnmarshalYAML splits the kind from the remaining keys.
func (s *Spec) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]any
	if err := value.Decode(&m); err != nil {
		return err
	}
	if kind, ok := m["kind"].(string); ok {
		s.Kind = kind
	}
	delete(m, "kind")
	s.Params = Params(m)
	return nil
}

// MarshalYAML flattens the kind back among the parameters.
func (s Spec) MarshalYAML() (any, error) {
	m := make(map[string]any, len(s.Params)+1)
	for k, v := range s.Params {
		m[k] = v
	}
	if s.Kind != "" {
		m["kind"] = s.Kind
	}
	return m, nil
}

// FromFile loads a run configuration from a YAML file.
func FromFile(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses a run configuration. The raw bytes are kept on the Run so
// the builder can stamp them into snapshots for resumability.
func FromYAML(data []byte) (*Run, error) {
	var r Run
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	r.raw = append([]byte(nil), data...)
	return &r, nil
}

// Raw returns the bytes the configuration was parsed from, or nil for
// configurations assembled in code.
func (r *Run) Raw() []byte { return r.raw }

// Validate applies defaults and checks the configuration's structure:
// geometry and state presence, unique names, and tag references. Kind
// resolution happens later, against a Builder's registries.
func (r *Run) Validate() error {
	r.applyDefaults()

	if len(r.Box.Lengths) == 0 {
		return &eventchain.ConfigurationError{Component: "box", Reason: "needs at least one side length"}
	}
	for d, l := range r.Box.Lengths {
		if l <= 0.0 {
			return &eventchain.ConfigurationError{Component: "box", Reason: fmt.Sprintf("side length %d is %v, must be positive", d, l)}
		}
	}
	if r.Box.Beta <= 0.0 {
		return &eventchain.ConfigurationError{Component: "box", Reason: fmt.Sprintf("inverse temperature is %v, must be positive", r.Box.Beta)}
	}

	if err := r.validateState(); err != nil {
		return err
	}

	names := make(map[string]bool, len(r.Outputs))
	for _, o := range r.Outputs {
		if o.Name == "" {
			return &eventchain.ConfigurationError{Component: "output", Reason: "output without a name"}
		}
		if names[o.Name] {
			return &eventchain.ConfigurationError{Component: "output", Reason: fmt.Sprintf("output name %q declared twice", o.Name)}
		}
		names[o.Name] = true
		switch o.Kind {
		case OutputPositions, OutputSeparations, OutputDiscard:
		default:
			return &eventchain.ConfigurationError{Component: "output", Reason: fmt.Sprintf("output %q has unknown kind %q", o.Name, o.Kind)}
		}
		if o.Kind != OutputDiscard && o.Path == "" {
			return &eventchain.ConfigurationError{Component: "output", Reason: fmt.Sprintf("output %q needs a path", o.Name)}
		}
	}

	if r.Snapshots != nil {
		switch r.Snapshots.Store {
		case "memory":
		case "sqlite":
			if r.Snapshots.Path == "" {
				return &eventchain.ConfigurationError{Component: "snapshots", Reason: "sqlite store needs a path"}
			}
		default:
			return &eventchain.ConfigurationError{Component: "snapshots", Reason: fmt.Sprintf("unknown store %q", r.Snapshots.Store)}
		}
	}

	return r.validateTaggers()
}

func (r *Run) validateState() error {
	units := 0
	for i, c := range r.State.Composites {
		if len(c.Points) == 0 {
			return &eventchain.ConfigurationError{Component: "state", Reason: fmt.Sprintf("composite %d has no points", i)}
		}
		if c.Position != nil && len(c.Position) != len(r.Box.Lengths) {
			return &eventchain.ConfigurationError{Component: "state", Reason: fmt.Sprintf("composite %d position has %d coordinates for dimension %d", i, len(c.Position), len(r.Box.Lengths))}
		}
		for j, p := range c.Points {
			if len(p.Position) != len(r.Box.Lengths) {
				return &eventchain.ConfigurationError{Component: "state", Reason: fmt.Sprintf("point %d of composite %d has %d coordinates for dimension %d", j, i, len(p.Position), len(r.Box.Lengths))}
			}
			units++
		}
	}
	for i, p := range r.State.Points {
		if len(p.Position) != len(r.Box.Lengths) {
			return &eventchain.ConfigurationError{Component: "state", Reason: fmt.Sprintf("point %d has %d coordinates for dimension %d", i, len(p.Position), len(r.Box.Lengths))}
		}
		units++
	}
	if r.State.Random != nil {
		if r.State.Random.Points <= 0 {
			return &eventchain.ConfigurationError{Component: "state", Reason: fmt.Sprintf("random state declares %d points, must be positive", r.State.Random.Points)}
		}
		units += r.State.Random.Points
	}
	if units == 0 {
		return &eventchain.ConfigurationError{Component: "state", Reason: "no units declared"}
	}
	return nil
}

func (r *Run) validateTaggers() error {
	if len(r.Taggers) == 0 {
		return &eventchain.ConfigurationError{Component: "taggers", Reason: "at least one tagger is required"}
	}
	tags := make(map[string]bool, len(r.Taggers))
	for _, t := range r.Taggers {
		if t.Tag == "" {
			return &eventchain.ConfigurationError{Component: "taggers", Reason: "tagger without a tag"}
		}
		if tags[t.Tag] {
			return &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tag %q declared twice", t.Tag)}
		}
		tags[t.Tag] = true
	}
	for _, t := range r.Taggers {
		if t.Count < 1 {
			return &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q has pool size %d", t.Tag, t.Count)}
		}
		if t.Handler.Kind == "" {
			return &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q has no handler kind", t.Tag)}
		}
		for _, list := range [][]string{t.Creates, t.Trashes, t.Activates, t.Deactivates} {
			for _, ref := range list {
				if !tags[ref] {
					return &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q references unknown tag %q", t.Tag, ref)}
				}
			}
		}
		if c := t.Cells; c != nil {
			if len(c.Counts) != len(r.Box.Lengths) {
				return &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q declares %d cell counts for dimension %d", t.Tag, len(c.Counts), len(r.Box.Lengths))}
			}
			for d, n := range c.Counts {
				if n < 1 {
					return &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q has %d cells along dimension %d", t.Tag, n, d)}
				}
			}
		}
	}
	return nil
}

func (r *Run) applyDefaults() {
	if r.Box.Beta == 0.0 {
		r.Box.Beta = 1.0
	}
	for i := range r.Taggers {
		t := &r.Taggers[i]
		if t.Count == 0 {
			t.Count = 1
		}
		if t.Generate.Kind == "" {
			t.Generate.Kind = "no-in-state"
		}
		if len(t.Trashes) == 0 {
			t.Trashes = []string{t.Tag}
		}
		if c := t.Cells; c != nil {
			if c.Level == 0 {
				c.Level = 1
			}
			if c.Layers == 0 {
				c.Layers = 1
			}
		}
	}
}
