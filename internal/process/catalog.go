// Package process describes the geoprocessing processes aquaproc serves and
// turns a job request for one of them into a container run.
package process

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed processes.yaml
var catalogYAML []byte

// jobPlaceholder is replaced by the job id in output filenames.
const jobPlaceholder = "{job}"

// InputDef declares one required process input.
type InputDef struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// OutputDef declares one file a process writes.
type OutputDef struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Filename    string `yaml:"filename" json:"-"`
}

// Definition binds a process id to the script that implements it and to
// its input/output contract.
type Definition struct {
	ID          string      `yaml:"id" json:"id"`
	Title       string      `yaml:"title" json:"title"`
	Description string      `yaml:"description" json:"description"`
	Version     string      `yaml:"version" json:"version"`
	Script      string      `yaml:"script" json:"-"`
	Image       string      `yaml:"image,omitempty" json:"-"` // overrides the configured image when set
	Inputs      []InputDef  `yaml:"inputs" json:"inputs"`
	Outputs     []OutputDef `yaml:"outputs" json:"outputs"`
}

// OutputFilename returns the name of output o for the given job.
func (d *Definition) OutputFilename(o OutputDef, jobID string) string {
	return strings.ReplaceAll(o.Filename, jobPlaceholder, jobID)
}

// Catalog is the immutable set of known processes.
type Catalog struct {
	defs map[string]*Definition
	ids  []string
}

// LoadCatalog parses the built-in process table.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses a process table in YAML form.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Processes []*Definition `yaml:"processes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse process catalog: %w", err)
	}

	c := &Catalog{defs: make(map[string]*Definition, len(doc.Processes))}
	for i, def := range doc.Processes {
		if err := validateDefinition(def); err != nil {
			return nil, fmt.Errorf("process #%d: %w", i, err)
		}
		if _, dup := c.defs[def.ID]; dup {
			return nil, fmt.Errorf("process %q defined twice", def.ID)
		}
		c.defs[def.ID] = def
		c.ids = append(c.ids, def.ID)
	}
	sort.Strings(c.ids)
	return c, nil
}

func validateDefinition(def *Definition) error {
	if def == nil || def.ID == "" {
		return errors.New("missing id")
	}
	if def.Script == "" {
		return fmt.Errorf("process %q: missing script", def.ID)
	}
	if len(def.Outputs) == 0 {
		return fmt.Errorf("process %q: no outputs", def.ID)
	}
	seen := make(map[string]bool)
	for _, in := range def.Inputs {
		if in.ID == "" || seen[in.ID] {
			return fmt.Errorf("process %q: empty or duplicate input id %q", def.ID, in.ID)
		}
		seen[in.ID] = true
	}
	for _, out := range def.Outputs {
		if out.ID == "" || seen[out.ID] {
			return fmt.Errorf("process %q: empty or duplicate output id %q", def.ID, out.ID)
		}
		if out.Filename == "" || strings.ContainsAny(out.Filename, `/\`) {
			return fmt.Errorf("process %q: output %q needs a plain filename", def.ID, out.ID)
		}
		seen[out.ID] = true
	}
	return nil
}

// Get returns the process with the given id.
func (c *Catalog) Get(id string) (*Definition, bool) {
	def, ok := c.defs[id]
	return def, ok
}

// List returns all processes sorted by id.
func (c *Catalog) List() []*Definition {
	out := make([]*Definition, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.defs[id])
	}
	return out
}
