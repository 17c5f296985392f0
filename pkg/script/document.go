// Package script loads routines described as data (YAML or JSON) and compiles
// them into applications: a step sequence becomes a combined operation, a
// graph becomes a state operation.
package script

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/protocol"
	"github.com/dukex/opflow/pkg/units"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var (
	ErrInvalidDocument = errors.New("invalid script")

	schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)
	docValidator = validator.New(validator.WithRequiredStructEnabled())
)

// EndNode is the reserved edge target completing a graph.
const EndNode = "end"

// Document is a scripted routine.
type Document struct {
	ID          string          `yaml:"id"                    validate:"required,max=255"`
	Description string          `yaml:"description,omitempty"`
	Reset       string          `yaml:"reset,omitempty"`
	TryTimes    *int            `yaml:"try_times,omitempty"   validate:"omitempty,min=0"`
	Timeout     time.Duration   `yaml:"timeout,omitempty"     validate:"min=0"`
	Preheat     []string        `yaml:"preheat,omitempty"`
	Areas       []protocol.Area `yaml:"areas,omitempty"`
	Steps       []Step          `yaml:"steps,omitempty"       validate:"dive"`
	Graph       *Graph          `yaml:"graph,omitempty"`
}

// Step is one unit of a routine. Exactly one action field is set.
type Step struct {
	Name      string        `yaml:"name,omitempty"`
	Click     string        `yaml:"click,omitempty"`
	ClickText string        `yaml:"click_text,omitempty"`
	Within    string        `yaml:"within,omitempty"`
	WaitFor   string        `yaml:"wait_for,omitempty"`
	Detect    []string      `yaml:"detect,omitempty"`
	Sleep     time.Duration `yaml:"sleep,omitempty"     validate:"min=0"`
	Drag      *Drag         `yaml:"drag,omitempty"`
	Move      *Move         `yaml:"move,omitempty"`
	Waits     *units.Waits  `yaml:"waits,omitempty"`
	TryTimes  *int          `yaml:"try_times,omitempty" validate:"omitempty,min=0"`
	Timeout   time.Duration `yaml:"timeout,omitempty"   validate:"min=0"`
}

type Drag struct {
	From     protocol.Point `yaml:"from"`
	To       protocol.Point `yaml:"to"`
	Duration time.Duration  `yaml:"duration,omitempty" validate:"min=0"`
}

type Move struct {
	Direction protocol.Direction `yaml:"direction" validate:"oneof=w a s d"`
	Duration  time.Duration      `yaml:"duration"  validate:"gt=0"`
}

// Graph describes a state graph over named steps.
type Graph struct {
	Start  string `yaml:"start,omitempty"`
	Strict bool   `yaml:"strict,omitempty"`
	Nodes  []Step `yaml:"nodes"           validate:"min=1,dive"`
	Edges  []Edge `yaml:"edges,omitempty"`
}

// Edge links two graph nodes. Status selects the success status it matches;
// without it the edge matches every status no labelled edge claimed. Any only
// makes that explicit.
type Edge struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Status string `yaml:"status,omitempty"`
	Any    bool   `yaml:"any,omitempty"`
}

// Kind returns the action of the step, empty when none is set.
func (s Step) Kind() Kind {
	switch {
	case s.Click != "":
		return KindClick
	case s.ClickText != "":
		return KindClickText
	case s.WaitFor != "":
		return KindWaitFor
	case len(s.Detect) > 0:
		return KindDetect
	case s.Sleep > 0:
		return KindSleep
	case s.Drag != nil:
		return KindDrag
	case s.Move != nil:
		return KindMove
	default:
		return ""
	}
}

// Area returns the area with the given name.
func (d *Document) Area(name string) (protocol.Area, bool) {
	i := slices.IndexFunc(d.Areas, func(a protocol.Area) bool { return a.Name == name })
	if i < 0 {
		return protocol.Area{}, false
	}

	return d.Areas[i], true
}

// Parse decodes and validates a YAML or JSON document.
func Parse(data []byte) (*Document, error) {
	data, err := normalize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	var raw any

	err = yaml.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	err = validateSchema(raw)
	if err != nil {
		return nil, err
	}

	var doc Document

	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	err = doc.Validate()
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// LoadFile reads a script from a .yaml, .yml or .json file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}

	return doc, nil
}

// LoadDir reads every script of a directory in name order. IDs must be unique.
func LoadDir(dir string) ([]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read script directory %s: %w", dir, err)
	}

	var docs []*Document

	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !isScript(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		doc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}

		if other, ok := seen[doc.ID]; ok {
			return nil, fmt.Errorf("%w: id %q defined by %s and %s", ErrInvalidDocument, doc.ID, other, path)
		}

		seen[doc.ID] = path
		docs = append(docs, doc)
	}

	return docs, nil
}

// Validate checks the references between areas, steps and edges.
func (d *Document) Validate() error {
	err := docValidator.Struct(d)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	var errs []error

	if err := models.ValidateReset(d.Reset); err != nil {
		errs = append(errs, err)
	}

	areas := make(map[string]bool, len(d.Areas))
	for _, area := range d.Areas {
		if areas[area.Name] {
			errs = append(errs, fmt.Errorf("duplicate area %q", area.Name))
		}

		areas[area.Name] = true
	}

	steps := d.Steps
	if d.Graph != nil {
		steps = d.Graph.Nodes
	}

	for i, step := range steps {
		errs = append(errs, d.validateStep(i, step)...)
	}

	if d.Graph != nil {
		errs = append(errs, d.Graph.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, errors.Join(errs...))
	}

	return nil
}

func (d *Document) validateStep(i int, step Step) []error {
	var errs []error

	label := step.Name
	if label == "" {
		label = fmt.Sprintf("#%d", i+1)
	}

	if step.Kind() == "" {
		errs = append(errs, fmt.Errorf("step %s has no action", label))
	}

	refs := append([]string{step.Click, step.WaitFor, step.Within}, step.Detect...)
	for _, ref := range refs {
		if ref == "" {
			continue
		}

		if _, ok := d.Area(ref); !ok {
			errs = append(errs, fmt.Errorf("step %s references unknown area %q", label, ref))
		}
	}

	return errs
}

func (g *Graph) validate() []error {
	var errs []error

	names := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		switch {
		case node.Name == EndNode:
			errs = append(errs, fmt.Errorf("node name %q is reserved", EndNode))
		case names[node.Name]:
			errs = append(errs, fmt.Errorf("duplicate node %q", node.Name))
		}

		names[node.Name] = true
	}

	if g.Start != "" && !names[g.Start] {
		errs = append(errs, fmt.Errorf("start node %q is not defined", g.Start))
	}

	for _, edge := range g.Edges {
		if !names[edge.From] {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", edge.From))
		}

		if edge.To != EndNode && !names[edge.To] {
			errs = append(errs, fmt.Errorf("edge to unknown node %q", edge.To))
		}

		if edge.Any && edge.Status != "" {
			errs = append(errs, fmt.Errorf("edge %s -> %s sets both status and any", edge.From, edge.To))
		}
	}

	return errs
}

func validateSchema(raw any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}

		return fmt.Errorf("%w: schema validation failed: %s", ErrInvalidDocument, strings.Join(problems, "; "))
	}

	return nil
}

// normalize turns a JSON document into YAML so both share one decoder.
func normalize(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return data, nil
	}

	var raw any

	err := json.Unmarshal(trimmed, &raw)
	if err != nil {
		return nil, err
	}

	return yaml.Marshal(raw)
}

func isScript(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
