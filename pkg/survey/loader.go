package survey

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/aretw0/keystone/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

//go:embed definitions/exit-readiness.yaml
var exitReadinessYAML []byte

// rawStep matches the YAML layout of a step, where payload fields are flattened.
type rawStep struct {
	Kind       string                `mapstructure:"kind"`
	Title      string                `mapstructure:"title"`
	Body       string                `mapstructure:"body"`
	Transition string                `mapstructure:"transition"`
	Items      []domain.QuestionItem `mapstructure:"items"`
}

type rawDefinition struct {
	ID         string    `mapstructure:"id"`
	Title      string    `mapstructure:"title"`
	Intro      string    `mapstructure:"intro"`
	Highlights []string  `mapstructure:"highlights"`
	Steps      []rawStep `mapstructure:"steps"`
}

// Default returns the embedded exit-readiness survey.
func Default() *Definition {
	def, err := Parse(exitReadinessYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded survey definition is invalid: %v", err))
	}
	return def
}

// LoadFile reads and validates a YAML survey definition from disk.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read survey definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("survey definition %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a YAML survey definition and validates it.
// Unknown keys are rejected so that typos do not silently drop content.
func Parse(data []byte) (*Definition, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	var raw rawDefinition
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &raw,
		ErrorUnused: true,
		TagName:     "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}

	def := &Definition{
		ID:         raw.ID,
		Title:      raw.Title,
		Intro:      raw.Intro,
		Highlights: raw.Highlights,
		Steps:      make([]domain.Step, 0, len(raw.Steps)),
	}
	for _, rs := range raw.Steps {
		switch domain.StepKind(rs.Kind) {
		case domain.StepWelcome:
			def.Steps = append(def.Steps, domain.Welcome())
		case domain.StepResults:
			def.Steps = append(def.Steps, domain.Results())
		case domain.StepEducational:
			def.Steps = append(def.Steps, domain.Educational(rs.Title, rs.Body, rs.Transition))
		case domain.StepQuestion:
			def.Steps = append(def.Steps, domain.Question(rs.Title, rs.Items...))
		default:
			def.Steps = append(def.Steps, domain.Step{Kind: domain.StepKind(rs.Kind)})
		}
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}
