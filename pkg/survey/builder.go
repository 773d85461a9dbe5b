package survey

import "github.com/aretw0/keystone/pkg/domain"

// Builder assembles a Definition step by step.
//
//	def, err := survey.NewBuilder("mini").
//		Welcome().
//		Question("Goals", survey.Item("motivation", "Why sell?", "Retirement", "Other")).
//		Results().
//		Build()
type Builder struct {
	def Definition
}

// NewBuilder starts a new definition with the given ID.
func NewBuilder(id string) *Builder {
	return &Builder{def: Definition{ID: id, Title: id}}
}

// Title sets the survey headline shown on the welcome screen.
func (b *Builder) Title(title, intro string) *Builder {
	b.def.Title = title
	b.def.Intro = intro
	return b
}

// Welcome appends the Welcome step.
func (b *Builder) Welcome() *Builder {
	b.def.Steps = append(b.def.Steps, domain.Welcome())
	return b
}

// Educational appends an Educational step.
func (b *Builder) Educational(title, body, transition string) *Builder {
	b.def.Steps = append(b.def.Steps, domain.Educational(title, body, transition))
	return b
}

// Question appends a Question step.
func (b *Builder) Question(title string, items ...domain.QuestionItem) *Builder {
	b.def.Steps = append(b.def.Steps, domain.Question(title, items...))
	return b
}

// Results appends the Results step.
func (b *Builder) Results() *Builder {
	b.def.Steps = append(b.def.Steps, domain.Results())
	return b
}

// Build validates and returns the definition.
func (b *Builder) Build() (*Definition, error) {
	def := b.def
	def.Steps = append([]domain.Step(nil), b.def.Steps...)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Item is a shorthand for a QuestionItem literal.
func Item(id, prompt string, options ...string) domain.QuestionItem {
	return domain.QuestionItem{ID: id, Prompt: prompt, Options: options}
}
