package domain

// StepKind identifies which renderer a step is delegated to.
type StepKind string

const (
	StepWelcome     StepKind = "welcome"
	StepEducational StepKind = "educational"
	StepQuestion    StepKind = "question"
	StepResults     StepKind = "results"
)

// Valid reports whether k is one of the four known step kinds.
func (k StepKind) Valid() bool {
	switch k {
	case StepWelcome, StepEducational, StepQuestion, StepResults:
		return true
	}
	return false
}

// QuestionItem is a single multiple-choice prompt inside a Question step.
type QuestionItem struct {
	ID      string   `json:"id" yaml:"id" mapstructure:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt" mapstructure:"prompt"`
	Options []string `json:"options" yaml:"options" mapstructure:"options"`
}

// HasOption reports whether value is one of the item's options.
func (q QuestionItem) HasOption(value string) bool {
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// EducationalStep is the payload of an Educational step.
type EducationalStep struct {
	Title      string `json:"title" yaml:"title" mapstructure:"title"`
	Body       string `json:"body" yaml:"body" mapstructure:"body"`
	Transition string `json:"transition" yaml:"transition" mapstructure:"transition"`
}

// QuestionStep is the payload of a Question step.
type QuestionStep struct {
	Title string         `json:"title" yaml:"title" mapstructure:"title"`
	Items []QuestionItem `json:"items" yaml:"items" mapstructure:"items"`
}

// Step is one screen of the survey.
// Exactly one of the payload pointers is set, matching Kind; Welcome and Results carry none.
type Step struct {
	Kind        StepKind         `json:"kind"`
	Educational *EducationalStep `json:"educational,omitempty"`
	Question    *QuestionStep    `json:"question,omitempty"`
}

// Welcome returns the Welcome step.
func Welcome() Step { return Step{Kind: StepWelcome} }

// Results returns the Results step.
func Results() Step { return Step{Kind: StepResults} }

// Educational returns an Educational step.
func Educational(title, body, transition string) Step {
	return Step{
		Kind:        StepEducational,
		Educational: &EducationalStep{Title: title, Body: body, Transition: transition},
	}
}

// Question returns a Question step holding the given items in order.
func Question(title string, items ...QuestionItem) Step {
	return Step{
		Kind:     StepQuestion,
		Question: &QuestionStep{Title: title, Items: items},
	}
}

// AsEducational returns the Educational payload if the step is Educational.
func (s Step) AsEducational() (EducationalStep, bool) {
	if s.Kind != StepEducational || s.Educational == nil {
		return EducationalStep{}, false
	}
	return *s.Educational, true
}

// AsQuestion returns the Question payload if the step is a Question.
func (s Step) AsQuestion() (QuestionStep, bool) {
	if s.Kind != StepQuestion || s.Question == nil {
		return QuestionStep{}, false
	}
	return *s.Question, true
}

// ItemIndex returns the position of questionID inside a Question step, or -1.
func (s Step) ItemIndex(questionID string) int {
	q, ok := s.AsQuestion()
	if !ok {
		return -1
	}
	for i, item := range q.Items {
		if item.ID == questionID {
			return i
		}
	}
	return -1
}
