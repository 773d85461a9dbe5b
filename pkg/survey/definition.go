package survey

import (
	"fmt"

	"github.com/aretw0/keystone/pkg/domain"
)

// Definition is the ordered sequence of steps of one survey.
type Definition struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Intro      string        `json:"intro,omitempty"`
	Highlights []string      `json:"highlights,omitempty"`
	Steps      []domain.Step `json:"steps"`
}

// Len returns the number of steps.
func (d *Definition) Len() int { return len(d.Steps) }

// Step returns the step at index i.
func (d *Definition) Step(i int) (domain.Step, bool) {
	if i < 0 || i >= len(d.Steps) {
		return domain.Step{}, false
	}
	return d.Steps[i], true
}

// Last returns the index of the terminal Results step.
func (d *Definition) Last() int { return len(d.Steps) - 1 }

// QuestionIDs returns every QuestionItem ID in survey order.
func (d *Definition) QuestionIDs() []string {
	var ids []string
	for _, s := range d.Steps {
		if q, ok := s.AsQuestion(); ok {
			for _, item := range q.Items {
				ids = append(ids, item.ID)
			}
		}
	}
	return ids
}

// Item looks up a QuestionItem by ID anywhere in the survey.
func (d *Definition) Item(questionID string) (domain.QuestionItem, bool) {
	for _, s := range d.Steps {
		if q, ok := s.AsQuestion(); ok {
			for _, item := range q.Items {
				if item.ID == questionID {
					return item, true
				}
			}
		}
	}
	return domain.QuestionItem{}, false
}

// Validate checks the structural invariants of the definition.
func (d *Definition) Validate() error {
	var errs []error
	add := func(key, format string, args ...any) {
		errs = append(errs, &domain.ValidationError{Key: key, Reason: fmt.Sprintf(format, args...)})
	}

	n := len(d.Steps)
	if n < 3 {
		add("steps", "need at least welcome, one question and results, got %d steps", n)
		return &domain.AggregateError{Errors: errs}
	}

	seen := make(map[string]bool)
	for i, s := range d.Steps {
		key := fmt.Sprintf("steps[%d]", i)
		switch s.Kind {
		case domain.StepWelcome:
			if i != 0 {
				add(key, "welcome step must be first")
			}
		case domain.StepResults:
			if i != n-1 {
				add(key, "results step must be last")
			}
		case domain.StepEducational:
			edu, ok := s.AsEducational()
			if !ok || edu.Title == "" || edu.Body == "" {
				add(key, "educational step needs a title and a body")
			}
		case domain.StepQuestion:
			q, ok := s.AsQuestion()
			if !ok || len(q.Items) == 0 {
				add(key, "question step needs at least one item")
				continue
			}
			for j, item := range q.Items {
				itemKey := fmt.Sprintf("%s.items[%d]", key, j)
				if item.ID == "" {
					add(itemKey, "missing id")
				} else if seen[item.ID] {
					add(itemKey, "duplicate id %q", item.ID)
				}
				seen[item.ID] = true
				if len(item.Options) == 0 {
					add(itemKey, "question %q has no options", item.ID)
				}
			}
		default:
			add(key, "unknown step kind %q", s.Kind)
		}
	}

	if d.Steps[0].Kind != domain.StepWelcome {
		add("steps[0]", "first step must be welcome")
	}
	if d.Steps[n-1].Kind != domain.StepResults {
		add(fmt.Sprintf("steps[%d]", n-1), "last step must be results")
	}
	if d.Steps[n-2].Kind != domain.StepQuestion {
		add(fmt.Sprintf("steps[%d]", n-2), "the step before results must be a question step")
	}

	if len(errs) > 0 {
		return &domain.AggregateError{Errors: errs}
	}
	return nil
}
