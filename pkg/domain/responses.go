package domain

// Skipped is the sentinel answer recorded when a question is skipped.
const Skipped = "skipped"

// Well-known question IDs of the exit-readiness survey.
const (
	QuestionMotivation      = "motivation"
	QuestionRevenue         = "revenue"
	QuestionEmployees       = "employees"
	QuestionBuyerPreference = "buyerPreference"
	QuestionPreparation     = "preparation"
	QuestionTimeline        = "timeline"
)

// Responses maps a QuestionItem ID to the selected option or Skipped.
type Responses map[string]string

// Clone returns an independent copy of r. A nil map clones to an empty one.
func (r Responses) Clone() Responses {
	out := make(Responses, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Answered reports whether the question has an answer, including Skipped.
func (r Responses) Answered(questionID string) bool {
	_, ok := r[questionID]
	return ok
}

// IsSkipped reports whether the question was skipped or never answered.
func (r Responses) IsSkipped(questionID string) bool {
	v, ok := r[questionID]
	return !ok || v == Skipped || v == ""
}
