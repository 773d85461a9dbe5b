package runtime

import (
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/report"
	"github.com/aretw0/keystone/pkg/survey"
)

// Intent names an input the current view accepts.
type Intent string

const (
	IntentNext        Intent = "next"
	IntentBack        Intent = "back"
	IntentSkip        Intent = "skip"
	IntentRespond     Intent = "respond"
	IntentSubmitEmail Intent = "submit_email"
)

// Locked results copy.
const (
	LockedTitle   = "Your report is ready!"
	LockedMessage = "Enter your email to unlock your personalized Best Next Steps report."
	ReportTitle   = "Your Best Next Steps Report"
)

// OptionView is one selectable answer.
type OptionView struct {
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

// QuestionView is one item of a Question step.
type QuestionView struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Options []OptionView `json:"options"`
	Answer  string       `json:"answer,omitempty"`
	Skipped bool         `json:"skipped"`
	Active  bool         `json:"active"`
}

// GateView is the email overlay.
type GateView struct {
	Visible    bool   `json:"visible"`
	Submitting bool   `json:"submitting"`
	Email      string `json:"email,omitempty"`
	Error      string `json:"error,omitempty"`
}

// View is the rendered form of the current step.
type View struct {
	SessionID  string          `json:"session_id,omitempty"`
	StepIndex  int             `json:"step_index"`
	StepCount  int             `json:"step_count"`
	Kind       domain.StepKind `json:"kind"`
	Title      string          `json:"title,omitempty"`
	Body       string          `json:"body,omitempty"`
	Transition string          `json:"transition,omitempty"`
	Highlights []string        `json:"highlights,omitempty"`
	Questions  []QuestionView  `json:"questions,omitempty"`
	Intents    []Intent        `json:"intents"`
	Progress   *float64        `json:"progress,omitempty"`
	Gate       *GateView       `json:"gate,omitempty"`
	Locked     bool            `json:"locked,omitempty"`
	Message    string          `json:"message,omitempty"`
	Report     *report.Report  `json:"report,omitempty"`
}

// RenderInput is what a renderer may read.
type RenderInput struct {
	SessionID  string
	Definition *survey.Definition
	State      domain.SessionState
}

// Renderer turns a step into a View. Implementations must be pure.
type Renderer interface {
	Render(step domain.Step, in RenderInput) View
}

// DefaultRenderers returns one renderer per step kind.
func DefaultRenderers() map[domain.StepKind]Renderer {
	return map[domain.StepKind]Renderer{
		domain.StepWelcome:     WelcomeRenderer{},
		domain.StepEducational: EducationalRenderer{},
		domain.StepQuestion:    QuestionRenderer{},
		domain.StepResults:     ResultsRenderer{},
	}
}

// baseRenderer is used for kinds without a registered renderer.
type baseRenderer struct{}

func (baseRenderer) Render(domain.Step, RenderInput) View {
	return View{Intents: []Intent{IntentNext, IntentBack}}
}

// WelcomeRenderer shows the survey title, intro and highlights.
type WelcomeRenderer struct{}

func (WelcomeRenderer) Render(_ domain.Step, in RenderInput) View {
	return View{
		Title:      in.Definition.Title,
		Body:       in.Definition.Intro,
		Highlights: append([]string(nil), in.Definition.Highlights...),
		Intents:    []Intent{IntentNext},
	}
}

// EducationalRenderer shows a content card.
type EducationalRenderer struct{}

func (EducationalRenderer) Render(step domain.Step, _ RenderInput) View {
	edu, _ := step.AsEducational()
	return View{
		Title:      edu.Title,
		Body:       edu.Body,
		Transition: edu.Transition,
		Intents:    []Intent{IntentNext, IntentBack},
	}
}

// QuestionRenderer shows every item of the step with the current selection.
type QuestionRenderer struct{}

func (QuestionRenderer) Render(step domain.Step, in RenderInput) View {
	q, _ := step.AsQuestion()
	v := View{
		Title:     q.Title,
		Questions: make([]QuestionView, 0, len(q.Items)),
		Intents:   []Intent{IntentRespond, IntentSkip, IntentNext, IntentBack},
	}
	for i, item := range q.Items {
		answer := in.State.Responses[item.ID]
		qv := QuestionView{
			ID:      item.ID,
			Prompt:  item.Prompt,
			Options: make([]OptionView, len(item.Options)),
			Answer:  answer,
			Skipped: answer == domain.Skipped,
			Active:  i == in.State.ItemIndex,
		}
		for j, opt := range item.Options {
			qv.Options[j] = OptionView{Value: opt, Selected: opt == answer}
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

// ResultsRenderer shows the locked teaser and gate, or the report once submitted.
type ResultsRenderer struct{}

func (ResultsRenderer) Render(_ domain.Step, in RenderInput) View {
	st := in.State
	if st.Submitted {
		r := report.Generate(st.Responses)
		return View{
			Title:   ReportTitle,
			Intents: []Intent{IntentBack},
			Report:  &r,
		}
	}
	intents := []Intent{IntentSubmitEmail, IntentBack}
	if st.Submitting {
		intents = []Intent{IntentBack}
	}
	return View{
		Title:   LockedTitle,
		Message: LockedMessage,
		Locked:  true,
		Intents: intents,
		Gate: &GateView{
			Visible:    st.GateVisible,
			Submitting: st.Submitting,
			Email:      st.Email,
			Error:      st.LastError,
		},
	}
}
