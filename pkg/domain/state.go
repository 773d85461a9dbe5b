package domain

// SessionState is the runtime snapshot of one survey session.
// It is owned exclusively by the survey state machine.
type SessionState struct {
	// StepIndex is the position of the active step, in [0, stepCount-1].
	StepIndex int `json:"step_index"`

	// ItemIndex is the active QuestionItem inside a multi-item Question step.
	ItemIndex int `json:"item_index"`

	// Responses accumulates the answers given so far.
	Responses Responses `json:"responses"`

	// Email is the last address accepted by validation. It is kept across failed writes.
	Email string `json:"email,omitempty"`

	// GateVisible indicates that the email gate overlay is shown.
	GateVisible bool `json:"gate_visible"`

	// Submitting is true while a persistence write is outstanding.
	Submitting bool `json:"submitting"`

	// Submitted is true once a write succeeded; it unlocks the report.
	Submitted bool `json:"submitted"`

	// LastError is the user-facing message of the last failed submission.
	LastError string `json:"last_error,omitempty"`
}

// NewSessionState returns the state of a freshly started session.
func NewSessionState() SessionState {
	return SessionState{
		Responses: make(Responses),
	}
}

// Snapshot returns a deep copy of the state.
func (s SessionState) Snapshot() SessionState {
	out := s
	out.Responses = s.Responses.Clone()
	return out
}
