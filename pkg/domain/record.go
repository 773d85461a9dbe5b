package domain

// PersistedRecord is one durable snapshot of a completed survey submission.
type PersistedRecord struct {
	Key       string    `json:"key"`
	Email     string    `json:"email"`
	Responses Responses `json:"responses"`
	Timestamp string    `json:"timestamp"`
}

// ActionRecord is the value written when logging a user interaction.
type ActionRecord struct {
	Action    string         `json:"action"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}
