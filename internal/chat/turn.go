package chat

import (
	"github.com/deskmate/internal/actions"
	"github.com/deskmate/internal/model"
)

// Turn is one user submission plus everything needed to produce the
// assistant's reply. It is built fresh per HTTP request and never
// persisted as a unit.
type Turn struct {
	ThreadID  string
	UserID    string
	Messages  []model.Message
	Model     string
	APIKey    string
	Organizer actions.Organizer
}

// RoutingDecision is the intent classifier's structured output.
// Action is only meaningful when RequiresAction is true; Reasoning is
// diagnostic and never shown to the end user.
type RoutingDecision struct {
	RequiresAction bool           `json:"requiresAction"`
	UserConfirmed  bool           `json:"userConfirmed"`
	Action         string         `json:"actionName"`
	Parameters     actions.Params `json:"parameters"`
	Reasoning      string         `json:"reasoning"`
}
