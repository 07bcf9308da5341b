package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/deskmate/internal/model"
)

// IntentClassifier produces exactly one RoutingDecision per turn with a
// single structured model call. No retries happen here: routing is
// deliberately decoupled from execution, so a classification failure is
// terminal for the turn and can never corrupt in-flight action state.
type IntentClassifier struct {
	actionNames []string
}

// NewIntentClassifier creates a classifier over the registered action names.
func NewIntentClassifier(actionNames []string) *IntentClassifier {
	return &IntentClassifier{actionNames: actionNames}
}

// Analyze classifies the conversation with the given model client.
func (c *IntentClassifier) Analyze(ctx context.Context, client model.Client, turn Turn) (*RoutingDecision, error) {
	var decision RoutingDecision

	system := classifierPrompt(c.actionNames, turn.Organizer)
	if err := client.Classify(ctx, system, turn.Messages, &decision); err != nil {
		return nil, fmt.Errorf("intent classification failed: %w", err)
	}

	// An actionless decision carries no meaningful action fields.
	if !decision.RequiresAction {
		decision.Action = "none"
		decision.UserConfirmed = false
	}

	log.Debug().
		Str("thread_id", turn.ThreadID).
		Bool("requires_action", decision.RequiresAction).
		Bool("user_confirmed", decision.UserConfirmed).
		Str("action", decision.Action).
		Str("reasoning", decision.Reasoning).
		Msg("Routed chat turn")

	return &decision, nil
}
