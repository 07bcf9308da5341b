package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmate/internal/actions"
)

func TestAnalyzeNormalizesActionlessDecision(t *testing.T) {
	client := &fakeClient{
		decision: &RoutingDecision{
			RequiresAction: false,
			UserConfirmed:  true,
			Action:         "sendEmail",
			Reasoning:      "just small talk",
		},
	}
	classifier := NewIntentClassifier([]string{"sendEmail"})

	decision, err := classifier.Analyze(context.Background(), client, testTurn())
	require.NoError(t, err)

	// Action fields mean nothing without requiresAction.
	assert.Equal(t, "none", decision.Action)
	assert.False(t, decision.UserConfirmed)
}

func TestAnalyzePassesDecisionThrough(t *testing.T) {
	client := &fakeClient{
		decision: &RoutingDecision{
			RequiresAction: true,
			UserConfirmed:  true,
			Action:         "scheduleMeeting",
			Parameters:     actions.Params{"title": "Standup"},
		},
	}
	classifier := NewIntentClassifier([]string{"scheduleMeeting"})

	decision, err := classifier.Analyze(context.Background(), client, testTurn())
	require.NoError(t, err)

	assert.True(t, decision.RequiresAction)
	assert.True(t, decision.UserConfirmed)
	assert.Equal(t, "scheduleMeeting", decision.Action)
	assert.Equal(t, "Standup", decision.Parameters["title"])
}
