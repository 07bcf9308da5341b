package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/deskmate/internal/actions"
)

// assistantPrompt is the general persona used for plain chat turns.
func assistantPrompt(organizer actions.Organizer) string {
	return fmt.Sprintf(`You are Deskmate, a helpful personal assistant for %s (%s).
You can chat naturally and, when asked, perform actions against the user's
connected Gmail, Calendar and Docs accounts. Answer concisely in markdown.
Today's date is %s.`,
		organizer.DisplayName, organizer.Email, time.Now().Format("Monday, 2 January 2006"))
}

// classifierPrompt instructs the model to emit exactly one routing
// decision as JSON. The action list is generated from the registry so
// prompt and dispatch table cannot drift apart.
func classifierPrompt(actionNames []string, organizer actions.Organizer) string {
	return fmt.Sprintf(`You are the routing stage of a personal assistant for %s (%s).
Analyze the conversation and decide whether the latest user message asks for
an action against an external service.

Respond with ONLY a JSON object in this exact shape:
{
  "requiresAction": boolean,
  "userConfirmed": boolean,
  "actionName": string,
  "parameters": object,
  "reasoning": string
}

Rules:
- requiresAction is true only when the user wants one of these actions
  performed: %s. Otherwise it is false and actionName is "none".
- userConfirmed is true only when the user has explicitly approved the
  action in this conversation AFTER the assistant asked for confirmation
  (e.g. "yes", "do it", "go ahead"). A first-time request is never confirmed.
- parameters holds only the fields the chosen action needs, extracted from
  the conversation. Dates and times are RFC 3339. Omit unknown fields.
- reasoning is one short diagnostic sentence.
Today's date is %s.`,
		organizer.DisplayName, organizer.Email,
		strings.Join(actionNames, ", "),
		time.Now().Format(time.RFC3339))
}

// confirmationPrompt is the persona that asks the user to approve the
// detected action before anything irreversible happens.
func confirmationPrompt(decision *RoutingDecision) string {
	return fmt.Sprintf(`You are Deskmate, a careful personal assistant. The user appears to want
the %q action performed with these parameters: %v.
Do NOT perform the action. Instead, restate in one or two friendly sentences
what you are about to do on their behalf and ask them to confirm. Mention the
key details (recipients, times, titles) so they can spot mistakes.`,
		decision.Action, decision.Parameters)
}

// summaryPrompt turns an executor's narrative result into the reply the
// user reads.
func summaryPrompt(decision *RoutingDecision, result string) string {
	return fmt.Sprintf(`You are Deskmate, a personal assistant. The %q action just completed.
Raw result:
%s

Summarize what happened for the user in friendly markdown. Keep every
identifier, number and link from the raw result that the user may need.
Do not invent details that are not in the result.`,
		decision.Action, result)
}
