package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deskmate/internal/actions"
	"github.com/deskmate/internal/aierrors"
	"github.com/deskmate/internal/model"
)

// CredentialSource is the credential-provider collaborator. An empty
// token with a nil error means the capability is unavailable.
type CredentialSource interface {
	HasPermission(ctx context.Context, userID, capability string) (bool, error)
	AccessToken(ctx context.Context, userID, capability string) (string, error)
}

// ActionSet resolves named actions. Implemented by actions.Registry.
type ActionSet interface {
	Lookup(name string) (actions.Action, error)
}

// Fixed in-stream notices. These are streamed (and therefore persisted)
// rather than surfaced as HTTP errors, keeping the client contract
// uniform once the response has begun.
const (
	classificationFailedNotice = "I ran into a problem while analyzing your request. Please try again in a moment."
	notConnectedNoticeFmt      = "It looks like your %s account isn't connected. Please connect %s from the Apps page and try again."
	reconnectNoticeFmt         = "Your %s connection has expired or been revoked. Please reconnect %s from the Apps page to continue."
)

// Streamer drives one chat turn through the
// CLASSIFY -> {PLAIN_CHAT | CONFIRM | ACT} -> DONE/ERROR state machine,
// multiplexing every chunk into the network stream and the transcript
// sink in the same order.
type Streamer struct {
	classifier   *IntentClassifier
	actionSet    ActionSet
	credentials  CredentialSource
	appender     Appender
	pacer        Pacer
	modelTimeout time.Duration
}

// NewStreamer wires the orchestrator's collaborators together.
func NewStreamer(classifier *IntentClassifier, actionSet ActionSet, credentials CredentialSource, appender Appender, pacer Pacer, modelTimeout time.Duration) *Streamer {
	if pacer == nil {
		pacer = NopPacer{}
	}
	return &Streamer{
		classifier:   classifier,
		actionSet:    actionSet,
		credentials:  credentials,
		appender:     appender,
		pacer:        pacer,
		modelTimeout: modelTimeout,
	}
}

// Run processes one turn, writing the reply to w chunk by chunk. All
// failures become user-facing prose inside the stream; the transcript
// is finalized exactly once on every path, including client disconnect,
// so partial output is never lost.
func (s *Streamer) Run(ctx context.Context, client model.Client, turn Turn, w io.Writer) {
	sink := NewTranscriptSink(s.appender, turn.ThreadID)

	// Persistence must survive client disconnects, so finalize runs on a
	// context detached from the request.
	defer sink.Finalize(context.WithoutCancel(ctx))

	emit := func(text string) {
		if text == "" {
			return
		}
		sink.Append(text)
		if _, err := io.WriteString(w, text); err != nil {
			log.Debug().Err(err).Str("thread_id", turn.ThreadID).Msg("Client write failed")
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}

	decision, err := s.classify(ctx, client, turn)
	if err != nil {
		log.Error().Err(err).Str("thread_id", turn.ThreadID).Msg("Classification failed")
		emit(classificationFailedNotice)
		return
	}

	switch {
	case !decision.RequiresAction:
		s.streamModelReply(ctx, client, assistantPrompt(turn.Organizer), turn.Messages, emit)
	case !decision.UserConfirmed:
		s.streamModelReply(ctx, client, confirmationPrompt(decision), turn.Messages, emit)
	default:
		s.runAction(ctx, client, turn, decision, emit)
	}
}

// classify runs the single classification call under the model timeout.
func (s *Streamer) classify(ctx context.Context, client model.Client, turn Turn) (*RoutingDecision, error) {
	if s.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.modelTimeout)
		defer cancel()
	}
	return s.classifier.Analyze(ctx, client, turn)
}

// streamModelReply streams one completion, converting any failure into
// remediation prose appended to whatever already went out.
func (s *Streamer) streamModelReply(ctx context.Context, client model.Client, system string, messages []model.Message, emit func(string)) {
	if s.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.modelTimeout)
		defer cancel()
	}

	err := client.StreamCompletion(ctx, system, messages, func(_ context.Context, chunk []byte) error {
		emit(string(chunk))
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Completion stream failed")
		emit("\n\n" + aierrors.Format(aierrors.Classify(err)))
	}
}

// runAction executes the confirmed action: resolve, authorize, narrate,
// execute, then stream a model summary of the result.
func (s *Streamer) runAction(ctx context.Context, client model.Client, turn Turn, decision *RoutingDecision, emit func(string)) {
	action, err := s.actionSet.Lookup(decision.Action)
	if err != nil {
		// Unknown action names are a hard dispatch error, never ignored.
		log.Error().Err(err).Str("action", decision.Action).Msg("Action dispatch failed")
		emit(aierrors.Format(aierrors.Classify(err)))
		return
	}

	title := capabilityTitle(action.Capability)

	connected, err := s.credentials.HasPermission(ctx, turn.UserID, action.Capability)
	if err != nil {
		log.Error().Err(err).Str("capability", action.Capability).Msg("Permission check failed")
		emit(aierrors.Format(aierrors.Classify(err)))
		return
	}
	if !connected {
		emit(fmt.Sprintf(notConnectedNoticeFmt, title, title))
		return
	}

	token, err := s.credentials.AccessToken(ctx, turn.UserID, action.Capability)
	if err != nil {
		log.Error().Err(err).Str("capability", action.Capability).Msg("Credential fetch failed")
		emit(aierrors.Format(aierrors.Classify(err)))
		return
	}
	if token == "" {
		emit(fmt.Sprintf(reconnectNoticeFmt, title, title))
		return
	}

	narration := action.Narrate(decision.Parameters)
	emit(narration.Intro + "\n\n")
	s.pacer.Pause(ctx)
	emit(fmt.Sprintf("*%s joined the chat*\n\n", title))
	s.pacer.Pause(ctx)
	emit(narration.Progress + "\n\n")
	s.pacer.Pause(ctx)

	result, err := action.Execute(ctx, token, decision.Parameters, turn.Organizer)
	if err != nil {
		// Executor failures are recovered locally: the stream carries the
		// remediation text and the turn still persists normally.
		log.Error().Err(err).
			Str("thread_id", turn.ThreadID).
			Str("action", decision.Action).
			Msg("Action execution failed")
		emit(aierrors.Format(aierrors.Classify(err)))
		return
	}

	log.Info().
		Str("thread_id", turn.ThreadID).
		Str("action", decision.Action).
		Str("capability", action.Capability).
		Msg("Action executed")

	s.streamModelReply(ctx, client, summaryPrompt(decision, result), turn.Messages, emit)
}

// capabilityTitle renders a capability id for user-facing text.
func capabilityTitle(capability string) string {
	switch capability {
	case actions.CapabilityGmail:
		return "Gmail"
	case actions.CapabilityCalendar:
		return "Calendar"
	case actions.CapabilityDocs:
		return "Docs"
	default:
		return capability
	}
}
