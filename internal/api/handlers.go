package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/deskmate/internal/actions"
	"github.com/deskmate/internal/chat"
	"github.com/deskmate/internal/config"
	"github.com/deskmate/internal/model"
	"github.com/deskmate/internal/permissions"
	"github.com/deskmate/internal/store"
)

// conversationStore is the slice of the conversation store the
// handlers consume. Satisfied by store.ConversationStore.
type conversationStore interface {
	EnsureConversation(ctx context.Context, threadID, userID, firstMessage string) error
	AppendMessage(ctx context.Context, threadID, role, content string) error
	CountUserMessages(ctx context.Context, threadID string) (int, error)
	Touch(ctx context.Context, threadID string) error
	ListConversations(ctx context.Context, userID, search string) ([]store.Conversation, error)
	ListMessages(ctx context.Context, userID, threadID string) ([]store.StoredMessage, error)
	SoftDeleteConversation(ctx context.Context, userID, threadID string) error
}

// Handlers holds the request handlers and their collaborators.
type Handlers struct {
	cfg           *config.Config
	conversations conversationStore
	credentials   permissions.Store
	streamer      *chat.Streamer
}

// NewHandlers wires the API handlers.
func NewHandlers(cfg *config.Config, conversations conversationStore, credentials permissions.Store, streamer *chat.Streamer) *Handlers {
	return &Handlers{
		cfg:           cfg,
		conversations: conversations,
		credentials:   credentials,
		streamer:      streamer,
	}
}

type chatRequest struct {
	ThreadID string          `json:"threadId"`
	Model    string          `json:"model"`
	Messages []model.Message `json:"messages"`
}

// messageLimitNotice is streamed, and therefore persisted, like any
// other assistant reply once a thread hits its message cap.
const messageLimitNotice = "This conversation has reached its message limit. Please start a new chat to continue."

// HandleChat runs one chat turn, streaming the assistant reply as
// chunked plain text.
func (h *Handlers) HandleChat(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.ThreadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "threadId is required")
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages must not be empty")
	}
	lastMessage := req.Messages[len(req.Messages)-1]
	if lastMessage.Role != "user" || lastMessage.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "last message must be a non-empty user message")
	}

	apiKey := c.Request().Header.Get("X-Model-Api-Key")
	if apiKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "X-Model-Api-Key header is required")
	}

	ctx := c.Request().Context()

	if err := h.conversations.EnsureConversation(ctx, req.ThreadID, user.ID, lastMessage.Content); err != nil {
		if errors.Is(err, store.ErrConversationDeleted) {
			return echo.NewHTTPError(http.StatusNotFound, "This conversation has been deleted")
		}
		log.Error().Err(err).Str("thread_id", req.ThreadID).Msg("Conversation setup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to prepare conversation")
	}

	// The user message is persisted before anything can fail downstream,
	// so a dropped model call never loses the user's side of the turn.
	if err := h.conversations.AppendMessage(ctx, req.ThreadID, "user", lastMessage.Content); err != nil {
		log.Error().Err(err).Str("thread_id", req.ThreadID).Msg("User message persist failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save message")
	}
	if err := h.conversations.Touch(ctx, req.ThreadID); err != nil {
		log.Warn().Err(err).Str("thread_id", req.ThreadID).Msg("Conversation touch failed")
	}

	if h.cfg.Chat.MaxUserMessages > 0 {
		count, err := h.conversations.CountUserMessages(ctx, req.ThreadID)
		if err != nil {
			log.Warn().Err(err).Str("thread_id", req.ThreadID).Msg("Message count failed")
		} else if count > h.cfg.Chat.MaxUserMessages {
			h.beginStream(c)
			sink := chat.NewTranscriptSink(h.conversations, req.ThreadID)
			sink.Append(messageLimitNotice)
			fmt.Fprint(c.Response(), messageLimitNotice)
			// Persistence must survive a client disconnect, same as the
			// streamer's own finalize.
			sink.Finalize(context.WithoutCancel(ctx))
			return nil
		}
	}

	connector, err := model.NewConnector(ctx, model.ConnectorOptions{
		APIKey:    apiKey,
		Model:     req.Model,
		MaxTokens: h.cfg.Chat.MaxOutputTokens,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Unable to initialize model: %v", err))
	}

	h.beginStream(c)

	turn := chat.Turn{
		ThreadID: req.ThreadID,
		UserID:   user.ID,
		Messages: req.Messages,
		Model:    req.Model,
		APIKey:   apiKey,
		Organizer: actions.Organizer{
			DisplayName: user.Name,
			Email:       user.Email,
		},
	}

	h.streamer.Run(ctx, connector, turn, c.Response())
	return nil
}

// beginStream commits the response to chunked plain text.
func (h *Handlers) beginStream(c echo.Context) {
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
}

// HandleListConversations returns the user's conversations, optionally
// filtered by ?search=.
func (h *Handlers) HandleListConversations(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	conversations, err := h.conversations.ListConversations(c.Request().Context(), user.ID, c.QueryParam("search"))
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Conversation list failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list conversations")
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": conversations,
	})
}

// HandleListMessages returns the thread's message history.
func (h *Handlers) HandleListMessages(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	messages, err := h.conversations.ListMessages(c.Request().Context(), user.ID, c.Param("threadId"))
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) || errors.Is(err, store.ErrConversationDeleted) {
			return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
		}
		log.Error().Err(err).Str("thread_id", c.Param("threadId")).Msg("Message list failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list messages")
	}
	if messages == nil {
		messages = []store.StoredMessage{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// HandleDeleteConversation soft-deletes a conversation.
func (h *Handlers) HandleDeleteConversation(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	err = h.conversations.SoftDeleteConversation(c.Request().Context(), user.ID, c.Param("threadId"))
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
		}
		log.Error().Err(err).Str("thread_id", c.Param("threadId")).Msg("Conversation delete failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete conversation")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"deleted": true,
	})
}

// appStatus is one entry in the apps listing.
type appStatus struct {
	AppID       string `json:"appId"`
	AppName     string `json:"appName"`
	IsConnected bool   `json:"isConnected"`
}

// knownApps are the capabilities the action registry can dispatch to.
var knownApps = []appStatus{
	{AppID: actions.CapabilityGmail, AppName: "Gmail"},
	{AppID: actions.CapabilityCalendar, AppName: "Google Calendar"},
	{AppID: actions.CapabilityDocs, AppName: "Google Docs"},
}

// HandleListApps returns every known capability with its connection state.
func (h *Handlers) HandleListApps(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	credentials, err := h.credentials.List(c.Request().Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("App list failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list apps")
	}

	connected := make(map[string]bool, len(credentials))
	for _, cred := range credentials {
		connected[cred.Capability] = cred.IsConnected
	}

	apps := make([]appStatus, 0, len(knownApps))
	for _, app := range knownApps {
		app.IsConnected = connected[app.AppID]
		apps = append(apps, app)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"apps": apps,
	})
}

type disconnectRequest struct {
	AppID string `json:"appId"`
}

// HandleDisconnectApp revokes the user's stored credential for an app.
func (h *Handlers) HandleDisconnectApp(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req disconnectRequest
	if err := c.Bind(&req); err != nil || req.AppID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "appId is required")
	}

	if err := h.credentials.Disconnect(c.Request().Context(), user.ID, req.AppID); err != nil {
		log.Error().Err(err).Str("app_id", req.AppID).Msg("App disconnect failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to disconnect app")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"disconnected": true,
	})
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
