package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmate/internal/config"
	"github.com/deskmate/internal/store"
)

// fakeConversations scripts the conversation store for handler tests.
type fakeConversations struct {
	userMessages int
	ensureErr    error

	appended []struct {
		Role, Content string
		CtxErr        error
	}
}

func (f *fakeConversations) EnsureConversation(context.Context, string, string, string) error {
	return f.ensureErr
}

func (f *fakeConversations) AppendMessage(ctx context.Context, _, role, content string) error {
	f.appended = append(f.appended, struct {
		Role, Content string
		CtxErr        error
	}{role, content, ctx.Err()})
	return nil
}

func (f *fakeConversations) CountUserMessages(context.Context, string) (int, error) {
	return f.userMessages, nil
}

func (f *fakeConversations) Touch(context.Context, string) error { return nil }

func (f *fakeConversations) ListConversations(context.Context, string, string) ([]store.Conversation, error) {
	return nil, nil
}

func (f *fakeConversations) ListMessages(context.Context, string, string) ([]store.StoredMessage, error) {
	return nil, nil
}

func (f *fakeConversations) SoftDeleteConversation(context.Context, string, string) error {
	return nil
}

func newChatContext(t *testing.T, ctx context.Context) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	body := `{"threadId":"thread-1","model":"gpt-4o-mini","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Model-Api-Key", "sk-test")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.Set(string(UserContextKey), &AuthUser{ID: "user-1", Name: "Priya", Email: "priya@example.com"})
	return c, rec
}

func testConfig(maxUserMessages int) *config.Config {
	cfg := &config.Config{}
	cfg.Chat.MaxUserMessages = maxUserMessages
	cfg.Chat.MaxOutputTokens = 2048
	return cfg
}

func TestHandleChatMessageCapIsStreamedAndPersisted(t *testing.T) {
	conversations := &fakeConversations{userMessages: 51}
	h := NewHandlers(testConfig(50), conversations, nil, nil)

	c, rec := newChatContext(t, context.Background())
	require.NoError(t, h.HandleChat(c))

	assert.Contains(t, rec.Body.String(), "message limit")

	// One user row, one assistant row carrying the cap notice.
	require.Len(t, conversations.appended, 2)
	assert.Equal(t, "user", conversations.appended[0].Role)
	assert.Equal(t, "assistant", conversations.appended[1].Role)
	assert.Equal(t, messageLimitNotice, conversations.appended[1].Content)
}

func TestHandleChatMessageCapSurvivesClientDisconnect(t *testing.T) {
	conversations := &fakeConversations{userMessages: 51}
	h := NewHandlers(testConfig(50), conversations, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := newChatContext(t, ctx)
	require.NoError(t, h.HandleChat(c))

	// The cap notice is finalized on a detached context, so the row is
	// written even though the request context is already dead.
	require.Len(t, conversations.appended, 2)
	notice := conversations.appended[1]
	assert.Equal(t, messageLimitNotice, notice.Content)
	assert.NoError(t, notice.CtxErr)
}

func TestHandleChatDeletedThreadIs404(t *testing.T) {
	conversations := &fakeConversations{ensureErr: store.ErrConversationDeleted}
	h := NewHandlers(testConfig(50), conversations, nil, nil)

	c, _ := newChatContext(t, context.Background())
	err := h.HandleChat(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestHandleChatRejectsMalformedRequests(t *testing.T) {
	h := NewHandlers(testConfig(50), &fakeConversations{}, nil, nil)

	cases := []struct {
		name string
		body string
	}{
		{"missing threadId", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"empty messages", `{"threadId":"t1","messages":[]}`},
		{"last message not user", `{"threadId":"t1","messages":[{"role":"assistant","content":"hi"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(tc.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			req.Header.Set("X-Model-Api-Key", "sk-test")
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)
			c.Set(string(UserContextKey), &AuthUser{ID: "user-1"})

			err := h.HandleChat(c)
			var httpErr *echo.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusBadRequest, httpErr.Code)
		})
	}
}
