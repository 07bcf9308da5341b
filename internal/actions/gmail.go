package actions

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func newGmailService(ctx context.Context, accessToken string) (*gmail.Service, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}
	return svc, nil
}

func (r *Registry) registerGmailActions() {
	r.register(Action{
		Name:       "sendEmail",
		Capability: CapabilityGmail,
		Execute:    execSendEmail,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    fmt.Sprintf("I'll send that email to %s for you.", p.String("to")),
				Progress: "Composing and sending the email now...",
			}
		},
	})

	r.register(Action{
		Name:       "readEmails",
		Capability: CapabilityGmail,
		Execute:    execReadEmails,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll check your inbox for you.",
				Progress: "Fetching your recent emails...",
			}
		},
	})

	r.register(Action{
		Name:       "searchEmails",
		Capability: CapabilityGmail,
		Execute:    execSearchEmails,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    fmt.Sprintf("I'll search your mail for %q.", p.String("query")),
				Progress: "Searching your mailbox...",
			}
		},
	})

	r.register(Action{
		Name:       "getEmailThread",
		Capability: CapabilityGmail,
		Execute:    execGetEmailThread,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll pull up that email thread.",
				Progress: "Loading the conversation...",
			}
		},
	})

	r.register(Action{
		Name:       "markEmailsAsRead",
		Capability: CapabilityGmail,
		Execute:    execMarkEmailsAsRead,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll update those emails for you.",
				Progress: "Marking the messages...",
			}
		},
	})
}

// execSendEmail sends one email. Replies carry In-Reply-To/References
// headers resolved from the original message.
func execSendEmail(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("sendEmail", "to", "subject", "body"); err != nil {
		return "", err
	}

	svc, err := newGmailService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	to := params.String("to")
	subject := params.String("subject")
	body := params.String("body")

	headers := []string{
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"Content-Type: text/html; charset=utf-8",
		"MIME-Version: 1.0",
	}

	if replyTo := params.String("replyToMessageId"); replyTo != "" {
		original, err := svc.Users.Messages.Get("me", replyTo).
			Format("metadata").MetadataHeaders("Message-ID", "References").
			Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to load original message for reply: %w", err)
		}
		messageID := headerValue(original.Payload, "Message-ID")
		references := headerValue(original.Payload, "References")
		if messageID != "" {
			headers = append(headers,
				fmt.Sprintf("In-Reply-To: %s", messageID),
				fmt.Sprintf("References: %s %s", references, messageID),
			)
		}
	}

	raw := strings.Join(append(headers, "", body), "\n")
	sent, err := svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.RawURLEncoding.EncodeToString([]byte(raw)),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	return fmt.Sprintf("Email sent to %s with subject %q (message id %s).", to, subject, sent.Id), nil
}

// execReadEmails lists recent inbox messages matching the optional
// filters and renders them as a readable digest.
func execReadEmails(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	svc, err := newGmailService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	query := buildGmailQuery(params)
	maxResults := params.Int("maxResults", 10)

	list, err := svc.Users.Messages.List("me").Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to read emails: %w", err)
	}
	if len(list.Messages) == 0 {
		return "No emails matched in the inbox.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d emails:\n", len(list.Messages))
	for i, ref := range list.Messages {
		msg, err := svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to load email %s: %w", ref.Id, err)
		}
		sb.WriteString(formatEmail(i+1, msg))
	}
	return sb.String(), nil
}

// execSearchEmails is readEmails with a mandatory free-text query.
func execSearchEmails(ctx context.Context, accessToken string, params Params, organizer Organizer) (string, error) {
	if err := params.require("searchEmails", "query"); err != nil {
		return "", err
	}
	if _, ok := params["maxResults"]; !ok {
		resolved := Params{}
		for k, v := range params {
			resolved[k] = v
		}
		resolved["maxResults"] = 20
		return execReadEmails(ctx, accessToken, resolved, organizer)
	}
	return execReadEmails(ctx, accessToken, params, organizer)
}

// execGetEmailThread renders every message in one mail thread.
func execGetEmailThread(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("getEmailThread", "threadId"); err != nil {
		return "", err
	}

	svc, err := newGmailService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	thread, err := svc.Users.Threads.Get("me", params.String("threadId")).Format("full").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get email thread: %w", err)
	}
	if len(thread.Messages) == 0 {
		return "The thread contains no messages.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Thread with %d messages:\n", len(thread.Messages))
	for i, msg := range thread.Messages {
		sb.WriteString(formatEmail(i+1, msg))
	}
	return sb.String(), nil
}

// execMarkEmailsAsRead toggles the UNREAD label on a batch of messages.
func execMarkEmailsAsRead(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	ids := params.StringSlice("messageIds")
	if len(ids) == 0 {
		return "", fmt.Errorf("markEmailsAsRead requires a non-empty \"messageIds\" parameter")
	}

	svc, err := newGmailService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	req := &gmail.BatchModifyMessagesRequest{Ids: ids}
	markAsRead := params.Bool("markAsRead", true)
	if markAsRead {
		req.RemoveLabelIds = []string{"UNREAD"}
	} else {
		req.AddLabelIds = []string{"UNREAD"}
	}

	if err := svc.Users.Messages.BatchModify("me", req).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to mark emails: %w", err)
	}

	state := "read"
	if !markAsRead {
		state = "unread"
	}
	return fmt.Sprintf("Marked %d emails as %s.", len(ids), state), nil
}

// buildGmailQuery assembles the Gmail search string from the optional
// filter parameters, always scoped to the inbox.
func buildGmailQuery(params Params) string {
	query := "in:inbox"
	if sender := params.String("sender"); sender != "" {
		query += fmt.Sprintf(" from:%s", sender)
	}
	if subject := params.String("subject"); subject != "" {
		query += fmt.Sprintf(" subject:%q", subject)
	}
	if params.Bool("isUnread", false) {
		query += " is:unread"
	}
	if params.Bool("hasAttachment", false) {
		query += " has:attachment"
	}
	if after := params.String("dateAfter"); after != "" {
		query += fmt.Sprintf(" after:%s", after)
	}
	if before := params.String("dateBefore"); before != "" {
		query += fmt.Sprintf(" before:%s", before)
	}
	if q := params.String("query"); q != "" {
		query += " " + q
	}
	return query
}

// formatEmail renders one message as a digest entry, truncating the
// body so a long email cannot swamp the summary prompt.
func formatEmail(index int, msg *gmail.Message) string {
	subject := headerValue(msg.Payload, "Subject")
	if subject == "" {
		subject = "(No Subject)"
	}

	body := truncateUTF8(stripHTMLTags(extractBody(msg.Payload)), 1000)

	unread := ""
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			unread = " [unread]"
			break
		}
	}

	return fmt.Sprintf("%d. %s%s\n   From: %s | Date: %s | id: %s\n   %s\n",
		index, subject, unread,
		headerValue(msg.Payload, "From"), headerValue(msg.Payload, "Date"), msg.Id,
		strings.TrimSpace(body))
}

func headerValue(payload *gmail.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody finds the first text part in a possibly nested MIME tree.
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := base64.RawURLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(decoded)
		}
	}
	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" || part.MimeType == "text/html" {
			if part.Body != nil && part.Body.Data != "" {
				if decoded, err := base64.RawURLEncoding.DecodeString(part.Body.Data); err == nil {
					return string(decoded)
				}
			}
		}
		if nested := extractBody(part); nested != "" {
			return nested
		}
	}
	return ""
}

// truncateUTF8 cuts s at limit bytes, backing up so a multi-byte rune
// is never split.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTMLTags(html string) string {
	return strings.TrimSpace(strings.ReplaceAll(htmlTagPattern.ReplaceAllString(html, ""), "&nbsp;", " "))
}
