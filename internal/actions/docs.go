package actions

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

func newDocsService(ctx context.Context, accessToken string) (*docs.Service, error) {
	svc, err := docs.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create docs client: %w", err)
	}
	return svc, nil
}

func newDriveService(ctx context.Context, accessToken string) (*drive.Service, error) {
	svc, err := drive.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return svc, nil
}

func (r *Registry) registerDocsActions() {
	r.register(Action{
		Name:       "createDocument",
		Capability: CapabilityDocs,
		Execute:    execCreateDocument,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    fmt.Sprintf("I'll create the document %q for you.", p.String("title")),
				Progress: "Creating the document in Drive...",
			}
		},
	})

	r.register(Action{
		Name:       "readDocument",
		Capability: CapabilityDocs,
		Execute:    execReadDocument,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll open that document.",
				Progress: "Reading the document contents...",
			}
		},
	})

	r.register(Action{
		Name:       "updateDocument",
		Capability: CapabilityDocs,
		Execute:    execUpdateDocument,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll edit that document for you.",
				Progress: "Applying the changes...",
			}
		},
	})

	r.register(Action{
		Name:       "formatDocument",
		Capability: CapabilityDocs,
		Execute:    execFormatDocument,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll format that text for you.",
				Progress: "Applying the text styles...",
			}
		},
	})

	r.register(Action{
		Name:       "shareDocument",
		Capability: CapabilityDocs,
		Execute:    execShareDocument,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    fmt.Sprintf("I'll share the document with %s.", p.String("email")),
				Progress: "Updating the sharing settings...",
			}
		},
	})

	r.register(Action{
		Name:       "searchDocuments",
		Capability: CapabilityDocs,
		Execute:    execSearchDocuments,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    fmt.Sprintf("I'll search your documents for %q.", p.String("query")),
				Progress: "Searching Drive...",
			}
		},
	})

	r.register(Action{
		Name:       "deleteDocument",
		Capability: CapabilityDocs,
		Execute:    execDeleteDocument,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll delete that document.",
				Progress: "Removing the document from Drive...",
			}
		},
	})

	r.register(Action{
		Name:       "getDocumentPermissions",
		Capability: CapabilityDocs,
		Execute:    execGetDocumentPermissions,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll check who has access to that document.",
				Progress: "Reading the sharing settings...",
			}
		},
	})
}

const docMimeType = "application/vnd.google-apps.document"

// resolveDocumentID returns the document id from params, resolving a
// title via Drive search when no id was given. The incoming params are
// never mutated; the resolved id is returned as a fresh value.
func resolveDocumentID(ctx context.Context, accessToken string, params Params, action string) (string, error) {
	if id := params.String("documentId"); id != "" {
		return id, nil
	}

	title := params.String("title")
	if title == "" {
		return "", fmt.Errorf("%s requires a \"documentId\" or \"title\" parameter", action)
	}

	svc, err := newDriveService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf("name contains '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(title, "'", `\'`), docMimeType)
	list, err := svc.Files.List().Q(query).PageSize(1).
		Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("document search failed: %w", err)
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("no document found with title %q", title)
	}
	return list.Files[0].Id, nil
}

func documentURL(documentID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", documentID)
}

// execCreateDocument creates a doc, optionally seeds it with content
// and files it into a folder.
func execCreateDocument(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("createDocument", "title"); err != nil {
		return "", err
	}

	svc, err := newDocsService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	title := params.String("title")
	created, err := svc.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}

	if content := params.String("content"); content != "" {
		_, err := svc.Documents.BatchUpdate(created.DocumentId, &docs.BatchUpdateDocumentRequest{
			Requests: []*docs.Request{{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: 1},
					Text:     content,
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to write initial content: %w", err)
		}
	}

	if folderID := params.String("folderId"); folderID != "" {
		driveSvc, err := newDriveService(ctx, accessToken)
		if err != nil {
			return "", err
		}
		_, err = driveSvc.Files.Update(created.DocumentId, nil).
			AddParents(folderID).Fields("id, parents").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to move document into folder: %w", err)
		}
	}

	return fmt.Sprintf("Created document %q (id %s): %s",
		title, created.DocumentId, documentURL(created.DocumentId)), nil
}

// execReadDocument reads the full text of a doc, resolved by id or title.
func execReadDocument(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	documentID, err := resolveDocumentID(ctx, accessToken, params, "readDocument")
	if err != nil {
		return "", err
	}

	svc, err := newDocsService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	document, err := svc.Documents.Get(documentID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}

	return fmt.Sprintf("Document %q (id %s, %s):\n%s",
		document.Title, documentID, documentURL(documentID), extractDocumentText(document)), nil
}

// execUpdateDocument appends, inserts or find-and-replaces text.
func execUpdateDocument(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("updateDocument", "action", "content"); err != nil {
		return "", err
	}

	documentID, err := resolveDocumentID(ctx, accessToken, params, "updateDocument")
	if err != nil {
		return "", err
	}

	svc, err := newDocsService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	content := params.String("content")
	var requests []*docs.Request

	switch action := params.String("action"); action {
	case "append":
		document, err := svc.Documents.Get(documentID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to load document for append: %w", err)
		}
		endIndex := int64(1)
		if body := document.Body; body != nil && len(body.Content) > 0 {
			endIndex = body.Content[len(body.Content)-1].EndIndex
		}
		requests = []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: endIndex - 1},
				Text:     content,
			},
		}}
	case "replace":
		replaceText := params.String("replaceText")
		if replaceText == "" {
			return "", fmt.Errorf("updateDocument replace requires a non-empty \"replaceText\" parameter")
		}
		requests = []*docs.Request{{
			ReplaceAllText: &docs.ReplaceAllTextRequest{
				ContainsText: &docs.SubstringMatchCriteria{Text: replaceText, MatchCase: true},
				ReplaceText:  content,
			},
		}}
	case "insert":
		requests = []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: int64(params.Int("insertIndex", 1))},
				Text:     content,
			},
		}}
	default:
		return "", fmt.Errorf("updateDocument: unsupported action %q (want append, replace or insert)", action)
	}

	_, err = svc.Documents.BatchUpdate(documentID, &docs.BatchUpdateDocumentRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update document: %w", err)
	}

	return fmt.Sprintf("Applied %s to document %s: %s",
		params.String("action"), documentID, documentURL(documentID)), nil
}

// execFormatDocument applies text styling (bold, italic, underline,
// font, colors) to an index range of the document.
func execFormatDocument(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	startIndex := params.Int("startIndex", -1)
	endIndex := params.Int("endIndex", -1)
	if startIndex < 0 || endIndex <= startIndex {
		return "", fmt.Errorf("formatDocument requires valid \"startIndex\" and \"endIndex\" parameters")
	}

	style, fields := buildTextStyle(params)
	if len(fields) == 0 {
		return "", fmt.Errorf("formatDocument requires at least one style parameter")
	}

	documentID, err := resolveDocumentID(ctx, accessToken, params, "formatDocument")
	if err != nil {
		return "", err
	}

	svc, err := newDocsService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	_, err = svc.Documents.BatchUpdate(documentID, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			UpdateTextStyle: &docs.UpdateTextStyleRequest{
				Range:     &docs.Range{StartIndex: int64(startIndex), EndIndex: int64(endIndex)},
				TextStyle: style,
				Fields:    strings.Join(fields, ","),
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to format document: %w", err)
	}

	return fmt.Sprintf("Applied %s to characters %d-%d of document %s: %s",
		strings.Join(fields, ", "), startIndex, endIndex, documentID, documentURL(documentID)), nil
}

// buildTextStyle assembles the style plus the update mask naming only
// the styles the caller supplied. Explicit false values are kept so
// formatting can be removed, not just added.
func buildTextStyle(params Params) (*docs.TextStyle, []string) {
	style := &docs.TextStyle{}
	var fields []string

	if v, ok := params["bold"].(bool); ok {
		style.Bold = v
		style.ForceSendFields = append(style.ForceSendFields, "Bold")
		fields = append(fields, "bold")
	}
	if v, ok := params["italic"].(bool); ok {
		style.Italic = v
		style.ForceSendFields = append(style.ForceSendFields, "Italic")
		fields = append(fields, "italic")
	}
	if v, ok := params["underline"].(bool); ok {
		style.Underline = v
		style.ForceSendFields = append(style.ForceSendFields, "Underline")
		fields = append(fields, "underline")
	}
	if size := params.Int("fontSize", 0); size > 0 {
		style.FontSize = &docs.Dimension{Magnitude: float64(size), Unit: "PT"}
		fields = append(fields, "fontSize")
	}
	if family := params.String("fontFamily"); family != "" {
		style.WeightedFontFamily = &docs.WeightedFontFamily{FontFamily: family}
		fields = append(fields, "weightedFontFamily")
	}
	if color := optionalColor(params, "foregroundColor"); color != nil {
		style.ForegroundColor = color
		fields = append(fields, "foregroundColor")
	}
	if color := optionalColor(params, "backgroundColor"); color != nil {
		style.BackgroundColor = color
		fields = append(fields, "backgroundColor")
	}

	return style, fields
}

// optionalColor reads an {red, green, blue} object with channel values
// between 0 and 1, the shape the classifier extracts for colors.
func optionalColor(params Params, key string) *docs.OptionalColor {
	raw, ok := params[key].(map[string]interface{})
	if !ok {
		return nil
	}
	channel := func(name string) float64 {
		if f, ok := raw[name].(float64); ok {
			return f
		}
		return 0
	}
	return &docs.OptionalColor{
		Color: &docs.Color{
			RgbColor: &docs.RgbColor{
				Red:   channel("red"),
				Green: channel("green"),
				Blue:  channel("blue"),
			},
		},
	}
}

// execShareDocument grants one user a role on the document.
func execShareDocument(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("shareDocument", "email"); err != nil {
		return "", err
	}

	documentID, err := resolveDocumentID(ctx, accessToken, params, "shareDocument")
	if err != nil {
		return "", err
	}

	svc, err := newDriveService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	role := params.String("role")
	if role == "" {
		role = "reader"
	}

	_, err = svc.Permissions.Create(documentID, &drive.Permission{
		Type:         "user",
		Role:         role,
		EmailAddress: params.String("email"),
	}).SendNotificationEmail(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to share document: %w", err)
	}

	return fmt.Sprintf("Shared document %s with %s as %s: %s",
		documentID, params.String("email"), role, documentURL(documentID)), nil
}

// execSearchDocuments searches Drive for docs matching the query.
func execSearchDocuments(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("searchDocuments", "query"); err != nil {
		return "", err
	}

	svc, err := newDriveService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf("name contains '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(params.String("query"), "'", `\'`), docMimeType)
	list, err := svc.Files.List().Q(query).
		PageSize(int64(params.Int("maxResults", 10))).
		Fields("files(id, name, modifiedTime)").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to search documents: %w", err)
	}

	if len(list.Files) == 0 {
		return fmt.Sprintf("No documents matched %q.", params.String("query")), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d documents:\n", len(list.Files))
	for i, f := range list.Files {
		fmt.Fprintf(&sb, "%d. %s (id %s, modified %s): %s\n",
			i+1, f.Name, f.Id, f.ModifiedTime, documentURL(f.Id))
	}
	return sb.String(), nil
}

// execDeleteDocument removes the document from Drive.
func execDeleteDocument(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	documentID, err := resolveDocumentID(ctx, accessToken, params, "deleteDocument")
	if err != nil {
		return "", err
	}

	svc, err := newDriveService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	if err := svc.Files.Delete(documentID).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to delete document: %w", err)
	}

	return fmt.Sprintf("Deleted document %s.", documentID), nil
}

// execGetDocumentPermissions lists who can access the document.
func execGetDocumentPermissions(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	documentID, err := resolveDocumentID(ctx, accessToken, params, "getDocumentPermissions")
	if err != nil {
		return "", err
	}

	svc, err := newDriveService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	list, err := svc.Permissions.List(documentID).
		Fields("permissions(id, type, role, emailAddress)").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list document permissions: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Document %s has %d permission entries:\n", documentID, len(list.Permissions))
	for i, p := range list.Permissions {
		who := p.EmailAddress
		if who == "" {
			who = p.Type
		}
		fmt.Fprintf(&sb, "%d. %s as %s\n", i+1, who, p.Role)
	}
	return sb.String(), nil
}

// extractDocumentText flattens the document body into plain text.
func extractDocumentText(document *docs.Document) string {
	if document.Body == nil {
		return ""
	}
	var sb strings.Builder
	for _, element := range document.Body.Content {
		if element.Paragraph == nil {
			continue
		}
		for _, elem := range element.Paragraph.Elements {
			if elem.TextRun != nil {
				sb.WriteString(elem.TextRun.Content)
			}
		}
	}
	return sb.String()
}
