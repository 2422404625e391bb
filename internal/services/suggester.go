package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/lingualens/internal/gcp"
	"github.com/Lllllllleong/lingualens/internal/language"
	"github.com/Lllllllleong/lingualens/internal/models"
	"github.com/Lllllllleong/lingualens/internal/ocr"
	"github.com/Lllllllleong/lingualens/internal/session"
)

// ErrSuggestionFailed wraps failures of the language-suggestion model.
var ErrSuggestionFailed = errors.New("language suggestion failed")

// ContentGenerator is satisfied by *genai.GenerativeModel.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type suggestionPayload struct {
	SuggestedLanguages []string `json:"suggestedLanguages"`
}

// Suggester asks a generative model which languages a document image contains.
type Suggester struct {
	store *session.Store
	model ContentGenerator
}

// NewSuggester returns a suggester writing its results to store.
func NewSuggester(store *session.Store, model ContentGenerator) *Suggester {
	return &Suggester{store: store, model: model}
}

// Suggest stores the suggested recognition languages on the document and
// selects them. An empty suggestion keeps the current selection.
func (s *Suggester) Suggest(ctx context.Context, id string) (models.Document, []string, error) {
	d, err := s.store.Get(id)
	if err != nil {
		return models.Document{}, nil, err
	}
	if !d.HasImage() {
		return models.Document{}, nil, fmt.Errorf("%w: document %s has no image", ocr.ErrInvalidRequest, id)
	}
	logCtx := slog.With("documentId", id)

	imagePart := genai.Blob{MIMEType: d.Image.MIMEType, Data: d.Image.Data}
	resp, err := s.model.GenerateContent(ctx, imagePart, genai.Text(gcp.SuggesterUserPrompt))
	if err != nil {
		logCtx.Error("Failed calling Vertex AI.", "error", err)
		return models.Document{}, nil, fmt.Errorf("%w: %w", ErrSuggestionFailed, err)
	}

	raw := extractJSON(resp)
	if isRefusal(raw) {
		logCtx.Error("Model response indicates refusal.", "response", raw)
		return models.Document{}, nil, fmt.Errorf("%w: model refused", ErrSuggestionFailed)
	}
	var payload suggestionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		logCtx.Error("Could not parse model response.", "error", err, "response", raw)
		return models.Document{}, nil, fmt.Errorf("%w: invalid JSON: %w", ErrSuggestionFailed, err)
	}

	langs := language.FromAITags(payload.SuggestedLanguages)
	u := session.Update{SuggestedLanguages: langs}
	if len(langs) > 0 {
		u.SelectedLanguages = langs
	}
	d, err = s.store.UpdateDocument(ctx, id, u)
	if err != nil {
		return models.Document{}, nil, err
	}
	logCtx.Info("Languages suggested.", "tags", payload.SuggestedLanguages, "languages", langs)
	return d, langs, nil
}

// extractJSON concatenates the text parts of the first candidate and strips
// any code fence around them.
func extractJSON(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	out := strings.TrimSpace(b.String())
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

func isRefusal(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
