package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/lingualens/internal/language"
)

// --- Suggester Model Prompts ---
const SuggesterSystemPrompt = "You are a script and language identification tool for scanned documents. You must output your response as a valid JSON object."
const SuggesterUserPrompt = `Look at the provided image of a document and decide which languages its text is written in.

Follow these rules precisely:
1.  Only choose from these language tags: "en" (English), "am" (Amharic), "or" (Afaan Oromo), "ti" (Tigrinya).
2.  Amharic and Tigrinya both use Ge'ez script. Pick the one whose vocabulary matches; pick both only if both clearly appear.
3.  Order the tags from the most to the least text on the page.
4.  If no text is visible, return an empty list.

Example output format:
{"suggestedLanguages": ["am", "en"]}`

// VertexClient holds the pre-configured generative models for the workspace.
type VertexClient struct {
	SuggesterModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a new client holding the suggester model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	suggesterModel := baseClient.GenerativeModel(modelName)
	suggesterModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SuggesterSystemPrompt)},
	}
	suggesterModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   suggestionSchema(),
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		SuggesterModel: suggesterModel,
		baseClient:     baseClient,
	}, nil
}

func suggestionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"suggestedLanguages": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString, Enum: language.AITags},
			},
		},
		Required: []string{"suggestedLanguages"},
	}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
