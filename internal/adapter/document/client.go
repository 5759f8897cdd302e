package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Entity is one labelled span of an analysed document.
type Entity struct {
	Type        string   `json:"type"`
	MentionText string   `json:"mentionText"`
	Page        int      `json:"page"`
	Properties  []Entity `json:"properties,omitempty"`
}

// Property returns the mention text of the first child of the given type.
func (e Entity) Property(kind string) string {
	for _, p := range e.Properties {
		if p.Type == kind {
			return strings.TrimSpace(p.MentionText)
		}
	}
	return ""
}

// Document is the entity list produced by a document-analysis service.
type Document struct {
	Entities []Entity `json:"entities"`
}

// Client submits a PDF to the processor at endpoint.
type Client interface {
	Process(ctx context.Context, endpoint string, pdf []byte) (*Document, error)
}

const extractionPrompt = `You are a document processor for university course timetables.
Return JSON of the form {"entities":[...]} where each entity has "type", "mentionText", "page" (1-based)
and, for type "lectures", a "properties" list of entities typed group_name, course_code, course_name,
hours, credits, capacity, professor, schedule_raw and classroom.
Emit a "department" or "major" entity wherever the document names one, on the page it appears.
schedule_raw keeps the printed form, for example "월1,2,3/화4" or "사".
Processor: %s`

// GenAIClient extracts entities with a Gemini model.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates a client for the Gemini API.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIClient{client: client, model: model}, nil
}

// Process implements Client. An endpoint naming a model ("models/..." or "gemini-...") overrides the
// default model; any other endpoint only identifies the processor in the prompt.
func (c *GenAIClient) Process(ctx context.Context, endpoint string, pdf []byte) (*Document, error) {
	model := c.model
	if strings.HasPrefix(endpoint, "models/") || strings.HasPrefix(endpoint, "gemini") {
		model = endpoint
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(pdf, "application/pdf"),
		genai.NewPartFromText(fmt.Sprintf(extractionPrompt, endpoint)),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return decodeDocument(resp.Text())
}

func decodeDocument(raw string) (*Document, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	return &doc, nil
}
