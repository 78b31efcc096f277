package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Client interface using Google Gemini.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini Client.
func NewGemini(apiKey string, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Extract sends the image and extraction prompt in one generation call and
// returns the raw response text.
func (g *Gemini) Extract(ctx context.Context, req Request) (string, error) {
	pngData, err := normalizeImage(req.Image, req.ContentType)
	if err != nil {
		return "", err
	}

	modelName := req.Model
	if modelName == "" {
		modelName = g.model
	}
	model := g.client.GenerativeModel(modelName)

	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(buildPrompt(req.Headers, req.Instructions)),
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", g.mapError(err)
	}
	return candidateText(resp)
}

// candidateText gathers the text parts of the first candidate. Safety-blocked
// candidates arrive with nil Content.
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return strings.TrimSpace(responseText.String()), nil
}

// Probe reports the configured model. The hosted API has no cheap tags
// endpoint like Ollama's; a dead network or bad key surfaces on Extract
// with the same error taxonomy.
func (g *Gemini) Probe(ctx context.Context) Availability {
	return Availability{
		Status: StatusOnline,
		Models: []ModelInfo{{Name: g.model}},
	}
}

// Close closes the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "not found") || strings.Contains(msg, "NOT_FOUND") {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return fmt.Errorf("generating content: %w", err)
}
