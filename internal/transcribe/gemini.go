package transcribe

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider transcribes audio through the Google GenAI API. It backs up
// the Whisper tier.
type GeminiProvider struct {
	client   *genai.Client
	model    string
	language string
}

func NewGeminiProvider(ctx context.Context, apiKey, model, language string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiProvider{client: client, model: model, language: strings.TrimSpace(language)}, nil
}

func (p *GeminiProvider) Name() string { return "gemini-stt" }

func (p *GeminiProvider) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	instruction := "Transcribe this audio verbatim. Return only the spoken words, no commentary."
	if p.language != "" {
		instruction = fmt.Sprintf("%s The speech is in language %q.", instruction, p.language)
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: instruction},
			{InlineData: &genai.Blob{MIMEType: contentType, Data: audio}},
		},
	}}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini transcribe: %w", err)
	}

	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			out.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(out.String()), nil
}
