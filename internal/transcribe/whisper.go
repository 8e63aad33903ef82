package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// WhisperProvider transcribes audio through the OpenAI transcription API.
type WhisperProvider struct {
	client   openai.Client
	model    string
	language string
}

func NewWhisperProvider(apiKey, model, language string) (*WhisperProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &WhisperProvider{
		client:   openai.NewClient(option.WithAPIKey(apiKey)),
		model:    model,
		language: strings.TrimSpace(language),
	}, nil
}

func (p *WhisperProvider) Name() string { return "openai-whisper" }

func (p *WhisperProvider) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), fileNameFor(contentType), contentType),
		Model: openai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = openai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("whisper transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func fileNameFor(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav":
		return "answer.wav"
	case "audio/mpeg", "audio/mp3":
		return "answer.mp3"
	case "audio/ogg":
		return "answer.ogg"
	case "audio/mp4", "audio/m4a":
		return "answer.m4a"
	default:
		return "answer.webm"
	}
}
