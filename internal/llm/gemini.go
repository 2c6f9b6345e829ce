// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini calls the Google Gemini API through the official client.
type Gemini struct {
	model    string
	settings Settings
	client   *genai.Client
}

func newGemini(ctx context.Context, model, apiKey string, settings Settings) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, Permanent(fmt.Errorf("creating Gemini client: %w", err))
	}
	return &Gemini{model: model, settings: settings, client: client}, nil
}

// Model returns the model identifier.
func (g *Gemini) Model() string { return g.model }

// Close releases the underlying client connection.
func (g *Gemini) Close() error { return g.client.Close() }

// Generate sends the conversation as a chat session: all but the last
// message become history, the last is the prompt.
func (g *Gemini) Generate(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	model := g.client.GenerativeModel(g.model)
	if t, ok := g.settings.Float("temperature"); ok {
		model.SetTemperature(float32(t))
	}
	if n, ok := g.settings.Int("max_tokens"); ok {
		model.SetMaxOutputTokens(int32(n))
	}

	session := model.StartChat()
	for _, m := range messages[:len(messages)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
	if err != nil {
		return "", fmt.Errorf("calling Gemini API: %w", err)
	}
	return geminiText(resp)
}

// geminiText extracts the concatenated text parts from a Gemini response.
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("Gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini returned no content")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("Gemini returned no text parts")
	}
	return strings.Join(parts, ""), nil
}
