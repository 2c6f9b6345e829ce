// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// openaiAPIURL is the chat completions endpoint. Package-level var for test
// substitution.
var openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// OpenAI calls the OpenAI chat completions API.
type OpenAI struct {
	model    string
	apiKey   string
	settings Settings
	client   *http.Client
}

func newOpenAI(model, apiKey string, settings Settings) *OpenAI {
	return &OpenAI{
		model:    model,
		apiKey:   apiKey,
		settings: settings,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Model returns the model identifier.
func (o *OpenAI) Model() string { return o.model }

// openaiResponse is the subset of the chat completions response we read.
type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends one chat completion request. Auth failures and unknown
// models are permanent; rate limits, server errors, and network failures
// surface as plain (transient) errors for the caller's retry policy.
func (o *OpenAI) Generate(ctx context.Context, messages []Message) (string, error) {
	body := map[string]any{
		"model":    o.model,
		"messages": messages,
	}
	for k, v := range o.settings {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiAPIURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return "", Permanent(err)
		}
		return "", err
	}

	var oResp openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return "", fmt.Errorf("decoding OpenAI response: %w", err)
	}
	if oResp.Error != nil {
		return "", fmt.Errorf("OpenAI API error: %s", oResp.Error.Message)
	}
	if len(oResp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}
	return oResp.Choices[0].Message.Content, nil
}
