// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaHost = "http://localhost:11434"

// Ollama calls a local Ollama server's chat API.
type Ollama struct {
	host     string
	model    string
	settings Settings
	client   *http.Client
}

func newOllama(model, host string, settings Settings) *Ollama {
	if host == "" {
		host = defaultOllamaHost
	}
	return &Ollama{
		host:     strings.TrimRight(host, "/"),
		model:    model,
		settings: settings,
		client:   &http.Client{Timeout: 300 * time.Second},
	}
}

// Model returns the model identifier, including the ollama/ prefix.
func (o *Ollama) Model() string { return "ollama/" + o.model }

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Generate sends one non-streaming chat request. A 404 means the model is
// not pulled locally, which no retry can fix.
func (o *Ollama) Generate(ctx context.Context, messages []Message) (string, error) {
	body := map[string]any{
		"model":    o.model,
		"messages": messages,
		"stream":   false,
	}
	if len(o.settings) > 0 {
		body["options"] = o.settings
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Ollama at %s: %w", o.host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("Ollama returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
		if resp.StatusCode == http.StatusNotFound {
			return "", Permanent(err)
		}
		return "", err
	}

	var oResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return "", fmt.Errorf("decoding Ollama response: %w", err)
	}
	if oResp.Error != "" {
		return "", fmt.Errorf("Ollama error: %s", oResp.Error)
	}
	return oResp.Message.Content, nil
}
