// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm implements the LLM transport collaborator: a capability
// interface over chat-style model APIs with backends selected from the model
// identifier at startup. See docs/ARCHITECTURE § Transports.
package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User builds a user-role message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant-role message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Settings holds scalar model options forwarded verbatim to the backend.
type Settings map[string]any

// ParseSettings parses a semicolon-delimited key=value list such as
// "temperature=0.2;max_tokens=4096". Values are coerced to bool, int, or
// float64 when they parse as one; anything else stays a string. A pair
// without an equals sign is an error.
func ParseSettings(s string) (Settings, error) {
	settings := Settings{}
	if strings.TrimSpace(s) == "" {
		return settings, nil
	}

	for _, pair := range strings.Split(s, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid model setting %q: want key=value", pair)
		}

		switch {
		case strings.EqualFold(value, "true"):
			settings[key] = true
		case strings.EqualFold(value, "false"):
			settings[key] = false
		default:
			if n, err := strconv.Atoi(value); err == nil {
				settings[key] = n
			} else if f, err := strconv.ParseFloat(value, 64); err == nil {
				settings[key] = f
			} else {
				settings[key] = value
			}
		}
	}
	return settings, nil
}

// Float returns the named setting as a float64, accepting int values.
func (s Settings) Float(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Int returns the named setting as an int.
func (s Settings) Int(key string) (int, bool) {
	v, ok := s[key].(int)
	return v, ok
}

// Transport sends one prompt exchange to a model and returns the raw text
// response. Implementations do not retry; failures surface as a single error
// and the caller decides whether to re-attempt.
type Transport interface {
	// Generate sends the conversation and returns the model's reply text.
	Generate(ctx context.Context, messages []Message) (string, error)

	// Model returns the model identifier this transport was built for.
	Model() string
}

// Credential keys the transports read from the environment map.
const (
	KeyOpenAI = "OPENAI_API_KEY"
	KeyGemini = "GEMINI_API_KEY"
	KeyOllama = "OLLAMA_HOST"
)

// New selects a transport backend from the model identifier:
//
//	gpt*           OpenAI chat completions API
//	gemini*        Google Gemini (generative-ai-go)
//	ollama/<name>  local Ollama chat API
//	dummy          canned offline responses
//
// An unrecognized identifier or a missing credential is a permanent error;
// no model call can ever succeed with this configuration.
func New(ctx context.Context, model string, settings Settings, env map[string]string) (Transport, error) {
	switch {
	case model == "dummy" || strings.HasPrefix(model, "dummy-"):
		return &Dummy{model: model}, nil

	case strings.HasPrefix(model, "gpt"):
		key := env[KeyOpenAI]
		if key == "" {
			return nil, Permanent(fmt.Errorf("model %q requires %s", model, KeyOpenAI))
		}
		return newOpenAI(model, key, settings), nil

	case strings.HasPrefix(model, "gemini"):
		key := env[KeyGemini]
		if key == "" {
			return nil, Permanent(fmt.Errorf("model %q requires %s", model, KeyGemini))
		}
		return newGemini(ctx, model, key, settings)

	case strings.HasPrefix(model, "ollama/"):
		name := strings.TrimPrefix(model, "ollama/")
		if name == "" {
			return nil, Permanent(fmt.Errorf("empty ollama model in %q", model))
		}
		return newOllama(name, env[KeyOllama], settings), nil

	default:
		return nil, Permanent(fmt.Errorf("unrecognized model identifier %q", model))
	}
}
