package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOpenAIServer points the package at a test server and restores the real
// endpoint on cleanup.
func newOpenAIServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	orig := openaiAPIURL
	openaiAPIURL = server.URL
	t.Cleanup(func() {
		openaiAPIURL = orig
		server.Close()
	})
}

func TestOpenAIGenerate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"choices": [{"message": {"content": "model reply"}}]}`))
	})

	o := newOpenAI("gpt-4o-mini", "sk-test", Settings{"temperature": 0.2})
	out, err := o.Generate(context.Background(), []Message{User("hello")})
	require.NoError(t, err)
	assert.Equal(t, "model reply", out)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
	assert.Equal(t, 0.2, gotBody["temperature"])
}

func TestOpenAIGenerateAuthFailurePermanent(t *testing.T) {
	newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad key"}}`, http.StatusUnauthorized)
	})

	o := newOpenAI("gpt-4o-mini", "sk-bad", Settings{})
	_, err := o.Generate(context.Background(), []Message{User("hello")})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestOpenAIGenerateRateLimitTransient(t *testing.T) {
	newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	o := newOpenAI("gpt-4o-mini", "sk-test", Settings{})
	_, err := o.Generate(context.Background(), []Message{User("hello")})
	require.Error(t, err)
	assert.False(t, IsPermanent(err), "rate limits must stay retryable")
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	o := newOpenAI("gpt-4o-mini", "sk-test", Settings{})
	_, err := o.Generate(context.Background(), []Message{User("hello")})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
