package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/llm/providers"
	"github.com/BaSui01/captain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConvertToClaudeMessages(t *testing.T) {
	msgs := []llm.Message{
		types.NewSystemMessage("first"),
		types.NewUserMessage("hi"),
		types.NewSystemMessage("second"),
		types.NewUserMessage("[Screenshot]").WithImages([]types.ImageContent{{Type: "base64", Data: "QUJD"}}),
		types.NewAssistantMessage("ok"),
	}

	system, out := convertToClaudeMessages(msgs)
	assert.Equal(t, "first\n\nsecond", system)
	require.Len(t, out, 3)

	img := out[1]
	assert.Equal(t, "user", img.Role)
	require.Len(t, img.Content, 2)
	assert.Equal(t, "image", img.Content[0].Type)
	require.NotNil(t, img.Content[0].Source)
	assert.Equal(t, "base64", img.Content[0].Source.Type)
	assert.Equal(t, "image/jpeg", img.Content[0].Source.MediaType)
	assert.Equal(t, "QUJD", img.Content[0].Source.Data)
	assert.Equal(t, "text", img.Content[1].Type)
	assert.Equal(t, "assistant", out[2].Role)
}

func TestClaudeProvider_Completion(t *testing.T) {
	var got claudeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(claudeResponse{
			ID:         "msg_1",
			Model:      defaultModel,
			StopReason: "end_turn",
			Content: []claudeContent{
				{Type: "text", Text: "```json\n"},
				{Type: "text", Text: "{\"autocomplete\": \"x\"}\n```"},
			},
			Usage: &claudeUsage{InputTokens: 10, OutputTokens: 4},
		})
	}))
	t.Cleanup(server.Close)

	p := NewClaudeProvider(providers.ClaudeConfig{BaseProviderConfig: providers.BaseProviderConfig{
		APIKey:  "secret",
		BaseURL: server.URL,
	}}, zap.NewNop())

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{types.NewSystemMessage("sys"), types.NewUserMessage("go")},
	})
	require.NoError(t, err)

	assert.Equal(t, defaultModel, got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Messages, 1)

	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
	body, err := llm.ExtractFencedBlock(resp.Choices[0].Message.Content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"autocomplete": "x"}`, body)
}

func TestClaudeProvider_CompletionErrors(t *testing.T) {
	t.Run("overloaded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(529)
			fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
		}))
		t.Cleanup(server.Close)

		p := NewClaudeProvider(providers.ClaudeConfig{BaseProviderConfig: providers.BaseProviderConfig{
			APIKey: "k", BaseURL: server.URL,
		}}, nil)
		_, err := p.Completion(context.Background(), &llm.ChatRequest{})
		var llmErr *llm.Error
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, llm.ErrModelOverloaded, llmErr.Code)
		assert.True(t, llmErr.Retryable)
		assert.Equal(t, "Overloaded (type: overloaded_error)", llmErr.Message)
	})

	t.Run("missing key", func(t *testing.T) {
		p := NewClaudeProvider(providers.ClaudeConfig{}, nil)
		_, err := p.Completion(context.Background(), &llm.ChatRequest{})
		var llmErr *llm.Error
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, llm.ErrProviderUnavailable, llmErr.Code)
	})
}
