package ai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/parley/backend/internal/config"
	"github.com/zhouzirui/parley/backend/internal/model/chat"
)

func TestOpenAIConverserSendsInstructionAndHistory(t *testing.T) {
	var got openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, sonic.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hola."},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`))
	}))
	defer server.Close()

	converser, err := NewOpenAIConverser(config.AIConfig{
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: server.URL + "/v1",
		OpenAIModel:   "gpt-test",
	})
	require.NoError(t, err)

	reply, err := converser.Converse(context.Background(),
		[]chat.Turn{{Role: chat.RoleUser, Content: "hi"}, {Role: chat.RoleAssistant, Content: "hey"}},
		"say hola", "Always respond in Spanish.")
	require.NoError(t, err)
	assert.Equal(t, "Hola.", reply)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[2].Role)
	assert.Equal(t, "say hola", got.Messages[3].Content)
}

func TestOpenAIConverserNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer server.Close()

	converser, err := NewOpenAIConverser(config.AIConfig{OpenAIAPIKey: "sk-test", OpenAIBaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = converser.Converse(context.Background(), nil, "hi", "")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestNewOpenAIConverserRequiresKey(t *testing.T) {
	_, err := NewOpenAIConverser(config.AIConfig{})
	assert.Error(t, err)
}
