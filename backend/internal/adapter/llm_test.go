package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"promptcanvas/backend/internal/canvas"
	apperrors "promptcanvas/backend/pkg/errors"
)

// chatServer answers chat completions with content and records the last request
func chatServer(t *testing.T, status int, content string) (*httptest.Server, *map[string]interface{}) {
	t.Helper()
	var last map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&last))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
			return
		}
		resp := map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  last["model"],
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		}
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestLLMAdapter_Enhance(t *testing.T) {
	srv, last := chatServer(t, http.StatusOK, "  a red fox in morning mist  ")
	a := NewLLMAdapter(srv.URL, "", "test-model")

	text, err := a.Enhance(context.Background(), "a fox")
	require.NoError(t, err)
	assert.Equal(t, "a red fox in morning mist", text)

	assert.Equal(t, "test-model", (*last)["model"])
	messages := (*last)["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, EnhanceSystemPrompt, messages[0].(map[string]interface{})["content"])
	assert.Equal(t, "a fox", messages[1].(map[string]interface{})["content"])
}

func TestLLMAdapter_EmptyContent(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, "")
	a := NewLLMAdapter(srv.URL, "", "test-model")

	_, err := a.Enhance(context.Background(), "a fox")
	var empty *apperrors.ErrAIEmptyResult
	assert.ErrorAs(t, err, &empty)
}

func TestLLMAdapter_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	a := NewLLMAdapter(srv.URL, "key", "test-model")
	_, err := a.Enhance(context.Background(), "a fox")

	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeAI))
	assert.False(t, apperrors.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLLMAdapter_ServerErrorRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	a := NewLLMAdapter(srv.URL, "key", "test-model")
	_, err := a.Enhance(context.Background(), "a fox")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load(), "one request per call by default")

	calls.Store(0)
	a.SetMaxAttempts(2)
	_, err = a.Enhance(context.Background(), "a fox")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLLMAdapter_Describe(t *testing.T) {
	srv, last := chatServer(t, http.StatusOK, "a fox in snow")
	a := NewLLMAdapter(srv.URL, "", "text-model")
	a.SetVisionModel("vision-model")

	// 1x1 PNG
	png := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="
	text, err := a.Describe(context.Background(), png)
	require.NoError(t, err)
	assert.Equal(t, "a fox in snow", text)

	assert.Equal(t, "vision-model", (*last)["model"])
	messages := (*last)["messages"].([]interface{})
	parts := messages[1].(map[string]interface{})["content"].([]interface{})
	require.Len(t, parts, 2)
	imageURL := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	assert.Equal(t, "data:image/png;base64,"+png, imageURL["url"])

	_, err = a.Describe(context.Background(), "%%%not-base64")
	assert.Error(t, err)
}

func TestLLMAdapter_Analyze(t *testing.T) {
	content := "```json\n" + `{"segments":[{"label":"subject","text":"a fox"},{"label":"empty","text":"  "},{"label":" style ","text":"watercolor"}]}` + "\n```"
	srv, last := chatServer(t, http.StatusOK, content)
	a := NewLLMAdapter(srv.URL, "", "test-model")

	segments, err := a.Analyze(context.Background(), canvas.KindAtomized, "a fox, watercolor")
	require.NoError(t, err)
	assert.Equal(t, []canvas.Segment{{Label: "subject", Text: "a fox"}, {Label: "style", Text: "watercolor"}}, segments)

	format := (*last)["response_format"].(map[string]interface{})
	assert.Equal(t, "json_object", format["type"])
	messages := (*last)["messages"].([]interface{})
	assert.Equal(t, atomizedSystemPrompt, messages[0].(map[string]interface{})["content"])
}

func TestLLMAdapter_AnalyzeRejectsProse(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, "Sure! Here are the segments: subject, style")
	a := NewLLMAdapter(srv.URL, "", "test-model")

	_, err := a.Analyze(context.Background(), canvas.KindStructured, "a fox")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeAI))
}

func TestAnalysisPrompt(t *testing.T) {
	assert.Equal(t, structuredSystemPrompt, analysisPrompt(canvas.KindStructured))
	assert.Equal(t, atomizedSystemPrompt, analysisPrompt(canvas.KindAtomized))
	assert.Equal(t, segmentedSystemPrompt, analysisPrompt(canvas.KindSegmented))
	assert.Equal(t, structuredSystemPrompt, analysisPrompt("other"))
}

// TestLLMAdapter_Live requires a running LiteLLM instance
func TestLLMAdapter_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	baseURL := os.Getenv("LITELLM_URL")
	if baseURL == "" {
		t.Skip("LITELLM_URL not set")
	}

	a := NewLLMAdapter(baseURL, os.Getenv("OPENROUTER_API_KEY"), os.Getenv("MODEL_ID"))
	text, err := a.Enhance(context.Background(), "a lighthouse at dusk")
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
