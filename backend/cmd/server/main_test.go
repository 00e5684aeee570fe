package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"promptcanvas/backend/internal/canvas"
	"promptcanvas/backend/internal/state"
	"promptcanvas/backend/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                      "0",
		Env:                       "test",
		LiteLLMURL:                "http://127.0.0.1:1",
		ModelID:                   "test-model",
		VisionModelID:             "test-vision",
		ImageProvider:             config.ImageProviderOpenAI,
		OpenAIBaseURL:             "http://127.0.0.1:1",
		OperationTimeout:          time.Second,
		CleanupInterval:           time.Minute,
		AggressiveCleanupInterval: time.Second,
		NodeMaxAge:                time.Hour,
		ImageMaxAge:               time.Hour,
		PromptMaxAge:              time.Hour,
		MaxNodes:                  10,
		MaxImages:                 10,
		MaxPrompts:                10,
	}
}

func TestNewApp_WiresRoutesAndRetention(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := newApp(testConfig())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	a.server.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])

	report := a.retention.Sweep()
	var targets []string
	for _, r := range report.Results {
		targets = append(targets, r.Target)
	}
	assert.Equal(t, []string{"nodes", "images", "prompts", "operations"}, targets)
}

func TestNewApp_PressureCountsNodesImagesAndPrompts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxNodes, cfg.MaxImages, cfg.MaxPrompts = 100, 50, 100
	a, err := newApp(cfg)
	require.NoError(t, err)

	// 100 nodes with the root, 50 images and 60 prompts: 210 of 250
	for i := 1; i < 100; i++ {
		id := fmt.Sprintf("prompt-%d", i)
		a.flow.Store.AddNode(canvas.NewPromptNode(id, ""), nil)
		a.flow.Operations.Succeed(id)
	}
	for i := 0; i < 50; i++ {
		a.flow.Images.Put(fmt.Sprintf("image-%d", i), state.ImageEntry{ImageData: "aGk="})
	}
	for i := 0; i < 60; i++ {
		a.flow.Prompts.Put(fmt.Sprintf("enhanced-%d", i), state.PromptEntry{Text: "x"})
	}

	report := a.retention.ForceCleanup()
	assert.InDelta(t, 0.84, report.Pressure, 1e-9)
	assert.True(t, report.Aggressive)
	assert.Equal(t, cfg.AggressiveCleanupInterval, a.retention.Interval())
}

func TestNewApp_RegistryFileErrors(t *testing.T) {
	cfg := testConfig()
	cfg.ModelRegistryFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := newApp(cfg)
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := newApp(testConfig())
	require.NoError(t, err)
	a.server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
