package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"promptcanvas/backend/internal/canvas"
	"promptcanvas/backend/internal/flow"
	"promptcanvas/backend/internal/layout"
	"promptcanvas/backend/internal/retention"
	"promptcanvas/backend/internal/state"
)

type stubEnhancer struct {
	text string
	err  error
}

func (s stubEnhancer) Enhance(ctx context.Context, prompt string) (string, error) {
	return s.text, s.err
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, params flow.ImageParams) (*flow.Image, error) {
	return &flow.Image{ImageData: "aGk=", ModelUsed: params.Model}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, kind canvas.StructuredKind, prompt string) ([]canvas.Segment, error) {
	return []canvas.Segment{{Label: "subject", Text: prompt}}, nil
}

type testEnv struct {
	router *gin.Engine
	flow   *flow.Orchestrator
}

func newTestEnv(t *testing.T, enhancer flow.PromptEnhancer) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	seq := 0
	o := flow.New(flow.Deps{
		Enhancer:  enhancer,
		Generator: stubGenerator{},
		Analyzer:  stubAnalyzer{},
	}, flow.WithIDGenerator(func(kind string) string {
		seq++
		return fmt.Sprintf("%s-%d", kind, seq)
	}))

	mgr := retention.NewManager(retention.Config{Interval: time.Hour})
	mgr.Register(o.Store, retention.Policy{MaxCount: 2})

	return &testEnv{router: NewServer(o, mgr).Router(), flow: o}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/canvas", nil)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "promptcanvas_http_requests_total")
	assert.Contains(t, w.Body.String(), "promptcanvas_canvas_nodes")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodOptions, "/api/canvas", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNodeCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/nodes", gin.H{
		"node":     gin.H{"id": "p2", "type": "prompt", "data": gin.H{"text": "a fox"}},
		"position": gin.H{"x": 600, "y": 40},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	node, ok := env.flow.Store.Node("p2")
	require.True(t, ok)
	assert.Equal(t, layout.Position{X: 600, Y: 40}, node.Position)

	w = env.do(t, http.MethodPatch, "/api/nodes/p2", gin.H{"text": "a red fox"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "a red fox", data["text"])

	w = env.do(t, http.MethodPatch, "/api/nodes/ghost", gin.H{"text": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPatch, "/api/nodes/p2", gin.H{"text": 42})
	assert.Equal(t, http.StatusBadRequest, w.Code, "wrongly typed patch")

	w = env.do(t, http.MethodPost, "/api/nodes", gin.H{"node": gin.H{"type": "video"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/nodes/p2", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, "/api/nodes/p2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEdgesAndConnections(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flow.Store.AddNode(canvas.NewPromptNode("b", ""), nil)

	w := env.do(t, http.MethodPost, "/api/edges", gin.H{"source": canvas.RootNodeID, "sourceHandle": "out", "target": "b", "targetHandle": "in"})
	require.Equal(t, http.StatusCreated, w.Code)
	edgeID := decode(t, w)["id"].(string)
	assert.Equal(t, "xy-edge__promptout-bin", edgeID)

	w = env.do(t, http.MethodGet, "/api/nodes/b/connections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["incomingNodes"], 1)
	assert.Len(t, body["incomingEdges"], 1)
	assert.Nil(t, body["outgoingNodes"])

	w = env.do(t, http.MethodPost, "/api/edges", gin.H{"source": "b"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/edges/"+edgeID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, "/api/edges/"+edgeID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChangesViewportSelection(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/changes/nodes", []gin.H{
		{"type": "position", "id": canvas.RootNodeID, "position": gin.H{"x": 5, "y": 6}},
		{"type": "dimensions", "id": canvas.RootNodeID, "dimensions": gin.H{"width": 200, "height": 90}},
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	root, _ := env.flow.Store.Node(canvas.RootNodeID)
	assert.Equal(t, layout.Position{X: 5, Y: 6}, root.Position)
	d, ok := env.flow.Store.Dimensions(canvas.RootNodeID)
	require.True(t, ok)
	assert.Equal(t, layout.Dimensions{Width: 200, Height: 90}, d)

	w = env.do(t, http.MethodPut, "/api/viewport", gin.H{"x": 10, "y": 20, "zoom": 1.5})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, canvas.Viewport{X: 10, Y: 20, Zoom: 1.5}, env.flow.Store.Viewport())

	w = env.do(t, http.MethodPut, "/api/viewport", gin.H{"zoom": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/selection", gin.H{"ids": []string{canvas.RootNodeID}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{canvas.RootNodeID}, env.flow.Store.Selected())

	env.do(t, http.MethodPut, "/api/selection", gin.H{"ids": []string{}})
	assert.Empty(t, env.flow.Store.Selected())
}

func TestBulkEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flow.Store.AddNode(canvas.NewPromptNode("a", ""), &layout.Position{X: 900, Y: 900})

	w := env.do(t, http.MethodPost, "/api/nodes/duplicate", gin.H{"ids": []string{"a"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["nodes"], 1)
	assert.Equal(t, 3, env.flow.Store.Len())

	w = env.do(t, http.MethodPost, "/api/layout/auto", nil)
	require.Equal(t, http.StatusOK, w.Code)
	root, _ := env.flow.Store.Node(canvas.RootNodeID)
	assert.Equal(t, layout.Position{X: 100, Y: 100}, root.Position)

	w = env.do(t, http.MethodPost, "/api/nodes/arrange", gin.H{"ids": []string{"a"}, "columns": 1})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/nodes/delete", gin.H{"ids": []string{"a", "ghost"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["removed"])
}

func TestActionEndpoints(t *testing.T) {
	env := newTestEnv(t, stubEnhancer{text: "a red fox at dawn"})

	w := env.do(t, http.MethodPost, "/api/actions/enhance", gin.H{"sourceId": canvas.RootNodeID, "prompt": "a fox"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	node := decode(t, w)["node"].(map[string]interface{})
	assert.Equal(t, "enhanced-1", node["id"])

	w = env.do(t, http.MethodGet, "/api/operations/enhanced-1", nil)
	assert.Equal(t, string(state.StatusSuccess), decode(t, w)["status"])

	w = env.do(t, http.MethodGet, "/api/operations/never", nil)
	assert.Equal(t, string(state.StatusIdle), decode(t, w)["status"])

	w = env.do(t, http.MethodPost, "/api/actions/generate", gin.H{"sourceId": canvas.RootNodeID, "prompt": "a fox", "model": "flux-dev", "aspectRatio": "16:9"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["node"].(map[string]interface{})["data"].(map[string]interface{})
	assert.Equal(t, "flux-dev", data["modelUsed"])
	assert.Equal(t, "16:9", data["aspectRatio"])

	w = env.do(t, http.MethodPost, "/api/actions/segment", gin.H{"sourceId": canvas.RootNodeID, "prompt": "a fox"})
	require.Equal(t, http.StatusOK, w.Code)
	segID := decode(t, w)["node"].(map[string]interface{})["id"].(string)

	w = env.do(t, http.MethodPost, "/api/actions/duplicate", gin.H{"sourceId": segID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode(t, w)["node"])

	w = env.do(t, http.MethodPost, "/api/actions/duplicate", gin.H{"sourceId": canvas.RootNodeID, "data": gin.H{"kind": "structured"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["node"], "empty data duplicates nothing")
}

func TestActionErrorMapping(t *testing.T) {
	env := newTestEnv(t, stubEnhancer{err: errors.New("upstream 500")})

	tests := []struct {
		name string
		path string
		body gin.H
		want int
	}{
		{"missing source id", "/api/actions/enhance", gin.H{"prompt": "a fox"}, http.StatusBadRequest},
		{"blank prompt", "/api/actions/enhance", gin.H{"sourceId": canvas.RootNodeID, "prompt": " "}, http.StatusBadRequest},
		{"unknown source", "/api/actions/enhance", gin.H{"sourceId": "ghost", "prompt": "a fox"}, http.StatusNotFound},
		{"collaborator failure", "/api/actions/enhance", gin.H{"sourceId": canvas.RootNodeID, "prompt": "a fox"}, http.StatusBadGateway},
		{"no describer configured", "/api/actions/describe", gin.H{"sourceId": canvas.RootNodeID, "image": "aGk="}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	_, ok := env.flow.Store.Node("enhanced-1")
	assert.True(t, ok, "failed node is left on the canvas")
}

func TestCleanupAndReset(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flow.Store.AddNode(canvas.NewPromptNode("a", ""), nil)
	env.flow.Store.AddNode(canvas.NewPromptNode("b", ""), nil)

	w := env.do(t, http.MethodPost, "/api/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["removed"])
	assert.Equal(t, 2, env.flow.Store.Len())

	env.flow.Prompts.Put("a", state.PromptEntry{Text: "x"})
	w = env.do(t, http.MethodDelete, "/api/canvas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["nodes"], 1)
	assert.Equal(t, 0, env.flow.Prompts.Len())
}

func TestModelsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "gpt-image-1", body["default"])
	assert.Len(t, body["models"], 4)
}
