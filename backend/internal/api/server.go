// Package api exposes the canvas, the AI actions and retention over HTTP for the
// canvas renderer.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"promptcanvas/backend/internal/canvas"
	"promptcanvas/backend/internal/flow"
	"promptcanvas/backend/internal/layout"
	"promptcanvas/backend/internal/retention"
	apperrors "promptcanvas/backend/pkg/errors"
	"promptcanvas/backend/pkg/logger"
	"go.uber.org/zap"
)

// Server holds what the handlers need
type Server struct {
	flow      *flow.Orchestrator
	retention *retention.Manager
	logger    *zap.Logger
}

// NewServer creates a Server. With a nil retention manager /api/cleanup reports
// an empty sweep.
func NewServer(o *flow.Orchestrator, r *retention.Manager) *Server {
	return &Server{
		flow:      o,
		retention: r,
		logger:    logger.Named("api"),
	}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(s.logger))
	router.Use(metricsMiddleware())
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/canvas", s.getCanvas)
		api.DELETE("/canvas", s.resetCanvas)

		api.POST("/nodes", s.addNode)
		api.PATCH("/nodes/:id", s.updateNode)
		api.DELETE("/nodes/:id", s.removeNode)
		api.GET("/nodes/:id/connections", s.connections)
		api.POST("/nodes/duplicate", s.duplicateNodes)
		api.POST("/nodes/delete", s.deleteNodes)
		api.POST("/nodes/arrange", s.arrangeNodes)
		api.POST("/layout/auto", s.autoLayout)

		api.POST("/edges", s.addEdge)
		api.DELETE("/edges/:id", s.removeEdge)

		api.POST("/changes/nodes", s.nodeChanges)
		api.POST("/changes/edges", s.edgeChanges)
		api.PUT("/viewport", s.setViewport)
		api.PUT("/selection", s.setSelection)

		actions := api.Group("/actions")
		actions.POST("/enhance", s.action(layout.ActionEnhance))
		actions.POST("/generate", s.action(layout.ActionGenerate))
		actions.POST("/describe", s.action(layout.ActionDescribe))
		actions.POST("/structure", s.action(layout.ActionFormat))
		actions.POST("/atomize", s.action(layout.ActionAtomize))
		actions.POST("/segment", s.action(layout.ActionSegment))
		actions.POST("/duplicate", s.duplicateStructured)

		api.GET("/operations/:id", s.operationStatus)
		api.GET("/models", s.listModels)
		api.POST("/cleanup", s.cleanup)
	}

	return router
}

func (s *Server) store() *canvas.Store { return s.flow.Store }

func (s *Server) getCanvas(c *gin.Context) {
	c.JSON(http.StatusOK, s.store().Snapshot())
}

func (s *Server) resetCanvas(c *gin.Context) {
	s.store().Reset()
	s.flow.Prompts.Clear()
	s.flow.Images.Clear()
	c.JSON(http.StatusOK, s.store().Snapshot())
}

type addNodeRequest struct {
	Node     canvas.Node      `json:"node"`
	Position *layout.Position `json:"position,omitempty"`
}

func (s *Server) addNode(c *gin.Context) {
	var req addNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Node.ID == "" {
		req.Node.ID = string(req.Node.Type) + "-" + uuid.NewString()
	}
	if req.Position == nil && (req.Node.Position != layout.Position{}) {
		p := req.Node.Position
		req.Position = &p
	}

	node := s.store().AddNode(req.Node, req.Position)
	c.JSON(http.StatusCreated, node)
}

func (s *Server) updateNode(c *gin.Context) {
	id := c.Param("id")
	var patch canvas.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := s.store().Node(id); !ok {
		s.notFound(c, id)
		return
	}
	if !s.store().UpdateNode(id, patch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patch does not fit node data"})
		return
	}
	node, _ := s.store().Node(id)
	c.JSON(http.StatusOK, node)
}

func (s *Server) removeNode(c *gin.Context) {
	id := c.Param("id")
	if !s.store().RemoveNode(id) {
		s.notFound(c, id)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) connections(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.store().Node(id); !ok {
		s.notFound(c, id)
		return
	}
	inNodes, outNodes := s.store().ConnectedNodes(id)
	inEdges, outEdges := s.store().ConnectedEdges(id)
	c.JSON(http.StatusOK, gin.H{
		"incomingNodes": inNodes,
		"outgoingNodes": outNodes,
		"incomingEdges": inEdges,
		"outgoingEdges": outEdges,
	})
}

type idsRequest struct {
	IDs     []string `json:"ids" binding:"required"`
	Columns int      `json:"columns,omitempty"`
}

func (s *Server) duplicateNodes(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": s.store().DuplicateNodes(req.IDs, nil)})
}

func (s *Server) deleteNodes(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": s.store().DeleteNodes(req.IDs)})
}

func (s *Server) arrangeNodes(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.store().ArrangeGrid(req.IDs, req.Columns)
	c.JSON(http.StatusOK, s.store().Snapshot())
}

func (s *Server) autoLayout(c *gin.Context) {
	var req struct {
		Columns int `json:"columns"`
	}
	// an empty body means the default column count
	_ = c.ShouldBindJSON(&req)
	s.store().AutoLayout(req.Columns)
	c.JSON(http.StatusOK, s.store().Snapshot())
}

func (s *Server) addEdge(c *gin.Context) {
	var edge canvas.Edge
	if err := c.ShouldBindJSON(&edge); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if edge.Source == "" || edge.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source and target are required"})
		return
	}
	c.JSON(http.StatusCreated, s.store().AddEdge(edge))
}

func (s *Server) removeEdge(c *gin.Context) {
	if !s.store().RemoveEdge(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "edge not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) nodeChanges(c *gin.Context) {
	var changes []canvas.NodeChange
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.store().ApplyNodeChanges(changes)
	c.Status(http.StatusNoContent)
}

func (s *Server) edgeChanges(c *gin.Context) {
	var changes []canvas.EdgeChange
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.store().ApplyEdgeChanges(changes)
	c.Status(http.StatusNoContent)
}

func (s *Server) setViewport(c *gin.Context) {
	var v canvas.Viewport
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if v.Zoom <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoom must be positive"})
		return
	}
	s.store().SetViewport(v)
	c.JSON(http.StatusOK, v)
}

func (s *Server) setSelection(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.IDs) == 0 {
		s.store().ClearSelection()
	} else {
		s.store().Select(req.IDs)
	}
	c.JSON(http.StatusOK, gin.H{"selected": s.store().Selected()})
}

type actionRequest struct {
	SourceID    string `json:"sourceId" binding:"required"`
	Prompt      string `json:"prompt"`
	Image       string `json:"image"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspectRatio"`
	InputImage  string `json:"inputImage"`
}

// action returns the handler for one orchestrated AI action
func (s *Server) action(kind layout.ActionType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		var (
			node *canvas.Node
			err  error
		)
		switch kind {
		case layout.ActionEnhance:
			node, err = s.flow.EnhancePrompt(ctx, req.SourceID, req.Prompt)
		case layout.ActionGenerate:
			node, err = s.flow.GenerateImage(ctx, req.SourceID, flow.ImageRequest{
				Prompt:      req.Prompt,
				Model:       req.Model,
				AspectRatio: req.AspectRatio,
				InputImage:  req.InputImage,
			})
		case layout.ActionDescribe:
			node, err = s.flow.DescribeImage(ctx, req.SourceID, req.Image)
		case layout.ActionFormat:
			node, err = s.flow.StructurePrompt(ctx, req.SourceID, req.Prompt)
		case layout.ActionAtomize:
			node, err = s.flow.AtomizePrompt(ctx, req.SourceID, req.Prompt)
		case layout.ActionSegment:
			node, err = s.flow.SegmentPrompt(ctx, req.SourceID, req.Prompt)
		}
		s.respondAction(c, node, err)
	}
}

func (s *Server) duplicateStructured(c *gin.Context) {
	var req struct {
		SourceID string                 `json:"sourceId" binding:"required"`
		Data     *canvas.StructuredData `json:"data,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		node *canvas.Node
		err  error
	)
	if req.Data == nil {
		node, err = s.flow.DuplicateFromCache(req.SourceID)
	} else {
		node, err = s.flow.DuplicateStructured(req.SourceID, *req.Data)
	}
	s.respondAction(c, node, err)
}

// respondAction maps orchestrator outcomes to status codes. A failed AI call still
// left an error node on the canvas, so the client should refresh either way.
func (s *Server) respondAction(c *gin.Context, node *canvas.Node, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"node": node})
	case errors.Is(err, flow.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, flow.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperrors.IsErrorType(err, apperrors.ErrorTypeContext):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     err.Error(),
			"retryable": apperrors.IsRetryable(err),
		})
	}
}

func (s *Server) operationStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.flow.Status(c.Param("id")))
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default": s.flow.Registry.DefaultModel().ID,
		"models":  s.flow.Registry.Models(),
	})
}

func (s *Server) cleanup(c *gin.Context) {
	if s.retention == nil {
		c.JSON(http.StatusOK, retention.Report{})
		return
	}
	c.JSON(http.StatusOK, s.retention.ForceCleanup())
}

func (s *Server) notFound(c *gin.Context, id string) {
	err := apperrors.NewCanvasNodeNotFound(id)
	c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
}
