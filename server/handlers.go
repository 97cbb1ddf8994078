package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/BDNK1/nodeflow/history"
	"github.com/BDNK1/nodeflow/runtime"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func sendSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func sendError(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}

func (s *Server) handleHealth(c *gin.Context) {
	sendSuccess(c, http.StatusOK, gin.H{"status": "healthy", "nodeTypes": len(s.registry.Types())})
}

// handleRunPosted runs the flow document in the request body.
func (s *Server) handleRunPosted(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		sendError(c, http.StatusBadRequest, "Wrong request body format")
		return
	}
	flow, err := runtime.ParseFlow(body)
	if err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}
	s.run(c, flow, requestVariables(c, nil))
}

// handleRunStored runs a flow loaded at startup. The optional JSON body is
// exposed to the flow as request.body.
func (s *Server) handleRunStored(c *gin.Context) {
	flow, ok := s.flows[c.Param("id")]
	if !ok {
		sendError(c, http.StatusNotFound, fmt.Sprintf("flow %q not found", c.Param("id")))
		return
	}

	var input any
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
			sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
			return
		}
	}
	s.run(c, flow, requestVariables(c, input))
}

// requestVariables is the request variable seeded into each run.
func requestVariables(c *gin.Context, body any) map[string]any {
	query := map[string]any{}
	for k, v := range c.Request.URL.Query() {
		if k != "async" && len(v) > 0 {
			query[k] = v[0]
		}
	}
	headers := map[string]any{}
	for k, v := range c.Request.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return map[string]any{"body": body, "query": query, "headers": headers}
}

func (s *Server) run(c *gin.Context, flow *runtime.Flow, request map[string]any) {
	if err := flow.Validate(); err != nil {
		sendError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id := uuid.New().String()
	e := s.newExecutor(flow, id)
	e.Variables().Set("request", request)

	running := runtime.ExecutionRecord{
		ID:        id,
		FlowID:    flow.ID,
		FlowName:  flow.Name,
		Status:    runtime.ExecutionRunning,
		StartedAt: time.Now(),
	}
	if err := s.history.Save(c.Request.Context(), running); err != nil {
		sendError(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.track(id, e)

	if c.Query("async") == "true" {
		go s.execute(s.ctx, flow, id, e)
		sendSuccess(c, http.StatusAccepted, gin.H{"executionId": id, "status": runtime.ExecutionRunning})
		return
	}

	rec := s.execute(c.Request.Context(), flow, id, e)
	if rec.Status == runtime.ExecutionError {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Data: rec, Error: rec.Error})
		return
	}
	sendSuccess(c, http.StatusOK, rec)
}

func (s *Server) newExecutor(flow *runtime.Flow, id string) *runtime.Executor {
	opts := []runtime.Option{
		runtime.WithRegistry(s.registry),
		runtime.WithConfig(s.cfg),
		runtime.WithAPI(s.api),
		runtime.WithApprover(s.approvals.For(id)),
		runtime.WithExecutionID(id),
		runtime.WithLogger(s.l),
	}
	if s.settings != nil {
		opts = append(opts, runtime.WithSettings(s.settings))
	}
	opts = append(opts, s.executorOpts...)

	sink := runtime.SlogSink(s.l.With("execution", id, "flow", flow.ID))
	return runtime.NewExecutor(flow.Nodes, flow.Edges, nil, sink, opts...)
}

func (s *Server) track(id string, e *runtime.Executor) {
	s.mu.Lock()
	s.running[id] = e
	s.mu.Unlock()
	s.wg.Add(1)
}

// execute runs a tracked executor to completion and records the outcome.
func (s *Server) execute(ctx context.Context, flow *runtime.Flow, id string, e *runtime.Executor) runtime.ExecutionRecord {
	defer s.wg.Done()

	rec, err := e.Run(ctx, flow.ID, flow.Name)
	if err != nil {
		s.l.WarnContext(ctx, fmt.Sprintf("Execution %s failed", id), "flow", flow.ID, "error", err)
	}

	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
	s.approvals.Cancel(id)

	// Record even when the request that started the run is gone.
	if err := s.history.Save(context.WithoutCancel(ctx), rec); err != nil {
		s.l.ErrorContext(ctx, "Failed to record execution", "execution", id, "error", err)
	}
	return rec
}

func (s *Server) runningExecutor(id string) (*runtime.Executor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.running[id]
	return e, ok
}

func (s *Server) handleListExecutions(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err.Error())
		return
	}
	sendSuccess(c, http.StatusOK, records)
}

// handleGetExecution returns the stored record, with live node results
// while the execution is still running.
func (s *Server) handleGetExecution(c *gin.Context) {
	id := c.Param("id")
	rec, err := s.history.Get(c.Request.Context(), id)
	if err != nil {
		s.sendLookupError(c, err, id)
		return
	}
	if e, ok := s.runningExecutor(id); ok {
		rec.Results = e.Results()
	}
	sendSuccess(c, http.StatusOK, rec)
}

func (s *Server) handleDeleteExecution(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.runningExecutor(id); ok {
		sendError(c, http.StatusConflict, "execution is still running")
		return
	}
	if err := s.history.Delete(c.Request.Context(), id); err != nil {
		s.sendLookupError(c, err, id)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAbortExecution(c *gin.Context) {
	id := c.Param("id")
	e, ok := s.runningExecutor(id)
	if !ok {
		sendError(c, http.StatusNotFound, fmt.Sprintf("execution %q is not running", id))
		return
	}
	e.Abort()
	s.approvals.Cancel(id)
	sendSuccess(c, http.StatusAccepted, gin.H{"executionId": id, "aborted": true})
}

func (s *Server) handleListApprovals(c *gin.Context) {
	sendSuccess(c, http.StatusOK, s.approvals.Pending())
}

type approvalDecision struct {
	Approved *bool `json:"approved" binding:"required"`
}

func (s *Server) handleResolveApproval(c *gin.Context) {
	var req approvalDecision
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if err := s.approvals.Resolve(c.Param("id"), *req.Approved); err != nil {
		sendError(c, http.StatusNotFound, err.Error())
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{"id": c.Param("id"), "approved": *req.Approved})
}

func (s *Server) sendLookupError(c *gin.Context, err error, id string) {
	if errors.Is(err, history.ErrNotFound) {
		sendError(c, http.StatusNotFound, fmt.Sprintf("execution %q not found", id))
		return
	}
	sendError(c, http.StatusInternalServerError, err.Error())
}
