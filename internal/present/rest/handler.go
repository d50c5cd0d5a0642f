package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/zeebo/xxh3"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
	"github.com/totegamma/agentdesk/internal/present/rest/presenter"
	"github.com/totegamma/agentdesk/internal/usecase"
)

type Handler struct {
	agent         *usecase.AgentUsecase
	mockProcessor bool
}

func NewHandler(agent *usecase.AgentUsecase, mockProcessor bool) *Handler {
	return &Handler{
		agent:         agent,
		mockProcessor: mockProcessor,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	if e.Validator == nil {
		e.Validator = NewValidator()
	}

	e.GET("/healthz", h.handleHealth)

	for _, prefix := range []string{"", "/api"} {
		g := e.Group(prefix)
		g.POST("/agents", h.handleCreate)
		g.GET("/agents", h.handleList)
		g.GET("/agents/status/:requestId", h.handleStatus)
		g.GET("/agents/:requestId/output", h.handleOutput)
		g.POST("/agents/otp/update", h.handleOtp)
		g.POST("/agents/:requestId", h.handleCallback)
		g.DELETE("/agents/:requestId", h.handleDelete)
	}

	if h.mockProcessor {
		e.POST("/mock-ai-status", h.handleMockProcessor)
	}
}

func requestIDParam(c echo.Context, name string) (string, bool) {
	return agentdesk.NormalizeRequestID(c.Param(name))
}

// pagingParam reads a positive integer query value, falling back to def
// when it is missing, malformed or below 1.
func pagingParam(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (h *Handler) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (h *Handler) handleCreate(c echo.Context) error {
	ctx := c.Request().Context()

	var req agentdesk.CreateAgentRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return presenter.Error(c, "Error creating agent request", err)
	}

	agent, err := h.agent.CreateRequest(ctx, domain.NewAgentInput{
		Type:      req.Type,
		Company:   req.Company,
		Country:   req.Country,
		SourceURL: req.SourceURL,
		Keyword:   req.Keyword,
	})
	if err != nil {
		return presenter.Error(c, "Error creating agent request", err)
	}

	return presenter.Created(c, "Agent request created successfully!", agentdesk.CreateAgentResult{
		RequestID: agent.ID,
		Agent:     agent.ToWire(),
	})
}

func (h *Handler) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	var query agentdesk.ListAgentsQuery
	if err := c.Bind(&query); err != nil {
		return presenter.BadRequestMessage(c, "invalid query parameters")
	}

	page := pagingParam(query.Page, 1)
	limit := pagingParam(query.Limit, usecase.DefaultPageSize)

	result, err := h.agent.ListRequests(ctx, domain.ListFilter{
		Type:    query.Type,
		Country: query.Country,
		Search:  query.Search,
	}, page, limit)
	if err != nil {
		return presenter.Error(c, "Error fetching agents", err)
	}

	agents := make([]agentdesk.Agent, 0, len(result.Agents))
	for _, a := range result.Agents {
		agents = append(agents, a.ToWire())
	}

	return presenter.OK(c, "Agents fetched successfully!", agentdesk.AgentList{
		Agents:       agents,
		CurrentPage:  result.Page,
		TotalPages:   result.TotalPages,
		TotalRecords: result.TotalRecords,
	})
}

func (h *Handler) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := requestIDParam(c, "requestId")
	if !ok {
		return presenter.BadRequestMessage(c, "invalid request id")
	}

	status, err := h.agent.GetStatus(ctx, id)
	if err != nil {
		return presenter.Error(c, "Error fetching agent status", err)
	}

	return presenter.OK(c, "Agent status fetched successfully", agentdesk.AgentStatus{
		RequestID: id,
		Status:    status,
	})
}

// handleOutput serves the record with its output. Outputs can be large
// and never change, so the body carries a content hash ETag.
func (h *Handler) handleOutput(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := requestIDParam(c, "requestId")
	if !ok {
		return presenter.BadRequestMessage(c, "invalid request id")
	}

	view, err := h.agent.GetOutput(ctx, id)
	if err != nil {
		return presenter.Error(c, "Error fetching agent output", err)
	}

	result := agentdesk.AgentOutputResult{
		Status: view.Status,
		Agent:  view.Agent.ToWire(),
	}
	if view.Output != nil {
		output := view.Output.ToWire()
		result.AgentOutput = &output
	}

	body, err := json.Marshal(agentdesk.Response[agentdesk.AgentOutputResult]{
		Success: true,
		Message: "Agent output fetched successfully",
		Data:    result,
	})
	if err != nil {
		return presenter.InternalError(c, err)
	}

	etag := fmt.Sprintf(`"%016x"`, xxh3.Hash(body))
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set("ETag", etag)
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}

	return c.JSONBlob(http.StatusOK, body)
}

func (h *Handler) handleCallback(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := requestIDParam(c, "requestId")
	if !ok {
		return presenter.BadRequestMessage(c, "invalid request id")
	}

	var req agentdesk.CallbackRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}
	data := bytes.TrimSpace(req.FileOutputData)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return presenter.BadRequestMessage(c, "fileOutputData is required")
	}

	res, err := h.agent.AttachOutput(ctx, id, json.RawMessage(data))
	if err != nil {
		return presenter.Error(c, "Error updating agent", err)
	}

	return presenter.OK(c, "Agent updated with AI output successfully", agentdesk.CallbackResult{
		RequestID: res.RequestID,
		OutputID:  res.OutputID,
	})
}

func (h *Handler) handleOtp(c echo.Context) error {
	ctx := c.Request().Context()

	var req agentdesk.OtpUpdateRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return presenter.Error(c, "Error updating otp", err)
	}

	id, _ := agentdesk.NormalizeRequestID(req.RequestID)
	res, err := h.agent.RecordOtp(ctx, id, req.Otp)
	if err != nil {
		return presenter.Error(c, "Error updating otp", err)
	}

	return presenter.OK(c, "OTP updated successfully", agentdesk.OtpUpdateResult{
		RequestID: res.RequestID,
		Otp:       res.OTP,
	})
}

func (h *Handler) handleDelete(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := requestIDParam(c, "requestId")
	if !ok {
		return presenter.BadRequestMessage(c, "invalid request id")
	}

	agent, err := h.agent.SoftDeleteRequest(ctx, id)
	if err != nil {
		return presenter.Error(c, "Error deleting agent", err)
	}

	return presenter.OK(c, "Agent deleted successfully", agent.ToWire())
}

// handleMockProcessor stands in for the external processor in local
// deployments. It accepts every request.
func (h *Handler) handleMockProcessor(c echo.Context) error {
	var req agentdesk.DispatchRequest
	if err := c.Bind(&req); err != nil {
		slog.DebugContext(c.Request().Context(), "mock processor received an unreadable body",
			slog.String("error", err.Error()),
			slog.String("module", "rest"),
		)
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = "mock-request-id"
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"status":  "success",
		"message": "Mock AI response success",
		"data": echo.Map{
			"requestId": requestID,
			"status":    "success",
			"result":    "Mock AI processing completed",
		},
	})
}
