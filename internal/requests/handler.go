package requests

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commune-portal/admin-portal-backend/internal/identity"
	"commune-portal/admin-portal-backend/pkg/workflows"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	reqs := rg.Group("/requests")
	{
		reqs.POST("", h.Create)
		reqs.GET("", h.List)
		reqs.GET("/:id", h.Get)
		reqs.GET("/:id/history", h.History)
		reqs.POST("/:id/submit", h.Submit)
		reqs.POST("/:id/claim", h.Claim)
		reqs.POST("/:id/assign", h.Assign)
		reqs.POST("/:id/request-info", h.RequestInfo)
		reqs.POST("/:id/provide-info", h.ProvideInfo)
		reqs.POST("/:id/approve", h.Approve)
		reqs.POST("/:id/reject", h.Reject)
		reqs.POST("/:id/start-processing", h.StartProcessing)
		reqs.POST("/:id/complete", h.Complete)
		reqs.POST("/:id/cancel", h.Cancel)
	}
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := identity.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var input CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.Create(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := identity.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var filter Filter
	if statusStr := c.Query("status"); statusStr != "" {
		status := Status(statusStr)
		filter.Status = &status
	}
	if officerStr := c.Query("assigned_officer_id"); officerStr != "" {
		if id, err := uuid.Parse(officerStr); err == nil {
			filter.AssignedOfficerID = &id
		}
	}

	reqs, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

func (h *Handler) Get(c *gin.Context) {
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.Get(c.Request.Context(), actor, id)
	})
}

func (h *Handler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	entries, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) Submit(c *gin.Context) {
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.Submit(c.Request.Context(), actor, id)
	})
}

func (h *Handler) Claim(c *gin.Context) {
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.Claim(c.Request.Context(), actor, id)
	})
}

func (h *Handler) Assign(c *gin.Context) {
	var req struct {
		OfficerID uuid.UUID `json:"officer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.Assign(c.Request.Context(), actor, id, req.OfficerID)
	})
}

func (h *Handler) RequestInfo(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.RequestInfo(c.Request.Context(), actor, id, req.Message)
	})
}

func (h *Handler) ProvideInfo(c *gin.Context) {
	var req struct {
		Data    json.RawMessage `json:"data"`
		Comment string          `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.ProvideInfo(c.Request.Context(), actor, id, req.Data, req.Comment)
	})
}

func (h *Handler) Approve(c *gin.Context) {
	var req struct {
		Comment string `json:"comment"`
	}
	_ = c.ShouldBindJSON(&req)
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.Approve(c.Request.Context(), actor, id, req.Comment)
	})
}

func (h *Handler) Reject(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.Reject(c.Request.Context(), actor, id, req.Reason)
	})
}

func (h *Handler) StartProcessing(c *gin.Context) {
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.StartProcessing(c.Request.Context(), actor, id)
	})
}

func (h *Handler) Complete(c *gin.Context) {
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.Complete(c.Request.Context(), actor, id)
	})
}

func (h *Handler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	h.withRequest(c, func(actor identity.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.Cancel(c.Request.Context(), actor, id, req.Reason)
	})
}

func (h *Handler) withRequest(c *gin.Context, fn func(identity.Actor, uuid.UUID) (interface{}, error)) {
	actor, ok := identity.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	result, err := fn(actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func respondError(c *gin.Context, err error) {
	c.JSON(workflows.HTTPStatus(err), gin.H{"error": err.Error()})
}
