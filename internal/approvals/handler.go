package approvals

import (
	"net/http"
	"time"

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
	approvals := rg.Group("/approvals")
	{
		approvals.POST("", h.Request)
		approvals.GET("/pending", h.ListPending)
		approvals.GET("/:id", h.Get)
		approvals.POST("/:id/decide", h.Decide)
	}
}

func (h *Handler) Request(c *gin.Context) {
	actor, ok := identity.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	if !actor.HasRole(identity.RoleOfficer) && !actor.HasRole(identity.RoleChairman) {
		c.JSON(http.StatusForbidden, gin.H{"error": "officer role required"})
		return
	}

	var req struct {
		TargetKind TargetKind `json:"target_kind" binding:"required"`
		TargetID   uuid.UUID  `json:"target_id" binding:"required"`
		Priority   string     `json:"priority"`
		DueDate    *time.Time `json:"due_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TargetKind != TargetRequest && req.TargetKind != TargetDocument {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_kind must be REQUEST or DOCUMENT"})
		return
	}
	if req.Priority == "" {
		req.Priority = "normal"
	}

	record, err := h.service.RequestApproval(c.Request.Context(), req.TargetKind, req.TargetID, actor, req.Priority, req.DueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *Handler) ListPending(c *gin.Context) {
	records, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	record, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) Decide(c *gin.Context) {
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

	var req struct {
		Approved bool   `json:"approved"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.Decide(c.Request.Context(), actor, id, req.Approved, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func respondError(c *gin.Context, err error) {
	c.JSON(workflows.HTTPStatus(err), gin.H{"error": err.Error()})
}
