package documents

import (
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
	docs := rg.Group("/documents")
	{
		docs.GET("", h.List)
		docs.GET("/:id", h.Get)
		docs.GET("/:id/pdf", h.RenderPDF)
		docs.GET("/:id/verify", h.Verify)
		docs.POST("/:id/revoke", h.Revoke)
	}
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := identity.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var filter Filter
	if docType := c.Query("document_type"); docType != "" {
		filter.DocumentTypeCode = &docType
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := Status(statusStr)
		filter.Status = &status
	}

	docs, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) Get(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) RenderPDF(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	pdf, err := h.service.RenderPDF(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *Handler) Verify(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}
	verified, err := h.service.Verify(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": id, "verified": verified})
}

func (h *Handler) Revoke(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	doc, err := h.service.Revoke(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) actorAndID(c *gin.Context) (identity.Actor, uuid.UUID, bool) {
	actor, ok := identity.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return identity.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return identity.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func respondError(c *gin.Context, err error) {
	c.JSON(workflows.HTTPStatus(err), gin.H{"error": err.Error()})
}
