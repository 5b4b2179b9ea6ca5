package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"

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
	types := rg.Group("/document-types")
	{
		types.GET("", h.List)
		types.GET("/:code", h.Get)
		types.POST("", identity.RequireRole(identity.RoleChairman), h.Create)
	}
}

func (h *Handler) List(c *gin.Context) {
	types, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

func (h *Handler) Get(c *gin.Context) {
	dt, err := h.service.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dt)
}

func (h *Handler) Create(c *gin.Context) {
	var dt DocumentType
	if err := c.ShouldBindJSON(&dt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Create(c.Request.Context(), &dt); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dt)
}

func respondError(c *gin.Context, err error) {
	c.JSON(workflows.HTTPStatus(err), gin.H{"error": err.Error()})
}
