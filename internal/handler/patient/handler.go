package patient

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/pathology-report-api/internal/handler"
	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/repository"
	"github.com/jwalitptl/pathology-report-api/internal/service/patient"
	apperrors "github.com/jwalitptl/pathology-report-api/pkg/errors"
)

type Handler struct {
	service patient.PatientService
}

func NewHandler(service patient.PatientService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.GET("/:id", h.GetPatient)
		patients.PATCH("/:id", h.UpdatePatient)
	}
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	p, err := h.service.GetPatient(c.Request.Context(), id)
	if err != nil {
		failLookup(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req model.UpdatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.FailBinding(c, err)
		return
	}

	p, err := h.service.UpdatePatient(c.Request.Context(), id, &req)
	if err != nil {
		failLookup(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		handler.Fail(c, apperrors.NewBadRequest("invalid patient id", err))
		return 0, false
	}
	return id, true
}

func failLookup(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		handler.Fail(c, apperrors.NewNotFound("patient", err))
		return
	}
	handler.Fail(c, apperrors.NewInternal("", err))
}
