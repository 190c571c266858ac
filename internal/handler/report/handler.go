package report

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/pathology-report-api/internal/handler"
	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/service/artifact"
	"github.com/jwalitptl/pathology-report-api/internal/service/signing"
	apperrors "github.com/jwalitptl/pathology-report-api/pkg/errors"
)

type Signer interface {
	Sign(ctx context.Context, patientID int64) (*model.SignResponse, error)
}

type Handler struct {
	signer    Signer
	store     artifact.Store
	extension string
}

func NewHandler(signer Signer, store artifact.Store, extension string) *Handler {
	return &Handler{
		signer:    signer,
		store:     store,
		extension: extension,
	}
}

// RegisterRoutes mounts the signing endpoint on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reports := r.Group("/reports")
	{
		reports.PUT("/sign/:id", h.SignReport)
	}
}

// RegisterStaticRoutes serves generated artifacts by file name.
func (h *Handler) RegisterStaticRoutes(r gin.IRoutes) {
	r.GET("/:file", h.ServeArtifact)
	r.HEAD("/:file", h.ServeArtifact)
}

func (h *Handler) SignReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		handler.Fail(c, apperrors.NewBadRequest("invalid patient id", err))
		return
	}

	resp, err := h.signer.Sign(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, signing.ErrNotFound):
			handler.Fail(c, apperrors.NewNotFound("patient", err))
		case errors.Is(err, signing.ErrSignInProgress):
			handler.Fail(c, apperrors.NewConflict("report is already being signed", err))
		default:
			handler.Fail(c, apperrors.NewInternal("report signing failed", err))
		}
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(resp))
}

func (h *Handler) ServeArtifact(c *gin.Context) {
	file := c.Param("file")
	code, ok := strings.CutSuffix(file, h.extension)
	if !ok {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("report not found"))
		return
	}

	if _, err := h.store.Stat(code); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			c.JSON(http.StatusNotFound, handler.NewErrorResponse("report not found"))
			return
		}
		handler.Fail(c, apperrors.NewInternal("", err))
		return
	}

	c.FileFromFS("/"+file, h.store.FileSystem())
}
