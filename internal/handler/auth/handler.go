package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/pathology-report-api/internal/handler"
	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/service/auth"
	apperrors "github.com/jwalitptl/pathology-report-api/pkg/errors"
)

type LoginService interface {
	Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error)
}

type Handler struct {
	svc LoginService
}

func NewHandler(svc LoginService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	group := r.Group("/auth")
	{
		group.POST("/login", h.Login)
	}
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.FailBinding(c, err)
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			handler.Fail(c, apperrors.Unauthorized(err))
			return
		}
		handler.Fail(c, apperrors.NewInternal("", err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(tokens))
}
