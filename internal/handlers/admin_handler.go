package handlers

import (
	"context"
	stderrors "errors"
	"net/http"

	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/events"
	"products-stocks-telegram/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClaimantFinder looks up who holds a request
type ClaimantFinder interface {
	FindClaimant(ctx context.Context, requestID uuid.UUID) (*domain.Claimant, error)
}

// Releaser clears a claim whoever holds it
type Releaser interface {
	Release(ctx context.Context, requestID, operator uuid.UUID, reason string) (bool, error)
}

// AdminHandler exposes claim inspection and manual release
type AdminHandler struct {
	claims   ClaimantFinder
	releaser Releaser
	logger   *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(claims ClaimantFinder, releaser Releaser, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		claims:   claims,
		releaser: releaser,
		logger:   logger,
	}
}

// GetClaimant handles GET /api/v1/requests/:id/claimant
// @Summary      Get request claimant
// @Description  Returns the operator profile currently holding a stock request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Stock request ID (UUID)"
// @Success      200  {object}  ClaimantResponse
// @Failure      400  {object}  errors.StandardError
// @Failure      401  {object}  errors.StandardError
// @Failure      404  {object}  errors.StandardError
// @Failure      500  {object}  errors.StandardError
// @Router       /api/v1/requests/{id}/claimant [get]
func (h *AdminHandler) GetClaimant(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	claimant, err := h.claims.FindClaimant(c.Request.Context(), id)
	if err != nil {
		if stderrors.Is(err, domain.ErrClaimantNotFound) {
			c.Error(errors.NewClaimantNotFound(id.String()))
		} else {
			h.logger.Error("Failed to find claimant", zap.String("request_id", id.String()), zap.Error(err))
			c.Error(errors.NewDatabaseError("find claimant", err))
		}
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, ClaimantResponse{
		RequestID: id,
		ProfileID: claimant.ProfileID,
		Username:  claimant.Username,
	})
}

// ReleaseRequest handles POST /api/v1/requests/:id/release
// @Summary      Release a claimed request
// @Description  Returns a stock request to its queue whoever holds it
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Stock request ID (UUID)"
// @Success      200  {object}  ReleaseResponse
// @Failure      400  {object}  errors.StandardError
// @Failure      401  {object}  errors.StandardError
// @Failure      404  {object}  errors.StandardError
// @Failure      500  {object}  errors.StandardError
// @Router       /api/v1/requests/{id}/release [post]
func (h *AdminHandler) ReleaseRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	released, err := h.releaser.Release(c.Request.Context(), id, uuid.Nil, events.ReasonAdminRelease)
	if err != nil {
		h.logger.Error("Failed to release request", zap.String("request_id", id.String()), zap.Error(err))
		c.Error(errors.NewDatabaseError("release", err))
		c.Abort()
		return
	}
	if !released {
		c.Error(errors.NewRequestNotFound(id.String()))
		c.Abort()
		return
	}

	h.logger.Info("Request released by admin",
		zap.String("request_id", id.String()),
		zap.String("username", c.GetString("username")),
	)
	c.JSON(http.StatusOK, ReleaseResponse{RequestID: id, Released: true})
}

func (h *AdminHandler) requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.NewValidationError("invalid request ID format", "id"))
		c.Abort()
		return uuid.Nil, false
	}
	return id, true
}
