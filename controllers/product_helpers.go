package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ingest-service/archive"
	apperrors "ingest-service/common/errors"
	"ingest-service/common/middleware"
	"ingest-service/services"
	"ingest-service/upload"
)

// toAppError maps pipeline and service errors onto HTTP errors.
func toAppError(err error) *apperrors.Error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, archive.ErrCorruptArchive),
		errors.Is(err, archive.ErrArchiveTooLarge),
		errors.Is(err, archive.ErrMissingConfiguration),
		errors.Is(err, upload.ErrNoAssets),
		errors.Is(err, services.ErrInvalidManifest):
		return apperrors.BadRequest(err.Error(), err)
	case errors.Is(err, services.ErrForbidden):
		return apperrors.Forbidden("Access denied")
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrJobNotFound),
		errors.Is(err, services.ErrCollectionNotFound):
		return apperrors.NotFound(err.Error())
	default:
		return apperrors.Internal(err.Error(), err)
	}
}

// handleServiceError logs server faults and writes the error envelope.
func handleServiceError(c *gin.Context, err error, extra ...gin.H) {
	appErr := toAppError(err)
	if appErr.Code >= http.StatusInternalServerError {
		zap.L().Error("Service error", zap.Error(err), zap.String("path", c.FullPath()))
	}
	apperrors.Respond(c, appErr, extra...)
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperrors.Respond(c, apperrors.BadRequest("Invalid UUID format", err))
		return uuid.Nil, false
	}
	return id, true
}

func requireUser(c *gin.Context) (string, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		apperrors.Respond(c, apperrors.Unauthorized("Authorization required"))
		return "", false
	}
	return userID, true
}
