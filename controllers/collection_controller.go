package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "ingest-service/common/errors"
	"ingest-service/services"
)

type CollectionController struct {
	service   CollectionServiceAPI
	reader    CollectionReaderAPI
	validator *RequestValidator
}

func NewCollectionController(service CollectionServiceAPI, reader CollectionReaderAPI, validator *RequestValidator) *CollectionController {
	return &CollectionController{service: service, reader: reader, validator: validator}
}

// CreateCollection creates a collection with its child products, ingests
// their bundles and applies the grouping. A failed run is rolled back and
// reported as a single error.
func (cc *CollectionController) CreateCollection(c *gin.Context) {
	ownerID, ok := requireUser(c)
	if !ok {
		return
	}
	req, err := cc.validator.ParseCollectionRequest(c, ownerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	result, err := cc.service.CreateCollection(c.Request.Context(), req)
	if err != nil {
		var orchErr *services.OrchestrationError
		if errors.As(err, &orchErr) {
			zap.L().Error("Collection creation rolled back",
				zap.String("owner_id", ownerID),
				zap.String("step", orchErr.Step.String()),
				zap.Int("rollback_failures", len(orchErr.Rollback.Failures)),
				zap.Error(orchErr.Err))
			apperrors.Respond(c, apperrors.Internal(orchErr.Error(), err), gin.H{
				"rolledBack":       true,
				"rollbackFailures": len(orchErr.Rollback.Failures),
			})
			return
		}
		handleServiceError(c, err)
		return
	}

	productIDs := make([]string, 0, len(result.Products))
	for _, p := range result.Products {
		productIDs = append(productIDs, p.ID.String())
	}
	ingestions := make([]gin.H, 0, len(result.Ingestions))
	for _, in := range result.Ingestions {
		if in == nil {
			continue
		}
		ingestions = append(ingestions, gin.H{
			"productId":   in.ProductID,
			"assetCount":  in.AssetCount,
			"totalAssets": in.TotalAssets,
			"storagePath": in.StoragePath,
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":          true,
		"collection":  result.Collection,
		"products":    productIDs,
		"ingestions":  ingestions,
		"groups":      result.Groups,
		"assignments": result.Assignments,
	})
}

// GetCollection returns the collection with its products and groups.
// Failures are attached to the context for ErrorMiddleware to render.
func (cc *CollectionController) GetCollection(c *gin.Context) {
	ownerID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	view, err := cc.reader.GetCollection(c.Request.Context(), id, ownerID)
	if err != nil {
		_ = c.Error(toAppError(err))
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"collection": view.Collection,
		"products":   view.Products,
		"groups":     view.Groups,
	})
}
