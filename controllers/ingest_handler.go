package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "ingest-service/common/errors"
	"ingest-service/progress"
	"ingest-service/services"
)

// IngestHandler exposes the bundle pipeline synchronously, as a progress
// stream and as a queued job.
type IngestHandler struct {
	ingest    IngestServiceAPI
	jobs      JobQueueAPI
	validator *RequestValidator
	timeout   time.Duration
}

func NewIngestHandler(ingest IngestServiceAPI, jobs JobQueueAPI, validator *RequestValidator) *IngestHandler {
	return &IngestHandler{
		ingest:    ingest,
		jobs:      jobs,
		validator: validator,
		timeout:   DefaultContextTimeout,
	}
}

// Ingest runs the pipeline and answers once it is finished. With
// ?async=true the bundle is queued and a job id is returned instead.
func (h *IngestHandler) Ingest(c *gin.Context) {
	in, ok := h.prepare(c)
	if !ok {
		return
	}

	if strings.EqualFold(strings.TrimSpace(c.Query("async")), "true") {
		h.enqueue(c, in)
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), services.IngestRequest{
		ProductID: in.ProductID,
		OwnerID:   in.OwnerID,
		Bundle:    in.Bundle,
	}, progress.Discard)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                 true,
		"constants":          result.Constants,
		"uploadedAssetPaths": result.UploadedAssetPaths,
		"assetCount":         result.AssetCount,
		"storagePath":        result.StoragePath,
	})
}

// Stream runs the pipeline and reports progress as server-sent events.
// Validation, authentication and ownership are settled before the stream
// opens so those failures still get a JSON status response. Once open, the
// run continues even if the client goes away.
func (h *IngestHandler) Stream(c *gin.Context) {
	in, ok := h.prepare(c)
	if !ok {
		return
	}

	stream := progress.NewStream()
	req := services.IngestRequest{ProductID: in.ProductID, OwnerID: in.OwnerID, Bundle: in.Bundle}
	runCtx := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := h.ingest.Ingest(runCtx, req, stream); err != nil {
			zap.L().Debug("Streamed ingestion ended with error",
				zap.String("product_id", req.ProductID.String()), zap.Error(err))
		}
	}()

	progress.SetHeaders(c.Writer)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	progress.Pump(c.Request.Context(), c.Writer, stream)

	if stream.Detached() {
		zap.L().Info("Progress client disconnected, ingestion continues",
			zap.String("product_id", req.ProductID.String()))
	}
}

// GetJob returns the stored status of a queued ingestion.
func (h *IngestHandler) GetJob(c *gin.Context) {
	ownerID, ok := requireUser(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		apperrors.Respond(c, apperrors.BadRequest("Job ID required", nil))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	job, err := h.jobs.Get(ctx, id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if job.OwnerID != ownerID {
		apperrors.Respond(c, apperrors.NotFound("job not found"))
		return
	}
	c.JSON(http.StatusOK, job)
}

// prepare validates the form, the archive container and product ownership.
func (h *IngestHandler) prepare(c *gin.Context) (*IngestInput, bool) {
	subject, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	in, err := h.validator.ParseIngestRequest(c, subject)
	if err != nil {
		handleServiceError(c, err)
		return nil, false
	}
	if err := h.ingest.Validate(in.Bundle); err != nil {
		zap.L().Warn("Rejected bundle", zap.String("product_id", in.ProductID.String()), zap.Error(err))
		handleServiceError(c, err)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if _, err := h.ingest.Authorize(ctx, in.ProductID, in.OwnerID); err != nil {
		handleServiceError(c, err)
		return nil, false
	}
	return in, true
}

func (h *IngestHandler) enqueue(c *gin.Context, in *IngestInput) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	job, err := h.jobs.Enqueue(ctx, in.ProductID, in.OwnerID, in.Bundle)
	if err != nil {
		zap.L().Error("Failed to enqueue ingestion", zap.String("product_id", in.ProductID.String()), zap.Error(err))
		apperrors.Respond(c, apperrors.Internal("Failed to queue ingestion job", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"ok":      true,
		"job_id":  job.ID,
		"message": "Ingestion queued for processing",
	})
}
