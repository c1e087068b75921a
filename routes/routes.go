package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ingest-service/common/auth"
	"ingest-service/common/middleware"
	"ingest-service/controllers"
	"ingest-service/telemetry"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Products    *controllers.ProductController
	Ingest      *controllers.IngestHandler
	Collections *controllers.CollectionController
	Metrics     *telemetry.Metrics
	Validator   *auth.TokenValidator

	// Ingestion requests per minute and burst, per client IP.
	IngestRatePerMinute int
	IngestBurst         int
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	// the viewer is embedded in public pages
	r.GET("/products/:id/viewer", h.Products.GetViewer)

	authed := r.Group("/", middleware.AuthMiddleware(h.Validator))
	{
		authed.POST("/products", h.Products.CreateProduct)
		authed.GET("/products/:id", h.Products.GetProduct)
		authed.DELETE("/products/:id", h.Products.DeleteProduct)

		authed.GET("/ingest/jobs/:id", h.Ingest.GetJob)
		authed.GET("/collections/:id", h.Collections.GetCollection)
	}

	ingest := authed.Group("/", middleware.RateLimitMiddleware(h.IngestRatePerMinute, h.IngestBurst))
	{
		ingest.POST("/ingest", h.Ingest.Ingest)
		if h.Metrics != nil {
			ingest.POST("/ingest/stream", h.Metrics.TrackStreams(), h.Ingest.Stream)
		} else {
			ingest.POST("/ingest/stream", h.Ingest.Stream)
		}
		ingest.POST("/collections", h.Collections.CreateCollection)
	}
}
