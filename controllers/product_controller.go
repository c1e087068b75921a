package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProductController serves the target resources that bundles are ingested into.
type ProductController struct {
	service   ProductServiceAPI
	cache     *CacheManager
	validator *RequestValidator
	timeout   time.Duration
}

func NewProductController(service ProductServiceAPI, cache *CacheManager, validator *RequestValidator) *ProductController {
	return &ProductController{
		service:   service,
		cache:     cache,
		validator: validator,
		timeout:   DefaultContextTimeout,
	}
}

// CreateProduct creates an empty product owned by the caller.
func (pc *ProductController) CreateProduct(c *gin.Context) {
	ownerID, ok := requireUser(c)
	if !ok {
		return
	}
	req, err := pc.validator.ParseCreateProductRequest(c)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pc.timeout)
	defer cancel()

	product, err := pc.service.CreateProduct(ctx, ownerID, req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	zap.L().Info("Product created", zap.String("product_id", product.ID.String()), zap.String("owner_id", ownerID))
	c.JSON(http.StatusCreated, gin.H{"ok": true, "product": product})
}

func (pc *ProductController) GetProduct(c *gin.Context) {
	ownerID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pc.timeout)
	defer cancel()

	product, err := pc.service.GetProduct(ctx, id, ownerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "product": product})
}

// GetViewer returns the storage path and configuration the viewer renders
// from. Served from cache when possible.
func (pc *ProductController) GetViewer(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pc.timeout)
	defer cancel()

	if pc.cache != nil {
		if payload, hit := pc.cache.GetViewer(ctx, id); hit {
			c.Header("X-Cache", "HIT")
			c.JSON(http.StatusOK, payload)
			return
		}
	}

	payload, err := pc.service.GetViewer(ctx, id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if pc.cache != nil {
		pc.cache.SetViewer(ctx, id, payload)
	}
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, payload)
}

// DeleteProduct removes the product, its recorded assets and everything
// under its storage prefix. Deleting a missing product succeeds.
func (pc *ProductController) DeleteProduct(c *gin.Context) {
	ownerID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pc.timeout)
	defer cancel()

	if err := pc.service.DeleteProduct(ctx, id, ownerID); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": id})
}
