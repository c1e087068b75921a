package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "ingest-service/common/errors"
	"ingest-service/services"
)

var allowedArchiveExtensions = map[string]bool{
	".zip": true,
}

var allowedArchiveTypes = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/octet-stream":     true,
	"":                             true,
}

// CreateProductRequest is the JSON body of POST /products.
type CreateProductRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	CollectionID string `json:"collectionId" validate:"omitempty,uuid"`
}

// IngestForm carries the non-file fields of an ingestion request.
type IngestForm struct {
	TargetResourceID string `form:"targetResourceId" validate:"required,uuid"`
	OwnerID          string `form:"ownerId" validate:"required"`
}

// IngestInput is a validated ingestion request.
type IngestInput struct {
	ProductID uuid.UUID
	OwnerID   string
	Bundle    []byte
}

type manifestProduct struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Bundle      string `json:"bundle"`
}

type manifestGroup struct {
	Name     string `json:"name" validate:"required"`
	Products []int  `json:"products"`
}

// CollectionManifest is the JSON manifest of POST /collections.
type CollectionManifest struct {
	Name     string            `json:"name" validate:"required,max=200"`
	Products []manifestProduct `json:"products" validate:"required,min=1,dive"`
	Groups   []manifestGroup   `json:"groups" validate:"dive"`
}

// RequestValidator handles all input validation
type RequestValidator struct {
	validate       *validator.Validate
	maxBundleBytes int64
}

func NewRequestValidator(maxBundleBytes int64) *RequestValidator {
	if maxBundleBytes <= 0 {
		maxBundleBytes = DefaultMaxBundleBytes
	}
	return &RequestValidator{validate: validator.New(), maxBundleBytes: maxBundleBytes}
}

func (rv *RequestValidator) ParseCreateProductRequest(c *gin.Context) (services.ProductCreateRequest, error) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return services.ProductCreateRequest{}, apperrors.BadRequest("invalid request body", err)
	}
	if err := rv.validate.Struct(&req); err != nil {
		return services.ProductCreateRequest{}, apperrors.BadRequest("validation failed", err)
	}
	out := services.ProductCreateRequest{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	}
	if req.CollectionID != "" {
		id := uuid.MustParse(req.CollectionID)
		out.CollectionID = &id
	}
	return out, nil
}

// ParseIngestRequest validates the multipart ingestion form and checks that
// ownerId matches the authenticated subject.
func (rv *RequestValidator) ParseIngestRequest(c *gin.Context, subject string) (*IngestInput, error) {
	var form IngestForm
	if err := c.ShouldBind(&form); err != nil {
		return nil, apperrors.BadRequest("targetResourceId and ownerId are required", err)
	}
	if err := rv.validate.Struct(&form); err != nil {
		return nil, apperrors.BadRequest("targetResourceId must be a UUID and ownerId is required", err)
	}
	if form.OwnerID != subject {
		return nil, apperrors.Forbidden("ownerId does not match the authenticated user")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return nil, apperrors.BadRequest("file is required", err)
	}
	bundle, err := rv.readArchive(file)
	if err != nil {
		return nil, err
	}

	return &IngestInput{
		ProductID: uuid.MustParse(form.TargetResourceID),
		OwnerID:   form.OwnerID,
		Bundle:    bundle,
	}, nil
}

// ParseCollectionRequest reads the manifest field and one archive per child
// that names a bundle field.
func (rv *RequestValidator) ParseCollectionRequest(c *gin.Context, ownerID string) (services.CollectionRequest, error) {
	raw := c.PostForm("manifest")
	if raw == "" {
		return services.CollectionRequest{}, apperrors.BadRequest("manifest is required", nil)
	}
	var m CollectionManifest
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return services.CollectionRequest{}, apperrors.BadRequest("manifest is not valid JSON", err)
	}
	if err := rv.validate.Struct(&m); err != nil {
		return services.CollectionRequest{}, apperrors.BadRequest("manifest validation failed", err)
	}

	req := services.CollectionRequest{OwnerID: ownerID, Name: m.Name}
	for _, p := range m.Products {
		child := services.ChildSpec{Name: p.Name, Description: p.Description}
		if p.Bundle != "" {
			file, err := c.FormFile(p.Bundle)
			if err != nil {
				return services.CollectionRequest{}, apperrors.BadRequest(fmt.Sprintf("bundle %q is missing", p.Bundle), err)
			}
			if child.Bundle, err = rv.readArchive(file); err != nil {
				return services.CollectionRequest{}, err
			}
		}
		req.Products = append(req.Products, child)
	}
	for _, g := range m.Groups {
		req.Groups = append(req.Groups, services.GroupSpec{Name: g.Name, Products: g.Products})
	}
	if err := req.Validate(); err != nil {
		return services.CollectionRequest{}, apperrors.BadRequest(err.Error(), err)
	}
	return req, nil
}

// IsValidArchive checks extension and declared content type.
func (rv *RequestValidator) IsValidArchive(file *multipart.FileHeader) bool {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	return allowedArchiveExtensions[ext] && allowedArchiveTypes[file.Header.Get("Content-Type")]
}

func (rv *RequestValidator) readArchive(file *multipart.FileHeader) ([]byte, error) {
	if !rv.IsValidArchive(file) {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid file type for %s, a .zip archive is required", file.Filename), nil)
	}
	if file.Size > rv.maxBundleBytes {
		return nil, apperrors.BadRequest(fmt.Sprintf("file too large (max %dMB)", rv.maxBundleBytes>>20), nil)
	}
	f, err := file.Open()
	if err != nil {
		return nil, apperrors.Internal("failed to open upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, rv.maxBundleBytes+1))
	if err != nil {
		return nil, apperrors.Internal("failed to read upload", err)
	}
	return data, nil
}
