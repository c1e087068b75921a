package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"time"

	"ingest-service/archive"
	"ingest-service/configdoc"
	"ingest-service/models"
	"ingest-service/progress"
	"ingest-service/repository"
	"ingest-service/upload"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	Classifier              archive.ClassifierConfig
	MaxUncompressedBytes    int64
	CleanupOnPersistFailure bool
}

// IngestService runs the bundle pipeline for a single product: validate,
// extract, classify, parse, upload and finalize.
type IngestService struct {
	products    repository.ProductRepo
	store       ObjectStore
	coordinator *upload.Coordinator
	extractor   *archive.Extractor
	cfg         IngestConfig
	publisher   Publisher
	cache       CacheInvalidator
	recorder    RunRecorder
	now         func() time.Time
}

func NewIngestService(
	products repository.ProductRepo,
	store ObjectStore,
	coordinator *upload.Coordinator,
	cfg IngestConfig,
	publisher Publisher,
	cache CacheInvalidator,
	recorder RunRecorder,
) *IngestService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if cache == nil {
		cache = noopCache{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if cfg.Classifier.ConfigExtension == "" {
		cfg.Classifier = archive.DefaultClassifierConfig()
	}
	return &IngestService{
		products:    products,
		store:       store,
		coordinator: coordinator,
		extractor:   archive.NewExtractor(cfg.MaxUncompressedBytes),
		cfg:         cfg,
		publisher:   publisher,
		cache:       cache,
		recorder:    recorder,
		now:         time.Now,
	}
}

// Validate opens and enumerates the bundle without keeping anything.
func (s *IngestService) Validate(bundle []byte) error {
	return s.extractor.Validate(bundle)
}

// Authorize loads the target product and checks that ownerID owns it.
func (s *IngestService) Authorize(ctx context.Context, productID uuid.UUID, ownerID string) (*models.Product, error) {
	p, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("load product: %w", err)
	}
	if p.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return p, nil
}

// Ingest runs the whole pipeline and reports every phase to sink. Exactly
// one terminal event is emitted whatever the outcome.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest, sink progress.Sink) (*IngestResult, error) {
	tracker := progress.NewTracker(sink)
	log := zap.L().With(
		zap.String("product_id", req.ProductID.String()),
		zap.String("owner_id", req.OwnerID),
	)

	res, err := s.run(ctx, req, tracker, log)
	if err != nil {
		log.Error("Bundle ingestion failed", zap.Error(err))
		tracker.Fail(err)
		s.recorder.RunFinished(RunFailed)
		return nil, err
	}
	s.recorder.RunFinished(RunComplete)
	return res, nil
}

func (s *IngestService) run(ctx context.Context, req IngestRequest, tracker *progress.Tracker, log *zap.Logger) (*IngestResult, error) {
	if err := s.extractor.Validate(req.Bundle); err != nil {
		return nil, err
	}
	if _, err := s.Authorize(ctx, req.ProductID, req.OwnerID); err != nil {
		return nil, err
	}

	_ = tracker.Extracting()
	bundle, err := s.extractor.Extract(req.Bundle)
	if err != nil {
		return nil, err
	}
	cls, err := archive.Classify(bundle, s.cfg.Classifier)
	if err != nil {
		return nil, err
	}
	constants := configdoc.Parse(cls.ConfigText).Native()
	_ = tracker.Extracted(len(cls.Assets))

	prefix := path.Join(req.OwnerID, req.ProductID.String())
	uploaded, err := s.coordinator.Run(ctx, prefix, cls.Assets, func(r upload.BatchReport) {
		_ = tracker.Uploading(r.Uploaded, r.Total)
	})
	if err != nil {
		if uploaded != nil {
			s.cleanup(ctx, log, uploaded.UploadedPaths)
		}
		return nil, err
	}
	for _, o := range uploaded.Failed() {
		log.Warn("Asset not uploaded", zap.String("asset", o.Name), zap.Int("batch", o.Batch), zap.String("error", o.Error))
	}
	_ = tracker.ImagesUploaded(uploaded.Uploaded, uploaded.Total)

	result := &IngestResult{
		ProductID:          req.ProductID,
		Constants:          constants,
		UploadedAssetPaths: uploaded.UploadedPaths,
		AssetCount:         uploaded.Uploaded,
		TotalAssets:        uploaded.Total,
		StoragePath:        prefix,
		TotalSizeMB:        toMB(uploaded.UploadedBytes),
		Failed:             uploaded.Failed(),
	}
	if result.UploadedAssetPaths == nil {
		result.UploadedAssetPaths = []string{}
	}
	if uploaded.CoverPath != "" {
		cover := uploaded.CoverPath
		result.CoverImage = &cover
	}

	_ = tracker.UpdatingProduct()
	update := models.IngestionUpdate{
		Configuration: constants,
		StoragePath:   prefix,
		CoverImage:    result.CoverImage,
		Images:        result.UploadedAssetPaths,
		TotalSizeMB:   result.TotalSizeMB,
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.products.UpdateIngestion(ctx, req.ProductID, update); err != nil {
		if s.cfg.CleanupOnPersistFailure {
			s.cleanup(ctx, log, uploaded.UploadedPaths)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.cache.InvalidateProduct(ctx, req.ProductID)

	if err := s.publisher.Publish(ctx, EventBundleIngested, map[string]interface{}{
		"product_id":   req.ProductID.String(),
		"owner_id":     req.OwnerID,
		"storage_path": prefix,
		"asset_count":  result.AssetCount,
		"cover_image":  result.CoverImage,
	}); err != nil {
		log.Warn("Failed to publish ingestion event", zap.Error(err))
	}

	_ = tracker.Complete(progress.Summary{
		Constants:      constants,
		UploadedImages: result.UploadedAssetPaths,
		ImageCount:     result.AssetCount,
		StoragePath:    prefix,
		CoverImage:     result.CoverImage,
		TotalSizeMB:    result.TotalSizeMB,
	})
	log.Info("Bundle ingested",
		zap.Int("uploaded", result.AssetCount),
		zap.Int("total", result.TotalAssets),
		zap.Float64("total_size_mb", result.TotalSizeMB))
	return result, nil
}

// cleanup removes assets uploaded by a run that could not be finalized.
func (s *IngestService) cleanup(ctx context.Context, log *zap.Logger, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), keys); err != nil {
		log.Error("Failed to remove uploaded assets of failed run", zap.Int("assets", len(keys)), zap.Error(err))
		return
	}
	log.Info("Removed uploaded assets of failed run", zap.Int("assets", len(keys)))
}

func toMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}
