package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"detection-service/metrics"
	"detection-service/middleware"
	"detection-service/models"
	"detection-service/storage"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DetectionStore is the persistence surface the handlers depend on.
type DetectionStore interface {
	InsertDetection(ctx context.Context, d *models.Detection) error
	InsertDetectionImage(ctx context.Context, img *models.DetectionImage) error
	GetDetections(ctx context.Context, filter models.DetectionFilter) ([]models.Detection, error)
	GetDetectionByID(ctx context.Context, id string) (*models.Detection, error)
	DeleteDetection(ctx context.Context, id string) ([]string, bool, error)
}

// ImageStore decodes and persists base64 images, returning public URLs.
type ImageStore interface {
	Upload(ctx context.Context, deviceID, base64Data string) (string, error)
	RemoveByURL(ctx context.Context, imageURL string) error
}

// Handlers holds all HTTP handlers for the detection service.
type Handlers struct {
	db            DetectionStore
	store         ImageStore
	limiter       middleware.RateLimiter
	maxImageBytes int
}

// NewHandlers creates a new handlers instance.
func NewHandlers(db DetectionStore, store ImageStore, limiter middleware.RateLimiter, maxImageBytes int) *Handlers {
	return &Handlers{
		db:            db,
		store:         store,
		limiter:       limiter,
		maxImageBytes: maxImageBytes,
	}
}

// SubmitDetection ingests one detection report from a device: validate,
// rate-limit, upload the main image, persist the detection row, then
// best-effort upload and persist up to three secondary images.
func (h *Handlers) SubmitDetection(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := middleware.GetRequestID(c)

	var req models.SubmitDetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithField("request_id", requestID).Warnf("Malformed JSON body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	if details := req.Validate(h.maxImageBytes); len(details) > 0 {
		log.WithField("request_id", requestID).Warnf("Validation failed: %v", details)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": details})
		return
	}
	req.Normalize()

	logger := log.WithFields(log.Fields{
		"request_id": requestID,
		"device_id":  req.DeviceID,
	})

	allowed, retryAfter := h.limiter.Allow(req.DeviceID)
	if !allowed {
		metrics.RateLimitRejections.Inc()
		logger.Warnf("Rate limit exceeded, retry after %d seconds", retryAfter)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "Rate limit exceeded. Retry after " + strconv.Itoa(retryAfter) + " seconds",
		})
		return
	}

	mainImageURL, err := h.store.Upload(ctx, req.DeviceID, req.MainImage)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidBase64) {
			logger.Warnf("Main image decode failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "main_image is not valid base64 data"})
			return
		}
		logger.Errorf("Main image upload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store main image"})
		return
	}
	metrics.ImagesUploaded.Inc()

	detection := &models.Detection{
		ID:         uuid.NewString(),
		DeviceID:   req.DeviceID,
		ImageURL:   mainImageURL,
		Status:     req.Status,
		Confidence: req.Confidence,
		Metadata:   req.Metadata,
	}

	if err := h.db.InsertDetection(ctx, detection); err != nil {
		// The uploaded object stays orphaned in storage; accepted and
		// visible in logs, never silently corrected.
		logger.Errorf("Failed to insert detection, orphaned object at %s: %v", mainImageURL, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save detection"})
		return
	}
	metrics.DetectionsSaved.WithLabelValues(req.Status).Inc()

	saved := h.saveSecondaryImages(ctx, logger, detection.ID, req.DeviceID, req.PlantImages)
	logger.Infof("Detection %s saved with %d of %d secondary images", detection.ID, saved, len(req.PlantImages))

	c.JSON(http.StatusOK, models.SubmitDetectionResponse{
		Success:     true,
		DetectionID: detection.ID,
		Message:     "Detection saved successfully",
	})
}

// saveSecondaryImages uploads the plant images concurrently, joins, then
// persists a row per successful upload. Failures are logged and skipped;
// one failed image never fails the submission or its siblings.
func (h *Handlers) saveSecondaryImages(ctx context.Context, logger *log.Entry, detectionID, deviceID string, plantImages []string) int {
	if len(plantImages) == 0 {
		return 0
	}

	type uploadResult struct {
		url string
		err error
	}
	results := make([]uploadResult, len(plantImages))

	var wg sync.WaitGroup
	for i, img := range plantImages {
		wg.Add(1)
		go func(i int, img string) {
			defer wg.Done()
			url, err := h.store.Upload(ctx, deviceID, img)
			results[i] = uploadResult{url: url, err: err}
		}(i, img)
	}
	wg.Wait()

	saved := 0
	for i, res := range results {
		if res.err != nil {
			metrics.SecondaryImageFailures.Inc()
			logger.Warnf("Secondary image %d of %d failed to upload: %v", i+1, len(plantImages), res.err)
			continue
		}
		img := &models.DetectionImage{
			ID:          uuid.NewString(),
			DetectionID: detectionID,
			ImageURL:    res.url,
			OrderNum:    i + 1,
		}
		if err := h.db.InsertDetectionImage(ctx, img); err != nil {
			metrics.SecondaryImageFailures.Inc()
			logger.Warnf("Secondary image %d of %d failed to persist: %v", i+1, len(plantImages), err)
			continue
		}
		metrics.ImagesUploaded.Inc()
		saved++
	}

	if failed := len(plantImages) - saved; failed > 0 {
		logger.Warnf("%d of %d secondary images failed for detection %s", failed, len(plantImages), detectionID)
	}
	return saved
}
