package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"detection-service/middleware"
	"detection-service/models"
	"detection-service/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const (
	testAPIKey   = "test-device-key"
	testMaxBytes = 1024 * 1024
	validB64     = "aGVsbG8gd29ybGQ="
	corruptB64   = "!!! not base64 !!!"
)

type fakeDetectionStore struct {
	mu             sync.Mutex
	detections     []*models.Detection
	images         []*models.DetectionImage
	insertErr      error
	insertImageErr error
}

func (f *fakeDetectionStore) InsertDetection(_ context.Context, d *models.Detection) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detections = append(f.detections, d)
	return nil
}

func (f *fakeDetectionStore) InsertDetectionImage(_ context.Context, img *models.DetectionImage) error {
	if f.insertImageErr != nil {
		return f.insertImageErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, img)
	return nil
}

func (f *fakeDetectionStore) GetDetections(_ context.Context, _ models.DetectionFilter) ([]models.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Detection
	for _, d := range f.detections {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDetectionStore) GetDetectionByID(_ context.Context, id string) (*models.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.detections {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeDetectionStore) DeleteDetection(_ context.Context, id string) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, d := range f.detections {
		if d.ID == id {
			f.detections = append(f.detections[:i], f.detections[i+1:]...)
			return []string{d.ImageURL}, true, nil
		}
	}
	return nil, false, nil
}

type fakeImageStore struct {
	mu        sync.Mutex
	uploads   int
	uploadErr error
}

func (f *fakeImageStore) Upload(_ context.Context, deviceID, base64Data string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if _, _, err := storage.DecodeBase64Image(base64Data); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return fmt.Sprintf("http://storage/detection-images/%s/%d.jpg", deviceID, f.uploads), nil
}

func (f *fakeImageStore) RemoveByURL(_ context.Context, _ string) error {
	return nil
}

type fakeLimiter struct {
	denied     bool
	retryAfter int
}

func (f *fakeLimiter) Allow(string) (bool, int) {
	if f.denied {
		return false, f.retryAfter
	}
	return true, 0
}

func setupSubmitRouter(db DetectionStore, store ImageStore, limiter middleware.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	h := NewHandlers(db, store, limiter, testMaxBytes)
	router.POST("/submit-detection", middleware.APIKeyMiddleware(testAPIKey), h.SubmitDetection)
	return router
}

func submitRequest(t *testing.T, router *gin.Engine, body interface{}, apiKey string) *httptest.ResponseRecorder {
	t.Helper()

	var buf []byte
	switch b := body.(type) {
	case string:
		buf = []byte(b)
	default:
		var err error
		buf, err = json.Marshal(body)
		assert.NoError(t, err)
	}

	req := httptest.NewRequest("POST", "/submit-detection", bytes.NewBuffer(buf))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"device_id":  "pi-1",
		"main_image": validB64,
		"status":     "healthy",
	}
}

func TestSubmitDetection_Success(t *testing.T) {
	db := &fakeDetectionStore{}
	router := setupSubmitRouter(db, &fakeImageStore{}, &fakeLimiter{})

	payload := validPayload()
	payload["confidence"] = 92.3
	payload["plant_images"] = []string{validB64, validB64}
	payload["metadata"] = map[string]interface{}{"temperature": 22.5}

	w := submitRequest(t, router, payload, testAPIKey)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SubmitDetectionResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.DetectionID)
	assert.Equal(t, "Detection saved successfully", resp.Message)

	assert.Len(t, db.detections, 1)
	assert.Equal(t, "pi-1", db.detections[0].DeviceID)
	assert.Equal(t, 92.3, *db.detections[0].Confidence)
	assert.Len(t, db.images, 2)
	orderNums := []int{db.images[0].OrderNum, db.images[1].OrderNum}
	assert.ElementsMatch(t, []int{1, 2}, orderNums)
	for _, img := range db.images {
		assert.Equal(t, resp.DetectionID, img.DetectionID)
	}
}

func TestSubmitDetection_PlantImageCounts(t *testing.T) {
	for count := 0; count <= 3; count++ {
		db := &fakeDetectionStore{}
		router := setupSubmitRouter(db, &fakeImageStore{}, &fakeLimiter{})

		payload := validPayload()
		images := make([]string, count)
		for i := range images {
			images[i] = validB64
		}
		payload["plant_images"] = images

		w := submitRequest(t, router, payload, testAPIKey)

		assert.Equal(t, http.StatusOK, w.Code, "plant_images length %d", count)
		assert.Len(t, db.images, count, "plant_images length %d", count)
	}
}

func TestSubmitDetection_PartialSecondaryFailure(t *testing.T) {
	db := &fakeDetectionStore{}
	router := setupSubmitRouter(db, &fakeImageStore{}, &fakeLimiter{})

	payload := validPayload()
	payload["plant_images"] = []string{validB64, corruptB64}

	w := submitRequest(t, router, payload, testAPIKey)

	// The corrupted secondary image is dropped; the detection still succeeds.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, db.detections, 1)
	assert.Len(t, db.images, 1)
	assert.Equal(t, 1, db.images[0].OrderNum)
}

func TestSubmitDetection_MissingAPIKey(t *testing.T) {
	router := setupSubmitRouter(&fakeDetectionStore{}, &fakeImageStore{}, &fakeLimiter{})

	w := submitRequest(t, router, validPayload(), "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Missing API key")
}

func TestSubmitDetection_WrongAPIKey(t *testing.T) {
	router := setupSubmitRouter(&fakeDetectionStore{}, &fakeImageStore{}, &fakeLimiter{})

	// Rejected before the payload is even looked at.
	w := submitRequest(t, router, `{"garbage`, "wrong-key")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid API key")
}

func TestSubmitDetection_MalformedJSON(t *testing.T) {
	db := &fakeDetectionStore{}
	router := setupSubmitRouter(db, &fakeImageStore{}, &fakeLimiter{})

	w := submitRequest(t, router, `{"device_id": "pi-1",`, testAPIKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid JSON body")
	assert.Empty(t, db.detections)
}

func TestSubmitDetection_MissingMainImage(t *testing.T) {
	router := setupSubmitRouter(&fakeDetectionStore{}, &fakeImageStore{}, &fakeLimiter{})

	payload := validPayload()
	delete(payload, "main_image")

	w := submitRequest(t, router, payload, testAPIKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Validation failed", resp.Error)
	assert.NotEmpty(t, resp.Details)
	assert.Contains(t, resp.Details[0], "main_image")
}

func TestSubmitDetection_InvalidStatus(t *testing.T) {
	router := setupSubmitRouter(&fakeDetectionStore{}, &fakeImageStore{}, &fakeLimiter{})

	payload := validPayload()
	payload["status"] = "unknown"

	w := submitRequest(t, router, payload, testAPIKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "status")
}

func TestSubmitDetection_ConfidenceOutOfRange(t *testing.T) {
	router := setupSubmitRouter(&fakeDetectionStore{}, &fakeImageStore{}, &fakeLimiter{})

	payload := validPayload()
	payload["confidence"] = 150

	w := submitRequest(t, router, payload, testAPIKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "confidence")
}

func TestSubmitDetection_RateLimited(t *testing.T) {
	db := &fakeDetectionStore{}
	router := setupSubmitRouter(db, &fakeImageStore{}, &fakeLimiter{denied: true, retryAfter: 42})

	w := submitRequest(t, router, validPayload(), testAPIKey)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")
	assert.Empty(t, db.detections)
}

func TestSubmitDetection_MainImageInvalidBase64(t *testing.T) {
	db := &fakeDetectionStore{}
	router := setupSubmitRouter(db, &fakeImageStore{}, &fakeLimiter{})

	payload := validPayload()
	payload["main_image"] = corruptB64

	w := submitRequest(t, router, payload, testAPIKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "main_image")
	assert.Empty(t, db.detections)
}

func TestSubmitDetection_MainImageUploadFailure(t *testing.T) {
	db := &fakeDetectionStore{}
	store := &fakeImageStore{uploadErr: errors.New("storage backend unavailable")}
	router := setupSubmitRouter(db, store, &fakeLimiter{})

	w := submitRequest(t, router, validPayload(), testAPIKey)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to store main image")
	assert.Empty(t, db.detections)
}

func TestSubmitDetection_InsertFailure(t *testing.T) {
	db := &fakeDetectionStore{insertErr: errors.New("connection lost")}
	router := setupSubmitRouter(db, &fakeImageStore{}, &fakeLimiter{})

	payload := validPayload()
	payload["plant_images"] = []string{validB64}

	w := submitRequest(t, router, payload, testAPIKey)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to save detection")
	assert.Empty(t, db.images)
}

func TestSubmitDetection_NoIdempotence(t *testing.T) {
	db := &fakeDetectionStore{}
	router := setupSubmitRouter(db, &fakeImageStore{}, &fakeLimiter{})

	payload := validPayload()
	w1 := submitRequest(t, router, payload, testAPIKey)
	w2 := submitRequest(t, router, payload, testAPIKey)

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusOK, w2.Code)

	// Two distinct rows is the expected behavior, not a bug.
	assert.Len(t, db.detections, 2)
	assert.NotEqual(t, db.detections[0].ID, db.detections[1].ID)
}

func TestSubmitDetection_RequestIDHeader(t *testing.T) {
	router := setupSubmitRouter(&fakeDetectionStore{}, &fakeImageStore{}, &fakeLimiter{})

	w := submitRequest(t, router, validPayload(), testAPIKey)

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestSubmitDetection_MetadataDefaulted(t *testing.T) {
	db := &fakeDetectionStore{}
	router := setupSubmitRouter(db, &fakeImageStore{}, &fakeLimiter{})

	w := submitRequest(t, router, validPayload(), testAPIKey)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, db.detections[0].Metadata)
	assert.Empty(t, db.detections[0].Metadata)
}
