package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testMaxImageBytes = 1024

func validRequest() SubmitDetectionRequest {
	confidence := 92.3
	return SubmitDetectionRequest{
		DeviceID:   "pi-1",
		MainImage:  "aGVsbG8gd29ybGQ=",
		Status:     StatusHealthy,
		Confidence: &confidence,
	}
}

func TestValidate_ValidRequest(t *testing.T) {
	req := validRequest()
	assert.Empty(t, req.Validate(testMaxImageBytes))
}

func TestValidate_MissingMainImage(t *testing.T) {
	req := validRequest()
	req.MainImage = ""

	details := req.Validate(testMaxImageBytes)
	assert.Len(t, details, 1)
	assert.Contains(t, details[0], "main_image")
}

func TestValidate_InvalidStatus(t *testing.T) {
	req := validRequest()
	req.Status = "unknown"

	details := req.Validate(testMaxImageBytes)
	assert.Len(t, details, 1)
	assert.Contains(t, details[0], "status")
}

func TestValidate_ConfidenceOutOfRange(t *testing.T) {
	for _, value := range []float64{-0.1, 100.5, 150} {
		req := validRequest()
		req.Confidence = &value

		details := req.Validate(testMaxImageBytes)
		assert.Len(t, details, 1)
		assert.Contains(t, details[0], "confidence")
	}
}

func TestValidate_ConfidenceBoundsInclusive(t *testing.T) {
	for _, value := range []float64{0, 100} {
		req := validRequest()
		req.Confidence = &value
		assert.Empty(t, req.Validate(testMaxImageBytes))
	}
}

func TestValidate_ConfidenceOptional(t *testing.T) {
	req := validRequest()
	req.Confidence = nil
	assert.Empty(t, req.Validate(testMaxImageBytes))
}

func TestValidate_TooManyPlantImages(t *testing.T) {
	req := validRequest()
	req.PlantImages = []string{"YQ==", "YQ==", "YQ==", "YQ=="}

	details := req.Validate(testMaxImageBytes)
	assert.Len(t, details, 1)
	assert.Contains(t, details[0], "plant_images")
}

func TestValidate_OversizedImages(t *testing.T) {
	req := validRequest()
	req.MainImage = strings.Repeat("A", testMaxImageBytes+1)
	req.PlantImages = []string{strings.Repeat("A", testMaxImageBytes+1)}

	details := req.Validate(testMaxImageBytes)
	assert.Len(t, details, 2)
	assert.Contains(t, details[0], "main_image")
	assert.Contains(t, details[1], "plant_images[0]")
}

func TestValidate_AggregatesAllViolations(t *testing.T) {
	confidence := 150.0
	req := SubmitDetectionRequest{
		Status:     "unknown",
		Confidence: &confidence,
	}

	details := req.Validate(testMaxImageBytes)
	assert.Len(t, details, 4)
}

func TestNormalize_Defaults(t *testing.T) {
	req := validRequest()
	req.Normalize()

	assert.NotNil(t, req.Metadata)
	assert.Empty(t, req.Metadata)
	assert.NotNil(t, req.PlantImages)
	assert.Empty(t, req.PlantImages)
}

func TestNormalize_KeepsProvidedValues(t *testing.T) {
	req := validRequest()
	req.Metadata = map[string]interface{}{"temperature": 22.5}
	req.PlantImages = []string{"YQ=="}
	req.Normalize()

	assert.Equal(t, 22.5, req.Metadata["temperature"])
	assert.Len(t, req.PlantImages, 1)
}
