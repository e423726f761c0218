package handlers

import (
	"net/http"
	"strconv"

	"detection-service/middleware"
	"detection-service/models"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListDetections returns detections newest first for the dashboard.
func (h *Handlers) ListDetections(c *gin.Context) {
	filter := models.DetectionFilter{
		DeviceID: c.Query("device_id"),
		Status:   c.Query("status"),
		Limit:    defaultListLimit,
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return
		}
		filter.Offset = n
	}

	detections, err := h.db.GetDetections(c.Request.Context(), filter)
	if err != nil {
		log.WithField("request_id", middleware.GetRequestID(c)).Errorf("Failed to list detections: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list detections"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"detections": detections,
		"count":      len(detections),
	})
}

// GetDetection returns one detection with its images.
func (h *Handlers) GetDetection(c *gin.Context) {
	id := c.Param("id")

	detection, err := h.db.GetDetectionByID(c.Request.Context(), id)
	if err != nil {
		log.WithField("request_id", middleware.GetRequestID(c)).Errorf("Failed to get detection %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get detection"})
		return
	}
	if detection == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "detection": detection})
}

// DeleteDetection removes a detection and its images; the stored objects
// are cleaned up best-effort after the row is gone.
func (h *Handlers) DeleteDetection(c *gin.Context) {
	id := c.Param("id")
	logger := log.WithField("request_id", middleware.GetRequestID(c))

	imageURLs, found, err := h.db.DeleteDetection(c.Request.Context(), id)
	if err != nil {
		logger.Errorf("Failed to delete detection %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete detection"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
		return
	}

	for _, url := range imageURLs {
		if err := h.store.RemoveByURL(c.Request.Context(), url); err != nil {
			logger.Warnf("Failed to remove stored object %s: %v", url, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Detection deleted successfully"})
}
