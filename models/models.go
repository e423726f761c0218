package models

import "time"

// Valid detection statuses reported by devices.
const (
	StatusNoObjects = "noObjects"
	StatusHealthy   = "healthy"
	StatusDiseased  = "diseased"
	StatusMixed     = "mixed"
)

// ValidStatuses lists the accepted values for Detection.Status.
var ValidStatuses = []string{StatusNoObjects, StatusHealthy, StatusDiseased, StatusMixed}

// MaxPlantImages caps the number of secondary images per detection.
const MaxPlantImages = 3

// Detection is one classification event reported by one device.
type Detection struct {
	ID         string                 `json:"id"`
	Seq        int64                  `json:"seq"`
	DeviceID   string                 `json:"device_id"`
	ImageURL   string                 `json:"image_url"`
	Status     string                 `json:"status"`
	Confidence *float64               `json:"confidence,omitempty"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
	Images     []DetectionImage       `json:"images,omitempty"`
}

// DetectionImage is a secondary (cropped/detail) image belonging to a detection.
type DetectionImage struct {
	ID          string    `json:"id"`
	DetectionID string    `json:"detection_id"`
	ImageURL    string    `json:"image_url"`
	OrderNum    int       `json:"order_num"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmitDetectionRequest is the JSON body of POST /submit-detection.
type SubmitDetectionRequest struct {
	DeviceID    string                 `json:"device_id"`
	MainImage   string                 `json:"main_image"`
	Status      string                 `json:"status"`
	Confidence  *float64               `json:"confidence"`
	Metadata    map[string]interface{} `json:"metadata"`
	PlantImages []string               `json:"plant_images"`
}

// SubmitDetectionResponse is the success body of POST /submit-detection.
type SubmitDetectionResponse struct {
	Success     bool   `json:"success"`
	DetectionID string `json:"detection_id"`
	Message     string `json:"message"`
}

// DetectionFilter narrows dashboard list queries.
type DetectionFilter struct {
	DeviceID string
	Status   string
	Limit    int
	Offset   int
}

// BroadcastMessage wraps data pushed to WebSocket clients.
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// DetectionBatch is a batch of freshly inserted detections for the live feed.
type DetectionBatch struct {
	Detections []Detection `json:"detections"`
	Count      int         `json:"count"`
	FromSeq    int64       `json:"from_seq"`
	ToSeq      int64       `json:"to_seq"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	Version          string `json:"version"`
	ConnectedClients int    `json:"connected_clients"`
}
