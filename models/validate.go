package models

import "fmt"

// Validate checks a submit request against the ingestion contract and
// returns every violated constraint, not just the first, so that a device
// operator can fix the whole payload in one round trip. maxImageBytes bounds
// the encoded length of each image field and is checked before any decoding.
func (r *SubmitDetectionRequest) Validate(maxImageBytes int) []string {
	var details []string

	if r.DeviceID == "" {
		details = append(details, "device_id is required and must be a non-empty string")
	}

	if r.MainImage == "" {
		details = append(details, "main_image is required and must be a non-empty base64 string")
	} else if len(r.MainImage) > maxImageBytes {
		details = append(details, fmt.Sprintf("main_image exceeds the maximum encoded size of %d bytes", maxImageBytes))
	}

	if !isValidStatus(r.Status) {
		details = append(details, fmt.Sprintf("status must be one of %v, got %q", ValidStatuses, r.Status))
	}

	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 100) {
		details = append(details, fmt.Sprintf("confidence must be between 0 and 100, got %v", *r.Confidence))
	}

	if len(r.PlantImages) > MaxPlantImages {
		details = append(details, fmt.Sprintf("plant_images must contain at most %d items, got %d", MaxPlantImages, len(r.PlantImages)))
	}
	for i, img := range r.PlantImages {
		if img == "" {
			details = append(details, fmt.Sprintf("plant_images[%d] must be a non-empty base64 string", i))
		} else if len(img) > maxImageBytes {
			details = append(details, fmt.Sprintf("plant_images[%d] exceeds the maximum encoded size of %d bytes", i, maxImageBytes))
		}
	}

	return details
}

// Normalize fills in the documented defaults for optional fields.
func (r *SubmitDetectionRequest) Normalize() {
	if r.Metadata == nil {
		r.Metadata = map[string]interface{}{}
	}
	if r.PlantImages == nil {
		r.PlantImages = []string{}
	}
}

func isValidStatus(status string) bool {
	for _, s := range ValidStatuses {
		if status == s {
			return true
		}
	}
	return false
}
